// Package config loads the orchestration core's runtime configuration:
// defaults, then AGENTCORE_* environment variables, then an optional
// YAML file overlay. Fields are parsed with explicit per-field
// os.Getenv calls rather than a reflection-driven env-tag library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/answer42/agentcore/internal/corekit"
)

// Config holds every tunable of the orchestration core. Nested groups
// correspond 1:1 to the collaborator each configures.
type Config struct {
	// Logging carries the configured log level. StdLogger does not
	// filter by it; every call is written regardless of Level.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// RateLimiter configures every provider's token bucket.
	RateLimiter RateLimiterConfig `json:"rate_limiter" yaml:"rate_limiter"`

	// Breaker configures every provider's circuit breaker.
	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`

	// Retry configures the retry policy shared by every agent.
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Fallback configures the degraded-mode local provider path.
	Fallback FallbackConfig `json:"fallback" yaml:"fallback"`

	// TaskStore selects and configures the durable task store.
	TaskStore TaskStoreConfig `json:"task_store" yaml:"task_store"`

	// Providers configures the remote and local AI provider adapters.
	Providers ProvidersConfig `json:"providers" yaml:"providers"`

	// Telemetry configures OpenTelemetry tracing/metrics export.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// QualityFloor is the soft warning threshold QualityChecker logs
	// against without failing the stage.
	QualityFloor float64 `json:"quality_floor" yaml:"quality_floor"`
}

// LoggingConfig controls the default logger.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"` // debug|info|warn|error
}

// RateLimiterConfig mirrors ratelimit.Config.
type RateLimiterConfig struct {
	Capacity      int     `json:"capacity" yaml:"capacity"`
	RefillPerSec  float64 `json:"refill_per_sec" yaml:"refill_per_sec"`
	HighWaterMark int     `json:"high_water_mark" yaml:"high_water_mark"`
}

// BreakerConfig mirrors breaker.Config's non-collaborator fields.
type BreakerConfig struct {
	WindowSize       int           `json:"window_size" yaml:"window_size"`
	FailureThreshold float64       `json:"failure_threshold" yaml:"failure_threshold"`
	CoolDown         time.Duration `json:"cool_down" yaml:"cool_down"`
	CoolDownCeiling  time.Duration `json:"cool_down_ceiling" yaml:"cool_down_ceiling"`
	HalfOpenProbes   int           `json:"half_open_probes" yaml:"half_open_probes"`
}

// RetryConfig mirrors retrypolicy.Config.
type RetryConfig struct {
	MaxAttempts        int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay          time.Duration `json:"base_delay" yaml:"base_delay"`
	Multiplier         float64       `json:"multiplier" yaml:"multiplier"`
	JitterFraction     float64       `json:"jitter_fraction" yaml:"jitter_fraction"`
	PerAttemptDeadline time.Duration `json:"per_attempt_deadline" yaml:"per_attempt_deadline"`
}

// FallbackConfig gates whether degraded-mode local fallback is wired at all.
type FallbackConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	InputTruncation int  `json:"input_truncation" yaml:"input_truncation"`
}

// TaskStoreConfig selects memory or Redis backing for the task store.
type TaskStoreConfig struct {
	Backend          string        `json:"backend" yaml:"backend"` // memory|redis
	RedisURL         string        `json:"redis_url" yaml:"redis_url"`
	RedisKeyPrefix   string        `json:"redis_key_prefix" yaml:"redis_key_prefix"`
	RedisTaskTTL     time.Duration `json:"redis_task_ttl" yaml:"redis_task_ttl"`
	MemoSizeCapBytes int           `json:"memo_size_cap_bytes" yaml:"memo_size_cap_bytes"`
}

// ProvidersConfig configures every remote + local AI provider adapter.
type ProvidersConfig struct {
	Anthropic ProviderCredentials `json:"anthropic" yaml:"anthropic"`
	OpenAI    ProviderCredentials `json:"openai" yaml:"openai"`
	Gemini    ProviderCredentials `json:"gemini" yaml:"gemini"`
	Local     LocalProviderConfig `json:"local" yaml:"local"`
	// Primary names which of Anthropic/OpenAI/Gemini each agent dispatches
	// to by default; an agent-specific override belongs to the caller
	// wiring pkg/agentcore, not to this shared config.
	Primary string `json:"primary" yaml:"primary"`
}

// ProviderCredentials configures one remote provider adapter.
type ProviderCredentials struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// LocalProviderConfig configures the Ollama-compatible fallback provider.
type LocalProviderConfig struct {
	Host  string `json:"host" yaml:"host"`
	Model string `json:"model" yaml:"model"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	Endpoint       string  `json:"endpoint" yaml:"endpoint"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	SamplingRate   float64 `json:"sampling_rate" yaml:"sampling_rate"`
	Insecure       bool    `json:"insecure" yaml:"insecure"`
}

// Defaults returns the named defaults assigned to every tunable that
// has one.
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		RateLimiter: RateLimiterConfig{
			Capacity: 10, RefillPerSec: 2, HighWaterMark: 1000,
		},
		Breaker: BreakerConfig{
			WindowSize: 20, FailureThreshold: 0.5,
			CoolDown: 30 * time.Second, CoolDownCeiling: 5 * time.Minute,
			HalfOpenProbes: 3,
		},
		Retry: RetryConfig{
			MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2, JitterFraction: 0.2,
		},
		Fallback: FallbackConfig{Enabled: true, InputTruncation: 8000},
		TaskStore: TaskStoreConfig{
			Backend: "memory", RedisKeyPrefix: "agentcore", RedisTaskTTL: 24 * time.Hour,
			MemoSizeCapBytes: 64 << 20,
		},
		Providers: ProvidersConfig{
			Primary: "anthropic",
			Local:   LocalProviderConfig{Host: "http://localhost:11434", Model: "llama3"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentcore", SamplingRate: 1.0, Insecure: true,
		},
		QualityFloor: 0.5,
	}
}

// Load builds a Config by layering environment variables over defaults,
// then a YAML file (if AGENTCORE_CONFIG_FILE is set) over the result.
// File values win over environment values, matching the
// "env vars for the common case, a config file for anything an operator
// wants committed to version control."
func Load(logger corekit.Logger) (*Config, error) {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	cfg := Defaults()
	cfg.loadFromEnv(logger)

	if path := os.Getenv("AGENTCORE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
		logger.Info("configuration overlaid from file", map[string]interface{}{"path": path})
	}
	return &cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv applies AGENTCORE_* environment variables on top of
// whatever defaults/earlier layers are already in c. Each variable is
// parsed independently; an unparseable value is logged and the existing
// value is left untouched rather than failing startup outright — a
// running process with one bad setting beats a hard crash on a
// typo'd duration string.
func (c *Config) loadFromEnv(logger corekit.Logger) {
	if v := os.Getenv("AGENTCORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("AGENTCORE_RATE_LIMITER_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimiter.Capacity = n
		} else {
			logger.Warn("invalid AGENTCORE_RATE_LIMITER_CAPACITY", map[string]interface{}{"value": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("AGENTCORE_RATE_LIMITER_REFILL_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimiter.RefillPerSec = f
		} else {
			logger.Warn("invalid AGENTCORE_RATE_LIMITER_REFILL_PER_SEC", map[string]interface{}{"value": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("AGENTCORE_RATE_LIMITER_HIGH_WATER_MARK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimiter.HighWaterMark = n
		}
	}

	if v := os.Getenv("AGENTCORE_BREAKER_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Breaker.WindowSize = n
		}
	}
	if v := os.Getenv("AGENTCORE_BREAKER_FAILURE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Breaker.FailureThreshold = f
		}
	}
	if v := os.Getenv("AGENTCORE_BREAKER_COOL_DOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Breaker.CoolDown = d
		} else {
			logger.Warn("invalid AGENTCORE_BREAKER_COOL_DOWN", map[string]interface{}{"value": v, "error": err.Error()})
		}
	}
	if v := os.Getenv("AGENTCORE_BREAKER_COOL_DOWN_CEILING"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Breaker.CoolDownCeiling = d
		}
	}
	if v := os.Getenv("AGENTCORE_BREAKER_HALF_OPEN_PROBES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Breaker.HalfOpenProbes = n
		}
	}

	if v := os.Getenv("AGENTCORE_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("AGENTCORE_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Retry.BaseDelay = d
		}
	}
	if v := os.Getenv("AGENTCORE_RETRY_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retry.Multiplier = f
		}
	}
	if v := os.Getenv("AGENTCORE_RETRY_JITTER_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retry.JitterFraction = f
		}
	}

	if v := os.Getenv("AGENTCORE_FALLBACK_ENABLED"); v != "" {
		c.Fallback.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTCORE_FALLBACK_INPUT_TRUNCATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fallback.InputTruncation = n
		}
	}

	if v := os.Getenv("AGENTCORE_TASK_STORE_BACKEND"); v != "" {
		c.TaskStore.Backend = v
	}
	if v := os.Getenv("AGENTCORE_REDIS_URL"); v != "" {
		c.TaskStore.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.TaskStore.RedisURL = v
	}
	if v := os.Getenv("AGENTCORE_TASK_STORE_MEMO_SIZE_CAP_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TaskStore.MemoSizeCapBytes = n
		}
	}

	if v := os.Getenv("AGENTCORE_ANTHROPIC_API_KEY"); v != "" {
		c.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("AGENTCORE_OPENAI_API_KEY"); v != "" {
		c.Providers.OpenAI.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("AGENTCORE_GEMINI_API_KEY"); v != "" {
		c.Providers.Gemini.APIKey = v
	}
	if v := os.Getenv("AGENTCORE_LOCAL_PROVIDER_HOST"); v != "" {
		c.Providers.Local.Host = v
	}
	if v := os.Getenv("AGENTCORE_LOCAL_PROVIDER_MODEL"); v != "" {
		c.Providers.Local.Model = v
	}
	if v := os.Getenv("AGENTCORE_PROVIDERS_PRIMARY"); v != "" {
		c.Providers.Primary = v
	}

	if v := os.Getenv("AGENTCORE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTCORE_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("AGENTCORE_TELEMETRY_SAMPLING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Telemetry.SamplingRate = f
		}
	}

	if v := os.Getenv("AGENTCORE_QUALITY_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.QualityFloor = f
		}
	}
}
