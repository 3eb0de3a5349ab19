package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/answer42/agentcore/internal/corekit"
)

// Live wraps a Config so the safe-to-change-at-runtime subset (rate
// limiter, breaker and retry settings, and the quality floor) can be
// hot-reloaded from the same YAML file Load read at startup, without
// requiring a process restart. Provider credentials, the
// task store backend, and telemetry export settings are deliberately
// excluded from the watched subset: swapping those out from under a
// live Limiter/Breaker/Retry would either require reconnecting a
// collaborator that doesn't support it (a *redis.Client) or silently
// change who's being billed mid-flight, neither of which is a plain
// field reload.
type Live struct {
	mu  sync.RWMutex
	cur Config

	path    string
	logger  corekit.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLive wraps an already-loaded Config. If path is empty, hot reload
// is disabled and Live just serves the snapshot it was built from.
func NewLive(initial Config, path string, logger corekit.Logger) (*Live, error) {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	l := &Live{cur: initial, path: path, logger: logger, done: make(chan struct{})}
	if path == "" {
		return l, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}
	l.watcher = watcher
	go l.watch()
	return l, nil
}

// Snapshot returns the current config by value; callers that need a
// config for the lifetime of one request should take a Snapshot once at
// the start rather than reading Live's fields repeatedly, so a reload
// mid-request doesn't mix old and new values.
func (l *Live) Snapshot() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// Close stops the file watcher, if any.
func (l *Live) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	return l.watcher.Close()
}

func (l *Live) watch() {
	var debounce *time.Timer
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Editors commonly emit several events per save (truncate,
			// write, rename-back); debounce so one save triggers one reload.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, l.reload)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("config watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (l *Live) reload() {
	next := Defaults()
	if err := next.loadFromFile(l.path); err != nil {
		l.logger.Error("config hot-reload failed, keeping previous values", map[string]interface{}{
			"path": l.path, "error": err.Error(),
		})
		return
	}

	l.mu.Lock()
	prev := l.cur
	// Only the safe subset crosses over; everything else keeps its
	// already-running value.
	prev.RateLimiter = next.RateLimiter
	prev.Breaker = next.Breaker
	prev.Retry = next.Retry
	prev.QualityFloor = next.QualityFloor
	l.cur = prev
	l.mu.Unlock()

	l.logger.Info("configuration hot-reloaded", map[string]interface{}{"path": l.path})
}
