// Command pipelinectl is a command-line front end over pkg/agentcore: a
// thin Cobra wrapper around submit/status/watch/cancel, backed by a
// filesystem paper store and a ledger that never declines a reservation.
// A hosted deployment would swap both collaborators for its own and keep
// calling the same four Core methods.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/answer42/agentcore/internal/config"
	"github.com/answer42/agentcore/internal/corekit"
	"github.com/answer42/agentcore/internal/telemetry"
	"github.com/answer42/agentcore/pkg/agentcore"
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Submit and inspect research-paper processing pipelines",
	Long: "pipelinectl drives the agentcore orchestration core directly, without a " +
		"server in front of it: every subcommand builds its own Core from " +
		"AGENTCORE_* environment variables (see internal/config), and an optional " +
		"AGENTCORE_CONFIG_FILE overlay, runs one operation, and exits.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pipelinectl:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(submitCmd, statusCmd, watchCmd, cancelCmd)
}

// buildCore loads configuration and assembles a Core wired to the
// filesystem paper store and an always-grants ledger. Telemetry is only
// attached when AGENTCORE_TELEMETRY_ENABLED (or the config file) turns it
// on, so a quick one-off invocation doesn't pay for a tracer provider it
// will tear down a second later.
func buildCore() (*agentcore.Core, error) {
	logger := corekit.NewStdLogger()

	cfg, err := config.Load(logger)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	var tel corekit.Telemetry
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.New(telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			SamplingRate: cfg.Telemetry.SamplingRate,
		})
		if err != nil {
			return nil, fmt.Errorf("starting telemetry: %w", err)
		}
		tel = provider
	}

	core, err := agentcore.NewCore(*cfg, newFilePaperStore(), newFreeLedger(), logger, tel)
	if err != nil {
		return nil, fmt.Errorf("assembling orchestration core: %w", err)
	}
	return core, nil
}

// parseStages resolves a comma-separated stage list to corekit.StageKind
// values, defaulting to every stage when raw is empty.
func parseStages(raw string) ([]corekit.StageKind, error) {
	if raw == "" {
		return corekit.AllStages, nil
	}
	known := make(map[corekit.StageKind]bool, len(corekit.AllStages))
	for _, s := range corekit.AllStages {
		known[s] = true
	}

	var stages []corekit.StageKind
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				kind := corekit.StageKind(raw[start:i])
				if !known[kind] {
					return nil, fmt.Errorf("unknown stage %q", kind)
				}
				stages = append(stages, kind)
			}
			start = i + 1
		}
	}
	return stages, nil
}
