package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Print each stage's status and the overall completion fraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := buildCore()
		if err != nil {
			return err
		}

		status, err := core.GetPipelineStatus(args[0])
		if err != nil {
			return fmt.Errorf("fetching status: %w", err)
		}

		fmt.Printf("request %s: %.0f%% complete\n", status.RequestID, status.OverallProgress*100)
		for _, s := range status.StageStates {
			line := fmt.Sprintf("  %-20s %s", s.Stage, s.Status)
			if s.UsedFallback {
				line += " (fallback)"
			}
			if s.Error != "" {
				line += " — " + s.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}
