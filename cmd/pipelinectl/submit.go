package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	submitUserID   string
	submitStages   string
	submitDeadline time.Duration
	submitNoWait   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <paper-file>",
	Short: "Submit a paper for pipeline processing",
	Long: "submit starts a pipeline and, by default, stays attached for its " +
		"whole run: it subscribes to progress and prints each stage as it " +
		"settles, then the final status. The request lives only inside this " +
		"process's Core, so status/watch/cancel only see it while submit is " +
		"still running — pass --no-wait to print the request id and exit " +
		"immediately instead.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stages, err := parseStages(submitStages)
		if err != nil {
			return err
		}

		core, err := buildCore()
		if err != nil {
			return err
		}

		var deadline *time.Time
		if submitDeadline > 0 {
			d := time.Now().Add(submitDeadline)
			deadline = &d
		}

		requestID, err := core.SubmitPipeline(context.Background(), submitUserID, args[0], stages, deadline, nil)
		if err != nil {
			return fmt.Errorf("submitting pipeline: %w", err)
		}

		if submitNoWait {
			fmt.Println(requestID)
			return nil
		}

		events, unsubscribe, err := core.SubscribeProgress(requestID, 0)
		if err != nil {
			return fmt.Errorf("subscribing to progress for %s: %w", requestID, err)
		}
		defer unsubscribe()

		requested := make(map[string]bool, len(stages))
		for _, s := range stages {
			requested[string(s)] = true
		}
		total := len(stages)
		settled := 0
		for settled < total {
			event, ok := <-events
			if !ok {
				break
			}
			if !event.Status.IsTerminal() || !requested[string(event.Stage)] {
				continue
			}
			settled++
			suffix := ""
			if event.UsedFallback {
				suffix = " (fallback)"
			}
			fmt.Printf("[%d/%d] %-20s %s%s\n", settled, total, event.Stage, event.Status, suffix)
		}

		status, err := core.GetPipelineStatus(requestID)
		if err != nil {
			return fmt.Errorf("fetching final status for %s: %w", requestID, err)
		}
		fmt.Printf("request %s: %.0f%% complete\n", status.RequestID, status.OverallProgress*100)
		for _, s := range status.StageStates {
			if s.Error != "" {
				fmt.Printf("  %-20s %s — %s\n", s.Stage, s.Status, s.Error)
			}
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitUserID, "user", "cli-user", "user id the request is billed/attributed to")
	submitCmd.Flags().StringVar(&submitStages, "stages", "", "comma-separated stage list (default: all stages)")
	submitCmd.Flags().DurationVar(&submitDeadline, "deadline", 0, "abandon any stage still running after this long (default: no deadline)")
	submitCmd.Flags().BoolVar(&submitNoWait, "no-wait", false, "print the request id and exit instead of waiting for completion")
}
