package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <request-id>",
	Short: "Stream progress events for a request running in this process",
	Long: "watch only sees events for a request still tracked by this " +
		"process's Core — it has no use against a request submitted by a " +
		"different pipelinectl invocation. It exists to exercise " +
		"SubscribeProgress independently of submit's built-in wait " +
		"behavior, and exits once every stage has settled.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID := args[0]

		core, err := buildCore()
		if err != nil {
			return err
		}

		status, err := core.GetPipelineStatus(requestID)
		if err != nil {
			return fmt.Errorf("fetching status for %s: %w", requestID, err)
		}
		total := len(status.StageStates)

		events, unsubscribe, err := core.SubscribeProgress(requestID, 0)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", requestID, err)
		}
		defer unsubscribe()

		settled := 0
		for settled < total {
			event, ok := <-events
			if !ok {
				return nil
			}
			suffix := ""
			if event.UsedFallback {
				suffix = " (fallback)"
			}
			fmt.Printf("%-20s %s%s\n", event.Stage, event.Status, suffix)
			if event.Status.IsTerminal() {
				settled++
			}
		}
		return nil
	},
}
