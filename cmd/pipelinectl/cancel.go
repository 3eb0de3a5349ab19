package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Cancel a request running in this process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := buildCore()
		if err != nil {
			return err
		}
		if err := core.CancelPipeline(args[0]); err != nil {
			return fmt.Errorf("cancelling %s: %w", args[0], err)
		}
		fmt.Printf("cancel requested for %s\n", args[0])
		return nil
	},
}
