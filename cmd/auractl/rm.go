package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm [job-id]",
	Short: "remove a job and its history entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !mgr.RemoveJob(context.Background(), args[0]) {
			return fmt.Errorf("job %q not found", args[0])
		}
		return nil
	},
}
