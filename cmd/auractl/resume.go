package main

import (
	"context"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id] [task-id]",
	Short: "resume one paused task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mgr.Resume(context.Background(), args[0], args[1])
	},
}
