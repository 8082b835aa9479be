package main

import "github.com/spf13/cobra"

var pauseCmd = &cobra.Command{
	Use:   "pause [job-id] [task-id]",
	Short: "pause one running task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr.Pause(args[0], args[1])
		return nil
	},
}
