package main

import (
	"fmt"

	"github.com/aura-dl/aura-core/internal/ledger"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "add a download job with a single task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		filename, _ := cmd.Flags().GetString("filename")
		if name == "" {
			name = filename
		}

		jobID := mgr.AddJob(ledger.Job{
			Name: name,
			Tasks: []ledger.Task{
				{URL: args[0], Filename: filename, Status: ledger.Pending()},
			},
		})
		fmt.Println(jobID)
		return nil
	},
}

func init() {
	addCmd.Flags().StringP("name", "n", "", "job name (defaults to filename)")
	addCmd.Flags().StringP("filename", "f", "download.bin", "filename to save as")
}
