package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "list jobs and their tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		active, completed := mgr.GetJobBuckets()
		jobs := active
		if all {
			jobs = append(jobs, completed...)
		}

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintln(tw, "JOB\tTASK\tFILE\tSTATUS\tPROGRESS")
		for _, job := range jobs {
			for _, t := range job.Tasks {
				progress := "-"
				if t.TotalBytes > 0 {
					progress = fmt.Sprintf("%s / %s", humanize.Bytes(uint64(t.Progress)), humanize.Bytes(uint64(t.TotalBytes)))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", job.ID, t.ID, t.Filename, t.Status, progress)
			}
		}
		return nil
	},
}

func init() {
	lsCmd.Flags().Bool("all", false, "include completed jobs")
}
