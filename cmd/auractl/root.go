// Package main implements auractl, a thin CLI driving the download manager
// core in-process (spec.md §1's front-end split: this replaces the
// teacher's TUI/daemon/HTTP-API layer, out of scope for this module).
//
// Grounded on the teacher's cmd/root.go/cmd/get.go Cobra structure, stripped
// of the bubbletea program loop since there is no TUI here.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aura-dl/aura-core/internal/manager"
	"github.com/aura-dl/aura-core/internal/resolver"
	"github.com/spf13/cobra"
)

// noResolver backs every task's URL refresh: this CLI has no scraper
// wired in (that layer is out of scope here), so a link expiring under
// auractl always pauses rather than silently retrying forever.
func noResolver(ctx context.Context, episodeURL, gateID string, episodeNumber int) (string, error) {
	return "", errors.New("auractl: no URL resolver configured")
}

var mgr *manager.Manager

var rootCmd = &cobra.Command{
	Use:   "auractl",
	Short: "a persistent, segmented download manager",
	Long:  `auractl drives a local download manager: add jobs, start/pause/resume tasks, and inspect progress.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager.New(manager.Options{Resolver: resolver.Func(noResolver)})
		if err != nil {
			return fmt.Errorf("auractl: %w", err)
		}
		mgr = m
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if mgr != nil {
			_ = mgr.Close()
		}
	},
}

// Execute adds all child commands to the root command and runs it. Called
// by main.main(); only needs to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmCmd)
}
