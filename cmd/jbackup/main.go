// Package main provides the entry point for the jbackup CLI tool.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JaPNaA/jbackup/cmd/jbackup/commands"
	"github.com/JaPNaA/jbackup/pkg/version"
)

var (
	repoFlag string
	verbose  bool
	quiet    bool
)

func configureLogging() {
	level := slog.LevelInfo

	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "jbackup",
		Short: "jbackup - directory snapshot and incremental backup engine",
		Long: `jbackup takes content-addressed, incrementally-stored snapshots of a
directory tree and can restore any of them.

Commands:
  init      Create a new repository in the current directory
  snapshot  Take a snapshot of the working tree
  log       List snapshot history
  restore   Reconstruct a snapshot's tree on disk
  fsck      Validate repository consistency`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "repository root (default: search upward from the current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.AddCommand(commands.NewInitCommand(&repoFlag))
	rootCmd.AddCommand(commands.NewSnapshotCommand(&repoFlag))
	rootCmd.AddCommand(commands.NewLogCommand(&repoFlag))
	rootCmd.AddCommand(commands.NewRestoreCommand(&repoFlag))
	rootCmd.AddCommand(commands.NewFsckCommand(&repoFlag))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "jbackup %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
