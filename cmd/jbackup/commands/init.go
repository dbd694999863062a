package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JaPNaA/jbackup/internal/snapshot"
)

// NewInitCommand creates a new repository in the current directory.
func NewInitCommand(repoFlag *string) *cobra.Command {
	var transformers []string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new repository in the current directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			root := "."
			if *repoFlag != "" {
				root = *repoFlag
			}

			if _, err := transformerRegistry().Build(transformers); err != nil {
				return fmt.Errorf("jbackup: %w", err)
			}

			if err := snapshot.Init(root, transformers); err != nil {
				return fmt.Errorf("jbackup: init: %w", err)
			}

			fmt.Fprintf(os.Stdout, "initialized empty jbackup repository in %s\n", root)

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&transformers, "transformers", nil, "transformer chain to apply on every snapshot, comma-separated (e.g. minecraft_mca)")

	return cmd
}
