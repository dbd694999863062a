package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JaPNaA/jbackup/internal/repo"
	"github.com/JaPNaA/jbackup/internal/restore"
)

// NewRestoreCommand reconstructs a snapshot's tree on disk.
func NewRestoreCommand(repoFlag *string) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "restore <id>",
		Short: "Reconstruct a snapshot's tree on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			targetID := args[0]

			root, err := resolveRoot(*repoFlag)
			if err != nil {
				return err
			}

			dest := outDir
			if dest == "" {
				dest, err = os.MkdirTemp("", "jbackup-restore-*")
				if err != nil {
					return fmt.Errorf("jbackup: create destination directory: %w", err)
				}
			}

			metas, err := restore.LoadAllMetas(root)
			if err != nil {
				return fmt.Errorf("jbackup: restore: %w", err)
			}

			chain, err := restore.Chain(metas, targetID)
			if err != nil {
				return fmt.Errorf("jbackup: restore: %w", err)
			}

			archivePath, err := restore.Rebuild(root, chain)
			if err != nil {
				return fmt.Errorf("jbackup: restore: %w", err)
			}

			transformerChain, err := loadChain(root)
			if err != nil {
				return err
			}

			extractErr := restore.Extract(archivePath, dest, transformerChain)

			// Rebuild returns the repository's own full payload path unchanged
			// when chain has a single entry; only a genuinely reconstructed
			// temp archive is ours to delete.
			if archivePath != repo.FullPath(root, chain[0]) {
				if rmErr := os.Remove(archivePath); rmErr != nil {
					return fmt.Errorf("jbackup: remove reconstructed archive: %w", rmErr)
				}
			}

			if extractErr != nil {
				return fmt.Errorf("jbackup: restore: %w", extractErr)
			}

			color.New(color.FgGreen).Fprintf(os.Stdout, "restored %s to %s\n", targetID, dest)

			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "destination directory (default: a fresh temp directory)")

	return cmd
}
