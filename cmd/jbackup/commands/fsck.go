package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JaPNaA/jbackup/internal/repo"
)

// ErrRepositoryInconsistent is returned when fsck finds one or more
// violations; the violations themselves are printed before this error.
var ErrRepositoryInconsistent = errors.New("jbackup: repository is inconsistent")

// NewFsckCommand validates repository consistency.
func NewFsckCommand(repoFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Validate repository consistency",
		RunE: func(_ *cobra.Command, _ []string) error {
			root, err := resolveRoot(*repoFlag)
			if err != nil {
				return err
			}

			violations, err := repo.ValidateRepo(root)
			if err != nil {
				return fmt.Errorf("jbackup: fsck: %w", err)
			}

			if len(violations) == 0 {
				color.New(color.FgGreen).Fprintln(os.Stdout, "repository is consistent")

				return nil
			}

			for _, v := range violations {
				color.New(color.FgRed).Fprintf(os.Stdout, "%s\n", v.Error())
			}

			return fmt.Errorf("%w: %d violation(s) found", ErrRepositoryInconsistent, len(violations))
		},
	}
}
