package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JaPNaA/jbackup/internal/observability"
	"github.com/JaPNaA/jbackup/internal/procconfig"
	"github.com/JaPNaA/jbackup/internal/snapshot"
)

// NewSnapshotCommand takes a snapshot of the working tree.
func NewSnapshotCommand(repoFlag *string) *cobra.Command {
	var (
		message    string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Take a snapshot of the working tree",
		RunE: func(_ *cobra.Command, _ []string) error {
			root, err := resolveRoot(*repoFlag)
			if err != nil {
				return err
			}

			procCfg, err := procconfig.Load(configPath)
			if err != nil {
				return fmt.Errorf("jbackup: %w", err)
			}

			chain, err := loadChain(root)
			if err != nil {
				return err
			}

			metrics := observability.NewMetrics()

			if procCfg.MetricsAddr != "" {
				srv, srvErr := observability.NewDiagnosticsServer(procCfg.MetricsAddr, metrics)
				if srvErr != nil {
					return fmt.Errorf("jbackup: %w", srvErr)
				}

				defer func() {
					if closeErr := srv.Close(); closeErr != nil {
						slog.Warn("jbackup: diagnostics server shutdown", "error", closeErr)
					}
				}()
			}

			id, err := snapshot.CreateSnapshot(root, snapshot.Options{
				Message:     message,
				Chain:       chain,
				Workers:     procCfg.Workers,
				BufferBound: procCfg.Workers * procCfg.BufferBound,
				Metrics:     metrics,
			})
			if err != nil {
				return fmt.Errorf("jbackup: snapshot: %w", err)
			}

			color.New(color.FgGreen).Fprintf(os.Stdout, "snapshot %s\n", id)

			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "snapshot message")
	cmd.Flags().StringVar(&configPath, "config", "", "process config file (default: search .jbackup.yaml)")

	return cmd
}
