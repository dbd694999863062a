package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JaPNaA/jbackup/internal/repo"
	"github.com/JaPNaA/jbackup/internal/snapshot"
)

// FormatTable and FormatJSON are the recognized values of --format.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// NewLogCommand lists snapshot history.
func NewLogCommand(repoFlag *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List snapshot history",
		RunE: func(_ *cobra.Command, _ []string) error {
			root, err := resolveRoot(*repoFlag)
			if err != nil {
				return err
			}

			metas, err := snapshot.Log(root)
			if err != nil {
				return fmt.Errorf("jbackup: log: %w", err)
			}

			switch format {
			case FormatJSON:
				return renderLogJSON(metas)
			case FormatTable, "":
				renderLogTable(metas)

				return nil
			default:
				return fmt.Errorf("jbackup: unrecognized --format %q (use table or json)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatTable, "output format (table, json)")

	return cmd
}

func renderLogTable(metas []*repo.Meta) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"ID", "DATE", "FULL", "MESSAGE"})

	for _, m := range metas {
		full := "diff"
		if m.Full != repo.FullNone {
			full = "full"
		}

		tbl.AppendRow(table.Row{
			m.ID,
			humanize.Time(time.Unix(m.Date, 0)),
			full,
			m.Message,
		})
	}

	tbl.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d snapshots", len(metas))})
	tbl.Render()
}

func renderLogJSON(metas []*repo.Meta) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(metas); err != nil {
		return fmt.Errorf("jbackup: encode log as json: %w", err)
	}

	return nil
}
