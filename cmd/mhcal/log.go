package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mhcal/internal/store"
)

func newLogCmd() *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the change log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir, err := store.OpenDir(cfg.DataDir)
			if err != nil {
				return err
			}
			changes, err := dir.ReadLog()
			if err != nil {
				return err
			}
			if limit > 0 && len(changes) > limit {
				changes = changes[len(changes)-limit:]
			}

			switch format {
			case "json":
				if changes == nil {
					changes = []store.Change{}
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(changes)
			case "table":
				if len(changes) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No changes recorded in %s\n", dir.Root())
					return nil
				}
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"Op", "Time", "UID", "Subject"})
				for _, c := range changes {
					t.AppendRow(table.Row{c.Op.String(), c.Time.Local().Format(time.DateTime), c.UID, c.Subject})
				}
				t.Render()
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Show only the last N changes (0 for all)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}
