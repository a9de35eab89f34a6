package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mhcal/internal/category"
	"mhcal/internal/ics"
	"mhcal/internal/schedule"
)

func newExportCmd() *cobra.Command {
	var (
		expr   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write entries as an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			st, err := openStore(cfg, nil)
			if err != nil {
				return err
			}

			pred := category.Parse(expr)
			var entries []*schedule.Entry
			for _, e := range st.Entries() {
				if pred.Match(e.Categories) {
					entries = append(entries, e)
				}
			}
			cal := ics.Export(entries, loc, time.Now())

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := cal.SerializeTo(w); err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries to %s\n", len(entries), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "category", "", "Only export entries matching this category expression")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
