package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mhcal/internal/calendar"
	"mhcal/internal/ics"
)

func newShowCmd() *cobra.Command {
	var upcoming int

	cmd := &cobra.Command{
		Use:   "show <uid>",
		Short: "Print an entry record and its next occurrences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			e, err := st.FindByUID(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := out.Write(e.Marshal()); err != nil {
				return err
			}
			if upcoming <= 0 {
				return nil
			}

			today := calendar.DateOf(time.Now().In(loc))
			dates, err := ics.OccurrenceDates(e, today, today.AddDays(366*5))
			if err != nil {
				return err
			}
			if len(dates) > upcoming {
				dates = dates[:upcoming]
			}
			fmt.Fprintln(out, "----")
			if len(dates) == 0 {
				fmt.Fprintln(out, "no upcoming occurrences")
			}
			for _, d := range dates {
				fmt.Fprintln(out, d.Time(time.UTC).Format("2006-01-02 Mon"))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&upcoming, "upcoming", 5, "Number of upcoming occurrences to list (0 to skip)")
	return cmd
}
