package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mhcal/internal/calendar"
	"mhcal/internal/category"
	"mhcal/internal/model"
	"mhcal/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		fromFlag string
		toFlag   string
		days     int
		expr     string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List the entries occurring on each day of a window",
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
			from, to, err := window(fromFlag, toFlag, days, calendar.DateOf(time.Now().In(loc)))
			if err != nil {
				return err
			}

			st, err := openStore(cfg, nil)
			if err != nil {
				return err
			}
			result := st.SearchRange(from, to, category.Parse(expr))

			switch format {
			case "json":
				return outputSearchJSON(cmd, st, result, loc)
			case "table":
				outputSearchTable(cmd, st, result)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "First day, YYYYMMDD (default today)")
	cmd.Flags().StringVar(&toFlag, "to", "", "Last day, YYYYMMDD (overrides --days)")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to list")
	cmd.Flags().StringVar(&expr, "category", "", `Category expression, e.g. "Work Home" or "!Holiday"`)
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

// window resolves the --from/--to/--days flags into an inclusive range.
func window(fromFlag, toFlag string, days int, today calendar.Date) (calendar.Date, calendar.Date, error) {
	from := today
	if fromFlag != "" {
		d, err := calendar.ParseDate(fromFlag)
		if err != nil {
			return from, from, err
		}
		from = d
	}
	if toFlag != "" {
		to, err := calendar.ParseDate(toFlag)
		if err != nil {
			return from, from, err
		}
		if to.Before(from) {
			return from, to, fmt.Errorf("--to %s is before --from %s", to, from)
		}
		return from, to, nil
	}
	if days <= 0 {
		return from, from, fmt.Errorf("--days must be positive, got %d", days)
	}
	return from, from.AddDays(days - 1), nil
}

type searchOutputDay struct {
	Date        string             `json:"date"`
	Holiday     bool               `json:"holiday,omitempty"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

func outputSearchJSON(cmd *cobra.Command, st *store.Store, result []store.DaySchedule, loc *time.Location) error {
	output := make([]searchOutputDay, 0, len(result))
	for _, day := range result {
		item := searchOutputDay{
			Date:        day.Date.String(),
			Holiday:     st.IsHoliday(day.Date),
			Occurrences: make([]model.Occurrence, 0, len(day.Entries)),
		}
		for _, e := range day.Entries {
			item.Occurrences = append(item.Occurrences, model.NewOccurrence(e, day.Date, loc))
		}
		output = append(output, item)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func outputSearchTable(cmd *cobra.Command, st *store.Store, result []store.DaySchedule) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Date", "Time", "Subject", "Location", "Category", "UID"})

	for _, day := range result {
		date := day.Date.Time(time.UTC).Format("2006-01-02 Mon")
		if st.IsHoliday(day.Date) {
			date += " *"
		}
		if len(day.Entries) == 0 {
			t.AppendRow(table.Row{date, "", "", "", "", ""})
			continue
		}
		for i, e := range day.Entries {
			label := date
			if i > 0 {
				label = ""
			}
			t.AppendRow(table.Row{label, e.Time.String(), e.Subject, e.Location, strings.Join(e.Categories, " "), e.UID})
		}
		t.AppendSeparator()
	}
	t.Render()
}
