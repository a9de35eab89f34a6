package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"mhcal/internal/config"
	"mhcal/internal/ics"
	appLog "mhcal/internal/log"
	"mhcal/internal/schedule"
)

func newImportCmd() *cobra.Command {
	var (
		addCategory string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "import [file.ics|URL|-]...",
		Short: "Import iCalendar events as entries",
		Long: "Import VEVENTs from files, URLs or stdin. With no arguments every subscription " +
			"in the config file is fetched. Events whose RRULE has no equivalent are skipped and reported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			payloads, fetchErrs := readPayloads(cmd, cfg, args)
			for _, err := range fetchErrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			}
			if len(payloads) == 0 {
				if len(fetchErrs) > 0 {
					return errors.New("nothing imported")
				}
				return errors.New("no input: name a file or URL, or configure subscriptions")
			}

			var entries []*schedule.Entry
			skipped := 0
			for _, p := range payloads {
				result, err := ics.ParseICS(p.Source, p.Body, loc)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s: %v\n", p.Source, err)
					continue
				}
				for _, skip := range result.Skipped {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %s: %v\n", p.Source, skip)
				}
				skipped += len(result.Skipped)
				entries = append(entries, result.Entries...)
			}

			if addCategory != "" {
				for _, e := range entries {
					if !e.HasCategory(addCategory) {
						e.Categories = append(e.Categories, addCategory)
					}
				}
			}

			if dryRun {
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.UID, e.Subject)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d entries would be imported, %d skipped\n", len(entries), skipped)
				return nil
			}

			st, err := openStore(cfg, nil)
			if err != nil {
				return err
			}
			imported := 0
			for _, e := range entries {
				if err := st.Insert(e); err != nil {
					appLog.Error("import insert failed", err, "uid", e.UID)
					continue
				}
				imported++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries, %d skipped\n", imported, skipped)
			if imported < len(entries) {
				return fmt.Errorf("%d entries failed to store", len(entries)-imported)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addCategory, "category", "", "Add this category to every imported entry")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and list entries without storing them")
	return cmd
}

// readPayloads loads each argument: "-" is stdin, http(s) URLs are fetched
// through the subscription cache, anything else is a file. No arguments
// means the configured subscriptions.
func readPayloads(cmd *cobra.Command, cfg *config.Config, args []string) ([]ics.FetchResult, []error) {
	var (
		results []ics.FetchResult
		errs    []error
		remote  []ics.Source
	)

	if len(args) == 0 {
		for _, sub := range cfg.Subscriptions {
			remote = append(remote, ics.Source{ID: sub.ID, URL: sub.URL})
		}
	}
	for _, arg := range args {
		switch {
		case arg == "-":
			body, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				errs = append(errs, fmt.Errorf("stdin: %w", err))
				continue
			}
			results = append(results, ics.FetchResult{Source: ics.Source{ID: "stdin"}, Body: body})
		case strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://"):
			remote = append(remote, ics.Source{ID: arg, URL: arg})
		default:
			body, err := os.ReadFile(arg)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			results = append(results, ics.FetchResult{Source: ics.Source{ID: arg}, Body: body})
		}
	}

	if len(remote) == 0 {
		return results, errs
	}
	fetcher, err := ics.NewFetcher(cfg.CacheDir, nil)
	if err != nil {
		return results, append(errs, err)
	}
	fetched, fetchErrs := fetcher.FetchAll(cmd.Context(), remote)
	for _, res := range fetched {
		if res.FromCache {
			appLog.Info("using cached calendar", "source", res.Source)
		}
	}
	return slices.Concat(results, fetched), append(errs, fetchErrs...)
}
