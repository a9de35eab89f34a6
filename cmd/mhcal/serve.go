package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mhcal/internal/alarm"
	"mhcal/internal/category"
	appLog "mhcal/internal/log"
	"mhcal/internal/metrics"
	"mhcal/internal/store"
	"mhcal/internal/web"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// --listen overrides the config file.
			if listen != "" {
				cfg.Listen = listen
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			appLog.Info("mhcal starting", "version", version)

			m := metrics.New()
			st, err := openStore(cfg, m)
			if err != nil {
				return err
			}
			changeLog, err := store.OpenDir(cfg.DataDir)
			if err != nil {
				return err
			}

			table := alarm.NewTable(st,
				alarm.WithLocation(loc),
				alarm.WithLookAhead(cfg.Alarm.LookAheadDays),
				alarm.WithPredicate(category.Parse(cfg.Alarm.Category)),
			)
			out := cmd.OutOrStdout()
			sched, err := alarm.NewScheduler(table, cfg.Alarm.Cron,
				func(a alarm.Alarm) {
					fmt.Fprintf(out, "%s  %s  %s\n", a.Event.Format("2006-01-02 15:04"), a.Entry.Subject, a.Entry.UID)
				},
				alarm.WithObserver(m),
				alarm.WithLogger(appLog.Default()),
			)
			if err != nil {
				return err
			}

			srv := web.NewServer(cfg, st, web.WithMetrics(m), web.WithChangeLog(changeLog))

			appLog.Info("effective config",
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"data_dir", cfg.DataDir,
				"entries", st.Len(),
				"alarm_cron", cfg.Alarm.Cron,
				"look_ahead_days", cfg.Alarm.LookAheadDays,
			)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			schedDone := make(chan error, 1)
			go func() { schedDone <- sched.Run(ctx) }()

			serveErr := srv.Serve(ctx)
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				appLog.Error("HTTP server failed", serveErr)
			} else {
				serveErr = nil
			}
			cancel()

			select {
			case <-schedDone:
			case <-time.After(5 * time.Second):
				appLog.Error("alarm scheduler did not stop in time", errors.New("timeout"))
			}
			appLog.Info("mhcal exiting")
			return serveErr
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
