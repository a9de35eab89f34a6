package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mhcal/internal/config"
	appLog "mhcal/internal/log"
	"mhcal/internal/metrics"
	"mhcal/internal/store"
)

// globalFlags are the persistent flags shared by every subcommand.
var globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:           "mhcal",
	Short:         "mhcal - a recurring schedule store with reminders",
	Long:          "mhcal keeps calendar entries as plain record files, answers day queries from a slot index, and fires reminders.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/mhcal/config.yaml)")
	pf.StringVar(&globalFlags.dataDir, "data-dir", "", "Record directory (overrides config)")
	pf.StringVar(&globalFlags.logLevel, "log-level", "", "Log level: debug, info or error (overrides config)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newLogCmd())
}

// loadConfig reads the config file, applies flag overrides, validates the
// result and sets the process log level.
func loadConfig() (*config.Config, error) {
	path := globalFlags.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if globalFlags.dataDir != "" {
		cfg.DataDir = globalFlags.dataDir
	}
	if globalFlags.logLevel != "" {
		cfg.LogLevel = globalFlags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(level)
	appLog.Debug("effective config",
		"config_path", path,
		"data_dir", cfg.DataDir,
		"timezone", cfg.Timezone,
		"subscriptions", len(cfg.Subscriptions),
	)
	return cfg, nil
}

// openStore loads the record directory. Unreadable records are logged and
// left out.
func openStore(cfg *config.Config, m *metrics.Metrics) (*store.Store, error) {
	opts := []store.Option{
		store.WithLogger(appLog.Default()),
		store.WithHolidayCategory(cfg.HolidayCategory),
	}
	if m != nil {
		opts = append(opts, store.WithObserver(m))
	}
	st, loadErrs, err := store.Open(cfg.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DataDir, err)
	}
	for _, err := range loadErrs {
		appLog.Error("record skipped", err)
	}
	appLog.Debug("store loaded", "entries", st.Len(), "skipped", len(loadErrs))
	return st, nil
}
