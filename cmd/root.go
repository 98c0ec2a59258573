package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kilianp07/ess/config"
	"github.com/kilianp07/ess/core/monitoring"
	"github.com/kilianp07/ess/infra/logger"
	inframon "github.com/kilianp07/ess/infra/monitoring"
)

var (
	cfgPath string
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:               "ess",
	Short:             "Energy storage controller for harvested-energy streetlights",
	Version:           versioninfo.Short(),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	path := cfgPath
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = c

	if cfg.Sentry.Release == "" {
		cfg.Sentry.Release = versioninfo.Short()
	}
	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		logger.New("main").Warnf("sentry disabled: %v", err)
		return nil
	}
	monitoring.Init(mon)
	return nil
}

// offline returns a copy of the configuration for one-shot commands: no
// broker, no sinks and an in-memory store.
func offline(c *config.Config) *config.Config {
	cp := *c
	cp.MQTT.Broker = ""
	cp.Metrics.Sinks = nil
	cp.Metrics.PrometheusAddr = ""
	cp.Store.Backend = "memory"
	return &cp
}
