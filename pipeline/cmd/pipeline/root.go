package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "EventVault ingestion pipeline",
	Long: `pipeline runs the EventVault ingestion service and its operational tooling.

Envelopes submitted to the service are validated, anchored to a stable
ingestion identity and stored exactly once per content fingerprint.
Failures are dead-lettered and can be replayed from the command line.`,
	Version:      "0.1.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/eventvault/pipeline/config.yaml)")
	rootCmd.PersistentFlags().String("output", "json", "output format: json, yaml")
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("pipeline"))
	logging.SetDefault(logger)

	if cfgFile != "" {
		slog.Debug("Loaded configuration", slog.String("config_path", cfgFile))
	}
	return nil
}
