package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/ussdflow/internal/config"
	"github.com/aretw0/ussdflow/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "ussdflow",
	Short: "ussdflow runs USSD menu applications described by flow documents",
	Long: `ussdflow is a USSD session engine. Flows are JSON or YAML documents made of typed
screens; the engine keeps per-session state and answers gateway callbacks over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the resolved configuration.
func newLogger(cfg *config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(level, cfg.LogFormat)
}
