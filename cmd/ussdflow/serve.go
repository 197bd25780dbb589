package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/ussdflow"
	"github.com/aretw0/ussdflow/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the USSD gateway server",
	Long: `Loads the flows and helpers, then answers the gateway callbacks on
/session/{sessionId}/start, /response and /end until interrupted.`,
	RunE: runServe,
}

func init() {
	config.SetupFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := ussdflow.New(ctx, cfg, ussdflow.WithLogger(logger))
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
