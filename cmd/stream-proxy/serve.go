package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stream-proxy-go/internal/app"
)

var flagPort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "Listen port (overrides PORT)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	if flagPort != 0 {
		cfg.Port = flagPort
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}
