package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"d21vote/internal/app/bootstrap"
	"d21vote/internal/platform/config"

	"github.com/spf13/cobra"
)

// API process entrypoint.
// Data flow:
// 1) Load config; flags override the environment.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP until SIGINT/SIGTERM.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("d21vote api stopped with error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port    string
		storage string
		bus     string
	)
	cmd := &cobra.Command{
		Use:          "api",
		Short:        "Serve the D21 voting HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTPPort = port
			}
			if cmd.Flags().Changed("storage") {
				cfg.StorageDriver = storage
			}
			if cmd.Flags().Changed("event-bus") {
				cfg.EventBus = bus
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.BuildAPI(ctx, cfg)
			if err != nil {
				return fmt.Errorf("bootstrap api: %w", err)
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Printf("api shutdown close failed: %v", err)
				}
			}()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP port (overrides HTTP_PORT)")
	cmd.Flags().StringVar(&storage, "storage", "", "storage driver: memory, postgres or bbolt (overrides STORAGE_DRIVER)")
	cmd.Flags().StringVar(&bus, "event-bus", "", "event bus: inprocess or nats (overrides EVENT_BUS)")
	return cmd
}
