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

// Worker process entrypoint.
// Data flow:
// 1) Load config; flags override the environment.
// 2) Build app wiring.
// 3) Relay the election outbox to the event bus until SIGINT/SIGTERM.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("d21vote worker stopped with error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		storage string
		bus     string
		natsURL string
	)
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Publish pending election events",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("storage") {
				cfg.StorageDriver = storage
			}
			if cmd.Flags().Changed("event-bus") {
				cfg.EventBus = bus
			}
			if cmd.Flags().Changed("nats-url") {
				cfg.NATSURL = natsURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.BuildWorker(ctx, cfg)
			if err != nil {
				return fmt.Errorf("bootstrap worker: %w", err)
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Printf("worker shutdown close failed: %v", err)
				}
			}()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&storage, "storage", "", "storage driver: postgres or bbolt (overrides STORAGE_DRIVER)")
	cmd.Flags().StringVar(&bus, "event-bus", "", "event bus: inprocess or nats (overrides EVENT_BUS)")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL (overrides NATS_URL)")
	return cmd
}
