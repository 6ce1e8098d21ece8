package main

import (
	"log"
	"os"

	postgresadapter "d21vote/contexts/elections/d21-voting/adapters/postgres"
	"d21vote/internal/platform/config"
	"d21vote/internal/platform/db"

	"github.com/spf13/cobra"
)

// Migrate entrypoint: creates or updates the election tables in Postgres.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("d21vote migrate failed: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the election schema to Postgres",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil && !cmd.Flags().Changed("dsn") {
				return err
			}
			if cmd.Flags().Changed("dsn") {
				cfg.PostgresDSN = dsn
			}

			logger := cfg.NewLogger().With("service", cfg.ServiceName, "process", "migrate")
			pg, err := db.Connect(cmd.Context(), cfg.PostgresDSN, logger)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := postgresadapter.Migrate(cmd.Context(), pg.DB); err != nil {
				return err
			}
			logger.Info("election schema migrated",
				"event", "migrate_completed",
				"module", "cmd/migrate",
				"layer", "platform",
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN (overrides POSTGRES_DSN)")
	return cmd
}
