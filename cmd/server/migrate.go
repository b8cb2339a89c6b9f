package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Xausdorf/payrelay/internal/infrastructure/config"
	"github.com/Xausdorf/payrelay/internal/infrastructure/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema for the delivery and journal stores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := config.LoadDatabaseURL()
			if err != nil {
				return err
			}

			pool, err := postgres.NewPool(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(pool); err != nil {
				return err
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}
