package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kurodrive/internal/repository/postgres"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema.",
	}

	run := func(apply func(*postgres.Migrator) error, done string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			m, err := postgres.NewMigrator(cfg.Database.URL())
			if err != nil {
				return err
			}
			defer m.Close()

			if err := apply(m); err != nil {
				return err
			}
			version, dirty, err := m.Version()
			if err != nil {
				logger.Info(cmd.Context(), done)
				return nil
			}
			logger.Info(cmd.Context(), done, "version", version, "dirty", dirty)
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations.",
		Args:  cobra.NoArgs,
		RunE:  run((*postgres.Migrator).Up, "migrations applied"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations.",
		Args:  cobra.NoArgs,
		RunE:  run((*postgres.Migrator).Down, "migrations rolled back"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			m, err := postgres.NewMigrator(cfg.Database.URL())
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty=%t)\n", version, dirty)
			return nil
		},
	})
	return cmd
}
