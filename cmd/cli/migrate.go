package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hoopval/adapters/postgres"
)

func newMigrateCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL ledger schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeDB, err := openMigrator(cmd, global)
			if err != nil {
				return err
			}
			defer closeDB()
			return m.Up(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeDB, err := openMigrator(cmd, global)
			if err != nil {
				return err
			}
			defer closeDB()

			status, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			applied := 0
			out := cmd.OutOrStdout()
			for _, s := range status {
				state := "pending"
				if s.Applied {
					state = "applied"
					applied++
				}
				fmt.Fprintf(out, "  %s_%s: %s\n", s.Version, s.Name, state)
			}
			fmt.Fprintf(out, "%d/%d migrations applied\n", applied, len(status))
			return nil
		},
	})

	return cmd
}

func openMigrator(cmd *cobra.Command, global *globalOptions) (*postgres.Migrator, func(), error) {
	cfg, logger, err := global.load()
	if err != nil {
		return nil, nil, err
	}
	if err := requireDatabase(cfg); err != nil {
		return nil, nil, err
	}
	db, err := postgres.Open(cmd.Context(), cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewMigrator(db, logger), func() { db.Close() }, nil
}
