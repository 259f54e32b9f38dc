package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer done()

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}
		defer store.Close()

		if err := store.InitialMigration(cmd.Context()); err != nil {
			return fmt.Errorf("running initial migration: %w", err)
		}

		zap.S().Info("Db migrated")
		return nil
	},
}
