package main

import (
	"github.com/cropdesk/cropdesk/internal/config"
	"github.com/cropdesk/cropdesk/internal/store"
	"github.com/cropdesk/cropdesk/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:          "cropdesk-api",
	Short:        "cropdesk runs the marketplace label croppers behind an HTTP API",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
}

// setup loads the configuration and installs the global logger. The returned
// func flushes and restores the previous logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel), cfg.Service.LogFormat)
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	zap.S().Named("store").Infow("Initializing data store", "type", cfg.Database.Type)
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	return store.NewStore(db), nil
}
