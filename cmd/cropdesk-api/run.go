package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/cropdesk/cropdesk/internal/api_server"
	"github.com/cropdesk/cropdesk/internal/config"
	"github.com/cropdesk/cropdesk/internal/mirror"
	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/cropdesk/cropdesk/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the cropdesk api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}
		defer done()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("initializing data store: %w", err)
		}
		defer store.Close()

		if err := store.InitialMigration(cmd.Context()); err != nil {
			return fmt.Errorf("running initial migration: %w", err)
		}

		registry, err := tools.NewDefaultRegistry(cfg.Service.DefaultDeadline, cfg.Service.ToolDeadlines)
		if err != nil {
			return fmt.Errorf("building tool registry: %w", err)
		}

		m, err := newMirror(cfg)
		if err != nil {
			return fmt.Errorf("configuring artifact mirror: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Named("api_server").Errorw("creating listener", "error", err)
				return
			}

			server := apiserver.New(cfg, store, registry, m, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Named("api_server").Errorw("Error running server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Named("metrics_server").Errorw("creating listener", "error", err)
				return
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener, metrics.NewHistoryStatsCollector(store.History()))
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Named("metrics_server").Errorw("Error running server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newMirror(cfg *config.Config) (mirror.Mirror, error) {
	s3 := cfg.Service.S3
	if s3.Endpoint == "" {
		zap.S().Named("mirror").Info("artifact mirror disabled")
	}
	return mirror.New(
		mirror.WithEndpoint(s3.Endpoint),
		mirror.WithBucket(s3.Bucket),
		mirror.WithCredentials(s3.AccessKey, s3.SecretKey),
		mirror.WithSSL(s3.UseSSL),
	)
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
