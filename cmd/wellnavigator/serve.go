// cmd/wellnavigator/serve.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbgadvisor/WellNavigator2/internal/api"
	"github.com/sbgadvisor/WellNavigator2/internal/chat"
	"github.com/sbgadvisor/WellNavigator2/internal/common/config"
)

const sweepInterval = time.Minute

func newServeCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chat sessions over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address, overrides server.address")
	return cmd
}

func serve(cfg *config.Config) error {
	zapLog := newLogger(cfg)
	defer zapLog.Sync()

	zapLog.Info("Starting wellnavigator...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, zapLog)
	if err != nil {
		return err
	}
	defer a.Close()

	caps := a.pipeline.Capabilities(ctx)
	zapLog.Info("pipeline ready",
		zap.Bool("retrieval", caps.Retrieval),
		zap.Bool("search", caps.Search),
		zap.Bool("generation", caps.Generation),
	)

	registry := chat.NewRegistry(a.pipeline, config.GetDuration(cfg.Session.IdleTTL), a.log)
	go registry.Run(ctx, sweepInterval)

	server := api.NewServer(&api.Config{
		Address:         cfg.Server.Address,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: config.GetDuration(cfg.Server.ShutdownTimeout),
	}, a.pipeline, registry, a.log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		zapLog.Info("Shutdown signal received, stopping server...")
	case err := <-errCh:
		if err != nil {
			zapLog.Error("server failed", zap.Error(err))
			return err
		}
	}

	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		zapLog.Error("Error shutting down server", zap.Error(err))
	}

	zapLog.Info("wellnavigator stopped gracefully")
	return nil
}
