package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventvault/common/logging"
	"github.com/telhawk-systems/eventvault/pipeline/internal/config"
	"github.com/telhawk-systems/eventvault/pipeline/internal/consumer"
	"github.com/telhawk-systems/eventvault/pipeline/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion HTTP service",
	Long: `Run the ingestion HTTP service.

The service accepts envelopes on POST /ingestion, consumes anchored
envelopes from the configured transport and exposes replay, DLQ and
health endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	slog.Info("Starting pipeline service",
		slog.Int("port", cfg.Server.Port),
		slog.String("store", cfg.Store.Backend),
		slog.String("transport", cfg.Transport.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.js != nil && cfg.Transport.Consume {
		stopConsumer, err := consumer.SubscribeJetStream(ctx, rt.js, rt.pipeline.Consumer)
		if err != nil {
			return fmt.Errorf("subscribe to envelope stream: %w", err)
		}
		defer stopConsumer()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(rt.pipeline.Handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Pipeline service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
		return err
	}
	slog.Info("Server stopped")
	return nil
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.WriteTimeout > 0 {
		return cfg.Server.WriteTimeout
	}
	return 30 * time.Second
}
