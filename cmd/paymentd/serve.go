package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"payment-service/internal/api"
	"payment-service/internal/db"
	"payment-service/internal/kafka"
	"payment-service/internal/metrics"
	"payment-service/internal/outbox"
	"payment-service/internal/reconcile"
	"payment-service/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the outbox producer and the reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations before starting")

	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate {
		if err := db.RunMigrations(a.cfg.Database.ConnString()); err != nil {
			return err
		}
	}

	metrics.Setup(a.cfg.Metrics, a.logger)

	shutdownTracing, err := tracing.Setup(a.cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	if a.cfg.Outbox.Enabled {
		writer := kafka.NewWriter(a.cfg.Kafka)
		defer writer.Close()
		outbox.NewProducer(db.NewOutboxRepository(a.pool), writer, a.cfg.Outbox, a.logger).Start(ctx)
	}
	if a.cfg.Reconcile.Enabled {
		reconcile.NewWorker(a.payments, a.service, a.cfg.Reconcile, a.logger).Start(ctx)
	}

	server, err := api.NewServer(a.service, a.pipeline, a.cfg.Auth.JWTSecret, a.logger)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "port", a.cfg.Server.Port, "activeProvider", a.selector.ActiveName())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
