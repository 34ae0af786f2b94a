package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"payment-service/internal/audit"
	"payment-service/internal/config"
	"payment-service/internal/db"
	"payment-service/internal/logging"
	"payment-service/internal/payment"
	"payment-service/internal/provider"
	"payment-service/internal/provider/registry"
	"payment-service/internal/webhook"
)

// app holds the wired payment core shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	payments  *db.PaymentRepository
	selector  *provider.Selector
	service   *payment.Service
	pipeline  *webhook.Pipeline
	auditRepo *db.AuditRepository
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := logging.GetLogger(cfg.Logs)

	pool, err := db.GetPool(ctx, cfg.Database.ConnString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	selector, err := provider.NewSelector(cfg.Payments, registry.New)
	if err != nil {
		pool.Close()
		return nil, err
	}

	payments := db.NewPaymentRepository(pool)
	auditRepo := db.NewAuditRepository(pool)
	auditLog := audit.NewRepositoryLog(auditRepo)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		payments:  payments,
		selector:  selector,
		auditRepo: auditRepo,
		service: payment.NewService(payments, selector, db.NewUserRepository(pool),
			payment.NewRolePolicy(cfg.Auth.PrivilegedRoles), auditLog, logger, cfg.Payments.GatewayTimeout()),
		pipeline: webhook.NewPipeline(payments, selector, auditLog, logger),
	}
	return a, nil
}

func (a *app) Close() {
	a.pool.Close()
}
