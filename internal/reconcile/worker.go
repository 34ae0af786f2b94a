// Package reconcile periodically asks gateways about payments that have been
// waiting too long, for when a webhook never arrives.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"payment-service/internal/config"
	"payment-service/internal/logcontext"
	"payment-service/internal/model"
)

const (
	defaultInterval   = time.Minute
	defaultStaleAfter = 15 * time.Minute
	defaultBatchSize  = 50
)

var (
	checkedCounter = metrics.GetOrCreateCounter(`payment_reconcile_total{result="checked"}`)
	changedCounter = metrics.GetOrCreateCounter(`payment_reconcile_total{result="changed"}`)
	failedCounter  = metrics.GetOrCreateCounter(`payment_reconcile_total{result="failed"}`)
)

type StaleSource interface {
	ListStalePayments(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error)
}

type Reconciler interface {
	ReconcileStale(ctx context.Context, p *model.Payment) (bool, error)
}

type Result struct {
	Checked int
	Changed int
	Failed  int
}

type Worker struct {
	source     StaleSource
	reconciler Reconciler
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	logger     *slog.Logger
	now        func() time.Time
}

func NewWorker(source StaleSource, reconciler Reconciler, cfg config.Reconcile, logger *slog.Logger) *Worker {
	w := &Worker{
		source:     source,
		reconciler: reconciler,
		interval:   time.Duration(cfg.IntervalMs) * time.Millisecond,
		staleAfter: time.Duration(cfg.StaleAfterMs) * time.Millisecond,
		batchSize:  cfg.BatchSize,
		logger:     logger,
		now:        time.Now,
	}
	if w.interval <= 0 {
		w.interval = defaultInterval
	}
	if w.staleAfter <= 0 {
		w.staleAfter = defaultStaleAfter
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	return w
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil {
					w.logger.ErrorContext(ctx, "Reconcile run failed", "error", err)
				}
			case <-ctx.Done():
				w.logger.InfoContext(ctx, "Context done, stopping reconciler")
				return
			}
		}
	}()
}

// RunOnce reconciles one batch of stale payments. A failure on one payment
// does not stop the others.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	var res Result
	stale, err := w.source.ListStalePayments(ctx, w.now().Add(-w.staleAfter), w.batchSize)
	if err != nil {
		return res, err
	}

	for _, p := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		checkedCounter.Inc()

		changed, err := w.reconciler.ReconcileStale(ctx, p)
		if err != nil {
			res.Failed++
			failedCounter.Inc()
			w.logger.WarnContext(ctx, "Failed to reconcile payment", "paymentId", p.ID, "error", err)
			continue
		}
		if changed {
			res.Changed++
			changedCounter.Inc()
		}
	}

	if res.Checked > 0 {
		w.logger.InfoContext(ctx, "Reconcile run finished", "checked", res.Checked, "changed", res.Changed, "failed", res.Failed)
	}
	return res, nil
}
