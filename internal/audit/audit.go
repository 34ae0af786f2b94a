// Package audit records who did what to which payment.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"payment-service/internal/metrics"
	"payment-service/internal/model"
)

const (
	ActionCreate    = "payment.create"
	ActionCapture   = "payment.capture"
	ActionRefund    = "payment.refund"
	ActionReconcile = "payment.reconcile"
	ActionWebhook   = "payment.webhook"
)

type Log interface {
	Record(ctx context.Context, entry model.AuditEntry) error
}

type Repository interface {
	Insert(ctx context.Context, entry *model.AuditEntry) error
}

// RepositoryLog writes entries through a Repository.
type RepositoryLog struct {
	repo Repository
	now  func() time.Time
}

func NewRepositoryLog(repo Repository) *RepositoryLog {
	return &RepositoryLog{repo: repo, now: time.Now}
}

func (l *RepositoryLog) Record(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}
	if entry.Resource == "" {
		entry.Resource = model.AuditResourcePayments
	}
	return l.repo.Insert(ctx, &entry)
}

// Recorder wraps a Log so that a failing audit write is logged and counted
// but never fails the operation it describes.
type Recorder struct {
	log    Log
	logger *slog.Logger
}

func NewRecorder(log Log, logger *slog.Logger) *Recorder {
	return &Recorder{log: log, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, userID *uuid.UUID, action string, p *model.Payment, details map[string]any) {
	entry := model.AuditEntry{
		UserID:     userID,
		Action:     action,
		Resource:   model.AuditResourcePayments,
		ResourceID: p.ID.String(),
		Details:    details,
	}
	if err := r.log.Record(ctx, entry); err != nil {
		metrics.AuditFailure()
		r.logger.ErrorContext(ctx, "Error recording audit entry", "action", action, "error", err)
	}
}
