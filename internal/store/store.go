// Package store is the persistence contract of the payment core. Every state
// change happens inside WithTx on rows locked through Tx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"payment-service/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	// WithTx runs fn in one transaction. fn's error rolls it back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// GetPayment returns the payment with its refunds.
	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	// ListPayments returns one page and the total matching the filter.
	ListPayments(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int, error)
	// ListStalePayments returns PENDING and PROCESSING payments not updated since before.
	ListStalePayments(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error)

	// InsertWebhookEvent logs a delivery. When (provider, event id) is already
	// logged nothing is written, false is returned and e is overwritten with
	// the existing row.
	InsertWebhookEvent(ctx context.Context, e *model.WebhookEvent) (bool, error)
	MarkWebhookEventFailed(ctx context.Context, id uuid.UUID, message string) error
}

type Tx interface {
	InsertPayment(ctx context.Context, p *model.Payment) error
	LockPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	LockPaymentByProviderID(ctx context.Context, provider model.Provider, providerPaymentID string) (*model.Payment, error)
	UpdatePayment(ctx context.Context, p *model.Payment) error

	// InsertRefund reports false when the provider refund id is already recorded.
	InsertRefund(ctx context.Context, r *model.Refund) (bool, error)
	LockRefund(ctx context.Context, provider model.Provider, providerRefundID string) (*model.Refund, error)
	UpdateRefund(ctx context.Context, r *model.Refund) error

	LockWebhookEvent(ctx context.Context, id uuid.UUID) (*model.WebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) error

	EnqueueOutbox(ctx context.Context, m *model.OutboxMessage) error
}
