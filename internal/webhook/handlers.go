package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"payment-service/internal/apperr"
	"payment-service/internal/model"
	"payment-service/internal/provider"
	"payment-service/internal/store"
)

// errNotCaptured marks a refund that arrived ahead of the capture it refunds.
// The pipeline answers with a server error so the gateway redelivers it.
var errNotCaptured = errors.New("payment not captured yet")

// Change is a payment mutated by a handler. The pipeline persists it and
// emits the outbox message.
type Change struct {
	Payment  *model.Payment
	Previous model.PaymentStatus
	Details  map[string]any
}

// Handler applies one event inside the pipeline's transaction. A nil Change
// means the event was valid but left the payment as it was.
type Handler func(ctx context.Context, tx store.Tx, name model.Provider, event *provider.WebhookEvent, at time.Time) (*Change, error)

func defaultHandlers() map[provider.EventKind]Handler {
	return map[provider.EventKind]Handler{
		provider.KindPaymentSucceeded:  statusHandler(model.StatusSucceeded),
		provider.KindPaymentFailed:     statusHandler(model.StatusFailed),
		provider.KindPaymentCancelled:  statusHandler(model.StatusCancelled),
		provider.KindPaymentProcessing: statusHandler(model.StatusProcessing),
		provider.KindRefund:            handleRefund,
	}
}

func lockTarget(ctx context.Context, tx store.Tx, name model.Provider, event *provider.WebhookEvent) (*model.Payment, error) {
	if event.Data.ProviderPaymentID == "" {
		return nil, apperr.Validation("event %s names no payment", event.ID)
	}
	p, err := tx.LockPaymentByProviderID(ctx, name, event.Data.ProviderPaymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("no %s payment %s", name, event.Data.ProviderPaymentID)
	}
	return p, err
}

func statusHandler(next model.PaymentStatus) Handler {
	return func(ctx context.Context, tx store.Tx, name model.Provider, event *provider.WebhookEvent, at time.Time) (*Change, error) {
		p, err := lockTarget(ctx, tx, name, event)
		if err != nil {
			return nil, err
		}

		// Late notifications about an earlier stage are stale, not conflicts.
		if p.Status.IsCaptured() && next != model.StatusFailed && next != model.StatusCancelled {
			return nil, nil
		}

		previous := p.Status
		changed, err := p.Transition(next, at)
		if errors.Is(err, model.ErrIllegalTransition) {
			return nil, apperr.Wrap(apperr.KindConflict, err, "payment %s cannot move from %s to %s", p.ID, previous, next)
		}
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, nil
		}
		return &Change{Payment: p, Previous: previous}, nil
	}
}

// handleRefund records a gateway refund idempotently and keeps the payment's
// refunded total equal to the sum of its pending and succeeded refunds.
func handleRefund(ctx context.Context, tx store.Tx, name model.Provider, event *provider.WebhookEvent, at time.Time) (*Change, error) {
	if event.Data.ProviderRefundID == "" {
		return nil, apperr.Validation("refund event %s names no refund", event.ID)
	}
	p, err := lockTarget(ctx, tx, name, event)
	if err != nil {
		return nil, err
	}
	if !p.Status.IsCaptured() {
		if p.Status.IsTerminal() {
			return nil, apperr.Conflict("refund %s targets %s payment %s", event.Data.ProviderRefundID, p.Status, p.ID)
		}
		return nil, fmt.Errorf("refund %s for payment %s: %w", event.Data.ProviderRefundID, p.ID, errNotCaptured)
	}
	previous := p.Status
	status := provider.CanonicalRefundStatus(event.Data.Status)

	existing, err := tx.LockRefund(ctx, name, event.Data.ProviderRefundID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return recordRefund(ctx, tx, p, name, event, status, at)
	case err != nil:
		return nil, err
	}

	if existing.Status != model.RefundPending || status == model.RefundPending {
		return nil, nil
	}

	existing.Status = status
	existing.ProcessedAt = &at
	if err := tx.UpdateRefund(ctx, existing); err != nil {
		return nil, err
	}
	if status != model.RefundFailed {
		return nil, nil
	}

	if err := p.ReleaseRefund(existing.Amount, at); err != nil {
		return nil, apperr.Wrap(apperr.KindConflict, err, "cannot release refund %s", existing.ProviderRefundID)
	}
	return &Change{Payment: p, Previous: previous, Details: map[string]any{
		"providerRefundId": existing.ProviderRefundID,
		"refundStatus":     string(status),
		"released":         existing.Amount.String(),
	}}, nil
}

func recordRefund(
	ctx context.Context,
	tx store.Tx,
	p *model.Payment,
	name model.Provider,
	event *provider.WebhookEvent,
	status model.RefundStatus,
	at time.Time,
) (*Change, error) {
	if event.Data.Amount == nil || !event.Data.Amount.IsPositive() {
		return nil, apperr.Validation("refund event %s carries no amount", event.ID)
	}
	amount := *event.Data.Amount
	previous := p.Status

	if status.Counted() {
		if err := p.ApplyRefund(amount, at); err != nil {
			return nil, apperr.Wrap(apperr.KindConflict, err, "refund %s does not fit payment %s",
				event.Data.ProviderRefundID, p.ID)
		}
	}

	refund := &model.Refund{
		ID:               uuid.New(),
		PaymentID:        p.ID,
		Provider:         name,
		ProviderRefundID: event.Data.ProviderRefundID,
		Amount:           amount,
		Reason:           "gateway initiated",
		Status:           status,
		CreatedAt:        at,
	}
	if status != model.RefundPending {
		refund.ProcessedAt = &at
	}
	if _, err := tx.InsertRefund(ctx, refund); err != nil {
		return nil, err
	}
	if !status.Counted() {
		return nil, nil
	}

	return &Change{Payment: p, Previous: previous, Details: map[string]any{
		"providerRefundId": refund.ProviderRefundID,
		"refundStatus":     string(status),
		"amount":           amount.String(),
	}}, nil
}
