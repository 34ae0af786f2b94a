package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"payment-service/internal/audit"
	"payment-service/internal/logcontext"
	"payment-service/internal/model"
	"payment-service/internal/provider"
	"payment-service/internal/store"
)

// Reconcile asks the gateway for the payment's status and applies it when it
// moves the payment forward. Refund states are never inferred from it.
func (s *Service) Reconcile(ctx context.Context, userID, paymentID uuid.UUID) (res *model.Payment, err error) {
	ctx, finish := s.startOp(ctx, "reconcile", attribute.String("payment.id", paymentID.String()))
	defer finish(&err)
	ctx = logcontext.AppendCtx(ctx, slog.String("paymentId", paymentID.String()))

	requester, err := s.requester(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, err := s.loadOwned(ctx, requester, paymentID)
	if err != nil {
		return nil, err
	}

	updated, _, err := s.reconcile(ctx, &requester.ID, p)
	if err != nil {
		return nil, err
	}
	return s.withRefunds(ctx, updated), nil
}

// ReconcileStale reconciles a payment on behalf of the system, for the
// background worker. It reports whether the payment changed.
func (s *Service) ReconcileStale(ctx context.Context, p *model.Payment) (changed bool, err error) {
	ctx, finish := s.startOp(ctx, "reconcile_stale", attribute.String("payment.id", p.ID.String()))
	defer finish(&err)
	ctx = logcontext.AppendCtx(ctx, slog.String("paymentId", p.ID.String()))

	_, changed, err = s.reconcile(ctx, nil, p)
	return changed, err
}

func (s *Service) reconcile(ctx context.Context, actor *uuid.UUID, p *model.Payment) (*model.Payment, bool, error) {
	if p.Status.IsCaptured() || p.Status.IsTerminal() {
		return p, false, nil
	}

	gateway, err := s.providerFor(p.Provider)
	if err != nil {
		return nil, false, err
	}

	gctx, cancel := s.withGatewayTimeout(ctx)
	defer cancel()

	intent, gerr := gateway.GetPaymentStatus(gctx, p.ProviderPaymentID)
	next := model.StatusPending
	if gerr == nil {
		next = provider.CanonicalStatus(intent.Status)
	}
	var previous model.PaymentStatus
	changed := false

	// Every check is stamped, failed ones included, so a payment the gateway
	// keeps reporting as pending rotates to the back of the stale sweep.
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		previous = locked.Status
		p = locked

		now := s.now()
		locked.ReconciledAt = &now
		if next != model.StatusPending && locked.Status.CanTransitionTo(next) {
			changed, err = locked.Transition(next, now)
			if err != nil && !errors.Is(err, model.ErrIllegalTransition) {
				return err
			}
		}

		if err := tx.UpdatePayment(ctx, locked); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return enqueueChange(ctx, tx, locked, previous, locked.UpdatedAt)
	})
	if gerr != nil {
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to stamp reconcile attempt", "error", err)
		}
		return nil, false, s.gatewayError(ctx, "status", gateway, gerr)
	}
	if err != nil {
		return nil, false, txError(err, "failed to store reconciled status")
	}

	if changed {
		s.logger.InfoContext(ctx, "Payment reconciled", "from", previous, "to", p.Status)
		s.audit.Record(ctx, actor, audit.ActionReconcile, p, map[string]any{
			"from":          string(previous),
			"to":            string(p.Status),
			"gatewayStatus": intent.Status,
		})
	} else if next != previous {
		s.logger.InfoContext(ctx, "Gateway status not applied", "local", previous, "gatewayStatus", intent.Status)
	}
	return p, changed, nil
}
