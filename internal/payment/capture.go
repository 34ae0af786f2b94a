package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"payment-service/internal/apperr"
	"payment-service/internal/audit"
	"payment-service/internal/logcontext"
	"payment-service/internal/model"
	"payment-service/internal/provider"
	"payment-service/internal/store"
)

// Capture settles an authorized payment. amount nil captures in full.
func (s *Service) Capture(ctx context.Context, userID, paymentID uuid.UUID, amount *decimal.Decimal) (res *model.Payment, err error) {
	ctx, finish := s.startOp(ctx, "capture", attribute.String("payment.id", paymentID.String()))
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

	if p.Status.IsCaptured() {
		return nil, apperr.Conflict("payment %s is already captured", p.ID)
	}
	if p.Status.IsTerminal() {
		return nil, apperr.Conflict("payment %s is %s and cannot be captured", p.ID, p.Status)
	}
	if amount != nil {
		if !amount.IsPositive() || amount.GreaterThan(p.Amount) {
			return nil, apperr.Validation("capture amount must be positive and at most %s", p.Amount)
		}
		if !amount.Equal(amount.Truncate(p.Currency.Exponent())) {
			return nil, apperr.Validation("capture amount has too many decimal places for %s", p.Currency)
		}
	}

	gateway, err := s.providerFor(p.Provider)
	if err != nil {
		return nil, err
	}

	gctx, cancel := s.withGatewayTimeout(ctx)
	defer cancel()

	intent, err := gateway.CapturePayment(gctx, p.ProviderPaymentID, amount, p.Currency)
	if err != nil {
		return nil, s.gatewayError(ctx, "capture", gateway, err)
	}

	next := provider.CanonicalStatus(intent.Status)
	var previous model.PaymentStatus
	changed := false

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		previous = locked.Status
		p = locked

		// A webhook may have settled the payment while the gateway call was in
		// flight. It only knows the authorized amount, so a partial capture
		// still lowers the ceiling while nothing has been refunded.
		if locked.Status.IsCaptured() {
			if amount == nil || locked.Status != model.StatusSucceeded || locked.CapturedAmount.Equal(*amount) {
				return nil
			}
			locked.CapturedAmount = *amount
			return tx.UpdatePayment(ctx, locked)
		}
		// An unrecognized gateway status never moves a payment.
		if next == model.StatusPending {
			return nil
		}

		if amount != nil {
			locked.CapturedAmount = *amount
		}
		changed, err = locked.Transition(next, s.now())
		if errors.Is(err, model.ErrIllegalTransition) {
			return apperr.Conflict("payment %s moved to %s during capture", locked.ID, locked.Status)
		}
		if err != nil {
			return err
		}

		if err := tx.UpdatePayment(ctx, locked); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return enqueueChange(ctx, tx, locked, previous, locked.UpdatedAt)
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.logger.WarnContext(ctx, "Gateway captured payment but local state rejected it",
				"gatewayStatus", intent.Status, "error", err)
		}
		return nil, txError(err, "failed to store capture")
	}

	s.logger.InfoContext(ctx, "Payment captured", "from", previous, "to", p.Status)
	s.audit.Record(ctx, &requester.ID, audit.ActionCapture, p, map[string]any{
		"from":          string(previous),
		"to":            string(p.Status),
		"gatewayStatus": intent.Status,
		"captured":      p.CapturedAmount.String(),
	})

	return s.withRefunds(ctx, p), nil
}
