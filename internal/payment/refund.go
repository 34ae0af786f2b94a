package payment

import (
	"context"
	"errors"
	"fmt"
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

type RefundRequest struct {
	// Amount nil refunds whatever has not been refunded yet.
	Amount *decimal.Decimal
	Reason string
}

type RefundResult struct {
	Refund  *model.Refund
	Payment *model.Payment
}

func (s *Service) Refund(ctx context.Context, userID, paymentID uuid.UUID, req RefundRequest) (res *RefundResult, err error) {
	ctx, finish := s.startOp(ctx, "refund", attribute.String("payment.id", paymentID.String()))
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

	if !p.Refundable() {
		return nil, apperr.Conflict("payment %s is %s and cannot be refunded", p.ID, p.Status)
	}

	amount := p.RemainingAmount()
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return nil, apperr.Validation("refund amount must be positive")
	}
	if !amount.Equal(amount.Truncate(p.Currency.Exponent())) {
		return nil, apperr.Validation("refund amount has too many decimal places for %s", p.Currency)
	}
	if amount.GreaterThan(p.RemainingAmount()) {
		return nil, apperr.Validation("refund amount %s exceeds remaining %s", amount, p.RemainingAmount())
	}

	gateway, err := s.providerFor(p.Provider)
	if err != nil {
		return nil, err
	}

	gctx, cancel := s.withGatewayTimeout(ctx)
	defer cancel()

	result, err := gateway.RefundPayment(gctx, p.ProviderPaymentID, &amount, p.Currency, req.Reason)
	if err != nil {
		return nil, s.gatewayError(ctx, "refund", gateway, err)
	}

	if result.Amount.IsPositive() && !result.Amount.Equal(amount) {
		s.logger.WarnContext(ctx, "Gateway refunded a different amount than requested",
			"requested", amount.String(), "refunded", result.Amount.String())
		amount = result.Amount
	}

	now := s.now()
	refund := &model.Refund{
		ID:               uuid.New(),
		PaymentID:        p.ID,
		Provider:         p.Provider,
		ProviderRefundID: result.ProviderRefundID,
		Amount:           amount,
		Reason:           req.Reason,
		Status:           provider.CanonicalRefundStatus(result.Status),
		CreatedAt:        now,
	}
	if refund.Status != model.RefundPending {
		refund.ProcessedAt = &now
	}

	var previous model.PaymentStatus
	duplicate := false
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockPayment(ctx, p.ID)
		if err != nil {
			return err
		}
		previous = locked.Status
		p = locked

		// A refund webhook may have recorded this refund while the gateway
		// call was in flight. Its accounting already holds.
		existing, err := tx.LockRefund(ctx, locked.Provider, refund.ProviderRefundID)
		if err == nil {
			refund = existing
			duplicate = true
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if refund.Status.Counted() {
			if err := locked.ApplyRefund(refund.Amount, now); err != nil {
				if errors.Is(err, model.ErrRefundExceeds) || errors.Is(err, model.ErrNotRefundable) {
					return apperr.Conflict("refund no longer fits payment %s: %s", locked.ID, err)
				}
				return err
			}
		}

		inserted, err := tx.InsertRefund(ctx, refund)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("refund %s was recorded concurrently", refund.ProviderRefundID)
		}
		if !refund.Status.Counted() {
			return nil
		}

		if err := tx.UpdatePayment(ctx, locked); err != nil {
			return err
		}
		return enqueueChange(ctx, tx, locked, previous, now)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Gateway refunded but storing the refund failed, manual reconciliation needed",
			"providerRefundId", refund.ProviderRefundID, "amount", refund.Amount.String(), "error", err)
		return nil, txError(err, "failed to store refund")
	}

	s.audit.Record(ctx, &requester.ID, audit.ActionRefund, p, map[string]any{
		"refundId":         refund.ID.String(),
		"providerRefundId": refund.ProviderRefundID,
		"amount":           refund.Amount.String(),
		"status":           string(refund.Status),
		"from":             string(previous),
		"to":               string(p.Status),
		"viaWebhook":       duplicate,
	})

	if refund.Status == model.RefundFailed {
		s.logger.WarnContext(ctx, "Gateway declined refund", "providerRefundId", refund.ProviderRefundID)
		return nil, apperr.Internal(nil, "refund was declined by the payment provider")
	}

	s.logger.InfoContext(ctx, "Payment refunded", "amount", refund.Amount.String(), "status", p.Status)
	return &RefundResult{Refund: refund, Payment: s.withRefunds(ctx, p)}, nil
}
