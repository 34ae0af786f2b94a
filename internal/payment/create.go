package payment

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"payment-service/internal/apperr"
	"payment-service/internal/audit"
	"payment-service/internal/logcontext"
	"payment-service/internal/model"
	"payment-service/internal/money"
	"payment-service/internal/provider"
	"payment-service/internal/store"
)

type CreateRequest struct {
	Amount        decimal.Decimal
	Currency      string
	Description   string
	PaymentMethod *string
	Metadata      map[string]string
}

type CreateResult struct {
	Payment      *model.Payment
	ClientSecret string
}

// Create opens a payment at the active gateway and records it. Nothing is
// stored unless the gateway accepted the payment.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateRequest) (res *CreateResult, err error) {
	ctx, finish := s.startOp(ctx, "create", attribute.String("user.id", userID.String()))
	defer finish(&err)

	currency, err := money.ParseCurrency(req.Currency)
	if err != nil {
		return nil, apperr.Validation("unsupported currency %q", req.Currency)
	}
	if err := money.Validate(req.Amount, currency); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	requester, err := s.requester(ctx, userID)
	if err != nil {
		return nil, err
	}

	gateway, err := s.providers.Active()
	if err != nil {
		return nil, apperr.Internal(err, "payment provider unavailable")
	}

	paymentID := uuid.New()
	ctx = logcontext.AppendCtx(ctx, slog.String("paymentId", paymentID.String()), slog.String("provider", string(gateway.Name())))

	gctx, cancel := s.withGatewayTimeout(ctx)
	defer cancel()

	intent, err := gateway.CreatePayment(gctx, provider.CreatePaymentRequest{
		Amount:         req.Amount,
		Currency:       currency,
		Description:    req.Description,
		PaymentMethod:  req.PaymentMethod,
		Metadata:       req.Metadata,
		IdempotencyKey: paymentID.String(),
	})
	if err != nil {
		return nil, s.gatewayError(ctx, "create", gateway, err)
	}

	now := s.now()
	p := &model.Payment{
		ID:                paymentID,
		UserID:            requester.ID,
		Provider:          gateway.Name(),
		ProviderPaymentID: intent.ProviderPaymentID,
		Amount:            req.Amount,
		Currency:          currency,
		Status:            provider.CanonicalStatus(intent.Status),
		PaymentMethod:     req.PaymentMethod,
		Description:       req.Description,
		Metadata:          mergeMetadata(req.Metadata, intent.Metadata),
		RefundedAmount:    decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.Status == model.StatusSucceeded {
		p.CapturedAt = &now
		p.CapturedAmount = p.Amount
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		return enqueueChange(ctx, tx, p, "", now)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Gateway accepted payment but storing it failed",
			"providerPaymentId", intent.ProviderPaymentID, "error", err)
		return nil, apperr.Internal(err, "failed to store payment")
	}

	s.logger.InfoContext(ctx, "Payment created", "status", p.Status, "providerPaymentId", p.ProviderPaymentID)
	s.audit.Record(ctx, &requester.ID, audit.ActionCreate, p, map[string]any{
		"amount":   p.Amount.String(),
		"currency": string(p.Currency),
		"provider": string(p.Provider),
		"status":   string(p.Status),
	})

	return &CreateResult{Payment: p, ClientSecret: intent.ClientSecret}, nil
}

func mergeMetadata(requested, gateway map[string]string) map[string]string {
	out := make(map[string]string, len(requested)+len(gateway))
	for k, v := range gateway {
		out[k] = v
	}
	for k, v := range requested {
		out[k] = v
	}
	return out
}
