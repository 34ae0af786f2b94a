package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payment-service/internal/money"
)

const EventPaymentStatusChanged = "payment.status_changed"

// PaymentEvent is published to the payment-events topic for downstream
// notification dispatch.
type PaymentEvent struct {
	ID             uuid.UUID       `json:"id"`
	Type           string          `json:"type"`
	PaymentID      uuid.UUID       `json:"paymentId"`
	UserID         uuid.UUID       `json:"userId"`
	Provider       Provider        `json:"provider"`
	Status         PaymentStatus   `json:"status"`
	PreviousStatus PaymentStatus   `json:"previousStatus,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	CapturedAmount decimal.Decimal `json:"capturedAmount"`
	RefundedAmount decimal.Decimal `json:"refundedAmount"`
	Currency       money.Currency  `json:"currency"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// NewStatusChangedMessage builds the outbox row for a payment that moved from previous.
func NewStatusChangedMessage(p *Payment, previous PaymentStatus, at time.Time) (*OutboxMessage, error) {
	event := PaymentEvent{
		ID:             uuid.New(),
		Type:           EventPaymentStatusChanged,
		PaymentID:      p.ID,
		UserID:         p.UserID,
		Provider:       p.Provider,
		Status:         p.Status,
		PreviousStatus: previous,
		Amount:         p.Amount,
		CapturedAmount: p.CapturedAmount,
		RefundedAmount: p.RefundedAmount,
		Currency:       p.Currency,
		OccurredAt:     at,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		ID:          event.ID,
		PaymentID:   p.ID,
		EventType:   event.Type,
		Payload:     string(payload),
		CreatedAt:   at,
		ScheduledAt: &at,
	}, nil
}
