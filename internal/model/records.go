package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Refund struct {
	ID               uuid.UUID       `json:"id"`
	PaymentID        uuid.UUID       `json:"paymentId"`
	Provider         Provider        `json:"provider"`
	ProviderRefundID string          `json:"providerRefundId"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           string          `json:"reason,omitempty"`
	Status           RefundStatus    `json:"status"`
	ProcessedAt      *time.Time      `json:"processedAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// WebhookEvent is the log row of one inbound gateway notification.
// EventID is nil when the delivery was rejected before its body could be trusted.
type WebhookEvent struct {
	ID                uuid.UUID
	Provider          Provider
	EventType         string
	EventID           *string
	RawPayload        string
	SignatureVerified bool
	Processed         bool
	ErrorMessage      *string
	CreatedAt         time.Time
	ProcessedAt       *time.Time
}

const AuditResourcePayments = "payments"

type AuditEntry struct {
	ID         uuid.UUID
	UserID     *uuid.UUID
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]any
	CreatedAt  time.Time
}

// OutboxMessage is a payment state change waiting to be published.
type OutboxMessage struct {
	ID              uuid.UUID
	PaymentID       uuid.UUID
	EventType       string
	Payload         string
	CreatedAt       time.Time
	ScheduledAt     *time.Time
	PublishedAt     *time.Time
	PublishAttempts int
	Error           *string
}

type User struct {
	ID    uuid.UUID
	Email string
	Role  string
}
