// Package provider defines the capability set every payment gateway adapter
// implements, the gateway status table and the process-wide selector.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"payment-service/internal/model"
	"payment-service/internal/money"
)

var (
	ErrNotInitialized     = errors.New("provider not initialized")
	ErrMissingCredentials = errors.New("provider credentials missing")
	ErrUnsupported        = errors.New("operation not supported by provider")
)

// Config carries the credentials of one gateway.
type Config struct {
	APIKey        string
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Environment   string
	// Timeout bounds a single HTTP exchange with the gateway.
	Timeout time.Duration
}

type CreatePaymentRequest struct {
	Amount        decimal.Decimal
	Currency      money.Currency
	Description   string
	PaymentMethod *string
	Metadata      map[string]string
	// IdempotencyKey identifies the logical operation at the gateway.
	IdempotencyKey string
}

// PaymentIntent is the gateway's view of a payment. Status is the raw
// gateway status; CanonicalStatus maps it.
type PaymentIntent struct {
	ProviderPaymentID string
	Status            string
	ClientSecret      string
	Amount            decimal.Decimal
	Metadata          map[string]string
}

type RefundResult struct {
	ProviderRefundID string
	Status           string
	Amount           decimal.Decimal
}

type EventKind string

const (
	KindPaymentSucceeded  EventKind = "payment_succeeded"
	KindPaymentFailed     EventKind = "payment_failed"
	KindPaymentCancelled  EventKind = "payment_cancelled"
	KindPaymentProcessing EventKind = "payment_processing"
	KindRefund            EventKind = "refund"
	KindUnknown           EventKind = "unknown"
)

type EventData struct {
	ProviderPaymentID string
	ProviderRefundID  string
	Status            string
	Amount            *decimal.Decimal
	Currency          money.Currency
	Raw               map[string]any
}

// WebhookEvent is a parsed gateway notification. ID is unique per provider.
type WebhookEvent struct {
	ID   string
	Type string
	Kind EventKind
	Data EventData
}

type Provider interface {
	Name() model.Provider
	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
	// Initialize validates credentials. It fails fast when they are missing.
	Initialize(cfg Config) error

	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentIntent, error)
	// CapturePayment captures amount, or the full authorized amount when amount is nil.
	CapturePayment(ctx context.Context, providerPaymentID string, amount *decimal.Decimal, currency money.Currency) (*PaymentIntent, error)
	// RefundPayment refunds amount, or the full captured amount when amount is nil.
	RefundPayment(ctx context.Context, providerPaymentID string, amount *decimal.Decimal, currency money.Currency, reason string) (*RefundResult, error)
	GetPaymentStatus(ctx context.Context, providerPaymentID string) (*PaymentIntent, error)

	// VerifyWebhook checks signature against the raw body in constant time.
	// An empty secret never verifies.
	VerifyWebhook(rawPayload []byte, signature, secret string) bool
	ParseWebhookEvent(rawPayload []byte) (*WebhookEvent, error)
}
