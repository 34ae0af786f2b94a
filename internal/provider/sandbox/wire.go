package sandbox

// Wire types of the sandbox gateway API. cmd/gatewaymock serves the same shapes.

type CreatePaymentBody struct {
	AmountMinor   int64             `json:"amount_minor"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type CaptureBody struct {
	AmountMinor *int64 `json:"amount_minor,omitempty"`
}

type RefundBody struct {
	AmountMinor *int64 `json:"amount_minor,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type PaymentResource struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret,omitempty"`
	AmountMinor  int64             `json:"amount_minor"`
	Captured     int64             `json:"captured_minor"`
	Refunded     int64             `json:"refunded_minor"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type RefundResource struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

type EventData struct {
	PaymentID   string `json:"payment_id"`
	RefundID    string `json:"refund_id,omitempty"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
	EventRefundSucceeded  = "refund.succeeded"
	EventRefundFailed     = "refund.failed"
)
