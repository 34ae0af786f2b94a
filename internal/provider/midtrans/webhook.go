package midtrans

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"payment-service/internal/money"
	"payment-service/internal/provider"
)

var eventKinds = map[string]provider.EventKind{
	"capture":        provider.KindPaymentSucceeded,
	"settlement":     provider.KindPaymentSucceeded,
	"authorize":      provider.KindPaymentProcessing,
	"deny":           provider.KindPaymentFailed,
	"expire":         provider.KindPaymentFailed,
	"failure":        provider.KindPaymentFailed,
	"cancel":         provider.KindPaymentCancelled,
	"refund":         provider.KindRefund,
	"partial_refund": provider.KindRefund,
}

type notificationRefund struct {
	RefundKey    string `json:"refund_key"`
	RefundAmount string `json:"refund_amount"`
	Reason       string `json:"reason"`
}

type notification struct {
	TransactionID     string               `json:"transaction_id"`
	TransactionStatus string               `json:"transaction_status"`
	FraudStatus       string               `json:"fraud_status"`
	StatusCode        string               `json:"status_code"`
	OrderID           string               `json:"order_id"`
	GrossAmount       string               `json:"gross_amount"`
	Currency          string               `json:"currency"`
	SignatureKey      string               `json:"signature_key"`
	Refunds           []notificationRefund `json:"refunds"`
}

// VerifyWebhook checks sha512(order_id+status_code+gross_amount+serverKey).
// The signature travels in the body; a non-empty header value takes precedence.
func (p *Provider) VerifyWebhook(raw []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}

	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	if signature == "" {
		signature = n.SignatureKey
	}
	if signature == "" {
		return false
	}

	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (p *Provider) ParseWebhookEvent(raw []byte) (*provider.WebhookEvent, error) {
	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("midtrans: decoding notification: %w", err)
	}
	if n.TransactionID == "" || n.TransactionStatus == "" || n.OrderID == "" {
		return nil, fmt.Errorf("midtrans: transaction_id, transaction_status and order_id are required")
	}

	var rawMap map[string]any
	if err := json.Unmarshal(raw, &rawMap); err != nil {
		return nil, fmt.Errorf("midtrans: decoding notification: %w", err)
	}

	status := effectiveStatus(n.TransactionStatus, n.FraudStatus)
	kind, ok := eventKinds[status]
	if !ok {
		kind = provider.KindUnknown
	}

	event := &provider.WebhookEvent{
		ID:   n.TransactionID + ":" + n.TransactionStatus + ":" + n.StatusCode,
		Type: n.TransactionStatus,
		Kind: kind,
		Data: provider.EventData{
			ProviderPaymentID: n.OrderID,
			Status:            status,
			Currency:          money.IDR,
			Raw:               rawMap,
		},
	}
	if n.Currency != "" {
		if c, err := money.ParseCurrency(n.Currency); err == nil {
			event.Data.Currency = c
		}
	}

	if kind == provider.KindRefund {
		if len(n.Refunds) == 0 {
			return nil, fmt.Errorf("midtrans: refund notification without refunds")
		}
		// the latest refund is last
		r := n.Refunds[len(n.Refunds)-1]
		amount, err := decimal.NewFromString(r.RefundAmount)
		if err != nil {
			return nil, fmt.Errorf("midtrans: refund_amount: %w", err)
		}
		event.ID += ":" + r.RefundKey
		event.Data.ProviderRefundID = r.RefundKey
		event.Data.Status = "refund"
		event.Data.Amount = &amount
		return event, nil
	}

	if n.GrossAmount != "" {
		amount, err := decimal.NewFromString(n.GrossAmount)
		if err != nil {
			return nil, fmt.Errorf("midtrans: gross_amount: %w", err)
		}
		event.Data.Amount = &amount
	}
	return event, nil
}
