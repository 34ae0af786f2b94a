package provider

import (
	"strings"

	"payment-service/internal/model"
)

// Gateway status strings from every supported provider. Lookup is case-insensitive.
var paymentStatuses = map[string]model.PaymentStatus{
	// stripe
	"requires_payment_method": model.StatusPending,
	"requires_confirmation":   model.StatusPending,
	"requires_action":         model.StatusPending,
	"requires_capture":        model.StatusProcessing,
	"processing":              model.StatusProcessing,
	"succeeded":               model.StatusSucceeded,
	"canceled":                model.StatusCancelled,
	// midtrans
	"pending":    model.StatusPending,
	"authorize":  model.StatusProcessing,
	"capture":    model.StatusSucceeded,
	"settlement": model.StatusSucceeded,
	"deny":       model.StatusFailed,
	"expire":     model.StatusFailed,
	"failure":    model.StatusFailed,
	"cancel":     model.StatusCancelled,
	// sandbox and generic
	"created":    model.StatusPending,
	"authorized": model.StatusProcessing,
	"captured":   model.StatusSucceeded,
	"success":    model.StatusSucceeded,
	"paid":       model.StatusSucceeded,
	"completed":  model.StatusSucceeded,
	"failed":     model.StatusFailed,
	"declined":   model.StatusFailed,
	"cancelled":  model.StatusCancelled,
	"voided":     model.StatusCancelled,
}

var refundStatuses = map[string]model.RefundStatus{
	"pending":    model.RefundPending,
	"processing": model.RefundPending,
	"succeeded":  model.RefundSucceeded,
	"success":    model.RefundSucceeded,
	"refund":     model.RefundSucceeded,
	"refunded":   model.RefundSucceeded,
	"completed":  model.RefundSucceeded,
	"failed":     model.RefundFailed,
	"failure":    model.RefundFailed,
	"canceled":   model.RefundFailed,
	"cancelled":  model.RefundFailed,
}

// CanonicalStatus maps a gateway status to the payment state machine.
// Unknown strings map to PENDING so they never advance a payment.
func CanonicalStatus(s string) model.PaymentStatus {
	if st, ok := paymentStatuses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return model.StatusPending
}

func CanonicalRefundStatus(s string) model.RefundStatus {
	if st, ok := refundStatuses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return model.RefundPending
}
