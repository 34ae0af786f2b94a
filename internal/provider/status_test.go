package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"payment-service/internal/model"
)

func TestCanonicalStatus(t *testing.T) {
	tests := map[string]model.PaymentStatus{
		"requires_capture": model.StatusProcessing,
		"authorize":        model.StatusProcessing,
		"succeeded":        model.StatusSucceeded,
		"SETTLEMENT":       model.StatusSucceeded,
		"capture":          model.StatusSucceeded,
		" paid ":           model.StatusSucceeded,
		"expire":           model.StatusFailed,
		"deny":             model.StatusFailed,
		"canceled":         model.StatusCancelled,
		"cancel":           model.StatusCancelled,
		"":                 model.StatusPending,
		"something-new":    model.StatusPending,
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, CanonicalStatus(in))
		})
	}
}

// Every mapped status must be a state the machine knows.
func TestCanonicalStatus_Total(t *testing.T) {
	for raw, st := range paymentStatuses {
		_, err := model.ParsePaymentStatus(string(st))
		assert.NoError(t, err, raw)
		assert.False(t, st.IsRefundState(), "refund states are never inferred from %q", raw)
	}
}

func TestCanonicalRefundStatus(t *testing.T) {
	assert.Equal(t, model.RefundSucceeded, CanonicalRefundStatus("succeeded"))
	assert.Equal(t, model.RefundSucceeded, CanonicalRefundStatus("Refund"))
	assert.Equal(t, model.RefundFailed, CanonicalRefundStatus("failed"))
	assert.Equal(t, model.RefundPending, CanonicalRefundStatus("pending"))
	assert.Equal(t, model.RefundPending, CanonicalRefundStatus("whatever"))
}
