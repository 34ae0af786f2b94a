package stripe

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-service/internal/money"
	"payment-service/internal/provider"
)

const testSecret = "whsec_test"

func signedHeader(ts time.Time, raw []byte, secret string) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", t, sign(t, raw, secret))
}

func TestVerifyWebhook(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := New()
	p.now = func() time.Time { return now }
	raw := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	tests := []struct {
		name      string
		signature string
		secret    string
		want      bool
	}{
		{"valid", signedHeader(now, raw, testSecret), testSecret, true},
		{"second v1 matches", signedHeader(now, raw, testSecret) + ",v1=deadbeef", testSecret, true},
		{"wrong secret", signedHeader(now, raw, "other"), testSecret, false},
		{"empty secret", signedHeader(now, raw, testSecret), "", false},
		{"too old", signedHeader(now.Add(-10*time.Minute), raw, testSecret), testSecret, false},
		{"from the future", signedHeader(now.Add(10*time.Minute), raw, testSecret), testSecret, false},
		{"no timestamp", "v1=" + sign("1", raw, testSecret), testSecret, false},
		{"garbage", "nonsense", testSecret, false},
		{"empty", "", testSecret, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.VerifyWebhook(raw, tt.signature, tt.secret))
		})
	}
}

func TestVerifyWebhook_TamperedBody(t *testing.T) {
	now := time.Now()
	p := New()
	header := signedHeader(now, []byte(`{"amount":100}`), testSecret)
	assert.False(t, p.VerifyWebhook([]byte(`{"amount":999}`), header, testSecret))
}

func TestParseWebhookEvent_PaymentIntent(t *testing.T) {
	raw := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {"object": "payment_intent", "id": "pi_1", "status": "succeeded", "amount": 10000, "currency": "usd"}}
	}`)

	e, err := New().ParseWebhookEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", e.ID)
	assert.Equal(t, provider.KindPaymentSucceeded, e.Kind)
	assert.Equal(t, "pi_1", e.Data.ProviderPaymentID)
	require.NotNil(t, e.Data.Amount)
	assert.Equal(t, "100", e.Data.Amount.String())
	assert.Equal(t, money.USD, e.Data.Currency)
}

func TestParseWebhookEvent_ChargeRefunded(t *testing.T) {
	raw := []byte(`{
		"id": "evt_2",
		"type": "charge.refunded",
		"data": {"object": {
			"object": "charge", "id": "ch_1", "payment_intent": "pi_1",
			"refunds": {"data": [{"id": "re_2", "status": "succeeded", "amount": 6000, "currency": "usd"}]}
		}}
	}`)

	e, err := New().ParseWebhookEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, provider.KindRefund, e.Kind)
	assert.Equal(t, "pi_1", e.Data.ProviderPaymentID)
	assert.Equal(t, "re_2", e.Data.ProviderRefundID)
	assert.Equal(t, "60", e.Data.Amount.String())
}

func TestParseWebhookEvent_Refund(t *testing.T) {
	raw := []byte(`{"id":"evt_3","type":"refund.updated","data":{"object":{"object":"refund","id":"re_3","payment_intent":"pi_1","status":"failed","amount":100,"currency":"jpy"}}}`)

	e, err := New().ParseWebhookEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "re_3", e.Data.ProviderRefundID)
	assert.Equal(t, "failed", e.Data.Status)
	assert.Equal(t, "100", e.Data.Amount.String())
}

func TestParseWebhookEvent_Unknown(t *testing.T) {
	e, err := New().ParseWebhookEvent([]byte(`{"id":"evt_4","type":"customer.created","data":{"object":{"object":"customer","id":"cus_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, provider.KindUnknown, e.Kind)
}

func TestParseWebhookEvent_Malformed(t *testing.T) {
	_, err := New().ParseWebhookEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = New().ParseWebhookEvent([]byte(`{"type":"payment_intent.succeeded"}`))
	assert.Error(t, err)
}
