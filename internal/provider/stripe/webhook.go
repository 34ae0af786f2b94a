package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"payment-service/internal/money"
	"payment-service/internal/provider"
)

// Signatures older than this are rejected to limit replays.
const signatureTolerance = 5 * time.Minute

var eventKinds = map[string]provider.EventKind{
	"payment_intent.succeeded":                 provider.KindPaymentSucceeded,
	"payment_intent.payment_failed":            provider.KindPaymentFailed,
	"payment_intent.canceled":                  provider.KindPaymentCancelled,
	"payment_intent.processing":                provider.KindPaymentProcessing,
	"payment_intent.amount_capturable_updated": provider.KindPaymentProcessing,
	"charge.refunded":                          provider.KindRefund,
	"charge.refund.updated":                    provider.KindRefund,
	"refund.created":                           provider.KindRefund,
	"refund.updated":                           provider.KindRefund,
	"refund.failed":                            provider.KindRefund,
}

// VerifyWebhook checks a Stripe-Signature header of the form
// "t=<unix>,v1=<hex>[,v1=<hex>...]".
func (p *Provider) VerifyWebhook(raw []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := p.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return false
	}

	expected := []byte(sign(timestamp, raw, secret))
	for _, c := range candidates {
		if hmac.Equal(expected, []byte(c)) {
			return true
		}
	}
	return false
}

func sign(timestamp string, raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	Object        string `json:"object"`
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentIntent string `json:"payment_intent"`
	Refunds       *struct {
		Data []refund `json:"data"`
	} `json:"refunds"`
}

func (p *Provider) ParseWebhookEvent(raw []byte) (*provider.WebhookEvent, error) {
	var e event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("stripe: decoding event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("stripe: event id and type are required")
	}

	kind, ok := eventKinds[e.Type]
	if !ok {
		kind = provider.KindUnknown
	}

	out := &provider.WebhookEvent{ID: e.ID, Type: e.Type, Kind: kind}
	if len(e.Data.Object) == 0 {
		return out, nil
	}

	var rawObject map[string]any
	if err := json.Unmarshal(e.Data.Object, &rawObject); err != nil {
		return nil, fmt.Errorf("stripe: decoding event object: %w", err)
	}
	var obj eventObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("stripe: decoding event object: %w", err)
	}
	out.Data.Raw = rawObject

	switch obj.Object {
	case "payment_intent":
		out.Data.ProviderPaymentID = obj.ID
		out.Data.Status = obj.Status
		setAmount(&out.Data, obj.Amount, obj.Currency)
	case "refund":
		out.Data.ProviderPaymentID = obj.PaymentIntent
		out.Data.ProviderRefundID = obj.ID
		out.Data.Status = obj.Status
		setAmount(&out.Data, obj.Amount, obj.Currency)
	case "charge":
		out.Data.ProviderPaymentID = obj.PaymentIntent
		// charge.refunded carries the refund list newest first
		if obj.Refunds != nil && len(obj.Refunds.Data) > 0 {
			r := obj.Refunds.Data[0]
			out.Data.ProviderRefundID = r.ID
			out.Data.Status = r.Status
			setAmount(&out.Data, r.Amount, r.Currency)
		}
	default:
		out.Data.ProviderPaymentID = obj.ID
		out.Data.Status = obj.Status
	}

	return out, nil
}

func setAmount(data *provider.EventData, minor int64, currency string) {
	c, err := money.ParseCurrency(currency)
	if err != nil {
		return
	}
	amount := money.FromMinor(minor, c)
	data.Amount = &amount
	data.Currency = c
}
