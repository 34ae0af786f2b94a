package testhelpers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"payment-service/internal/model"
	"payment-service/internal/money"
	"payment-service/internal/provider"
)

const FakeSignatureHeader = "X-Fake-Signature"

// FakeProvider is a provider.Provider driven by func fields. Unset funcs
// behave like a gateway that leaves new payments pending and succeeds on capture.
type FakeProvider struct {
	ProviderName model.Provider

	InitializeFunc func(cfg provider.Config) error
	CreateFunc     func(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error)
	CaptureFunc    func(ctx context.Context, id string, amount *decimal.Decimal) (*provider.PaymentIntent, error)
	RefundFunc     func(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*provider.RefundResult, error)
	StatusFunc     func(ctx context.Context, id string) (*provider.PaymentIntent, error)

	mu    sync.Mutex
	seq   int
	calls map[string]int
}

func NewFakeProvider(name model.Provider) *FakeProvider {
	return &FakeProvider{ProviderName: name, calls: map[string]int{}}
}

func (f *FakeProvider) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeProvider) record(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
	f.seq++
	return f.seq
}

func (f *FakeProvider) Name() model.Provider {
	return f.ProviderName
}

func (f *FakeProvider) SignatureHeader() string {
	return FakeSignatureHeader
}

func (f *FakeProvider) Initialize(cfg provider.Config) error {
	f.record("initialize")
	if f.InitializeFunc != nil {
		return f.InitializeFunc(cfg)
	}
	return nil
}

func (f *FakeProvider) CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error) {
	n := f.record("create")
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, req)
	}
	id := fmt.Sprintf("fake_pay_%d", n)
	return &provider.PaymentIntent{
		ProviderPaymentID: id,
		Status:            "pending",
		ClientSecret:      id + "_secret",
		Amount:            req.Amount,
	}, nil
}

func (f *FakeProvider) CapturePayment(ctx context.Context, id string, amount *decimal.Decimal, _ money.Currency) (*provider.PaymentIntent, error) {
	f.record("capture")
	if f.CaptureFunc != nil {
		return f.CaptureFunc(ctx, id, amount)
	}
	return &provider.PaymentIntent{ProviderPaymentID: id, Status: "succeeded"}, nil
}

func (f *FakeProvider) RefundPayment(ctx context.Context, id string, amount *decimal.Decimal, _ money.Currency, reason string) (*provider.RefundResult, error) {
	n := f.record("refund")
	if f.RefundFunc != nil {
		return f.RefundFunc(ctx, id, amount, reason)
	}
	res := &provider.RefundResult{ProviderRefundID: fmt.Sprintf("fake_re_%d", n), Status: "succeeded"}
	if amount != nil {
		res.Amount = *amount
	}
	return res, nil
}

func (f *FakeProvider) GetPaymentStatus(ctx context.Context, id string) (*provider.PaymentIntent, error) {
	f.record("status")
	if f.StatusFunc != nil {
		return f.StatusFunc(ctx, id)
	}
	return &provider.PaymentIntent{ProviderPaymentID: id, Status: "pending"}, nil
}

func (f *FakeProvider) VerifyWebhook(raw []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(SignFake(raw, secret)))
}

// FakeEvent is the wire format FakeProvider.ParseWebhookEvent understands.
type FakeEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	PaymentID string `json:"payment_id"`
	RefundID  string `json:"refund_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

var fakeKinds = map[string]provider.EventKind{
	"payment.succeeded":  provider.KindPaymentSucceeded,
	"payment.failed":     provider.KindPaymentFailed,
	"payment.cancelled":  provider.KindPaymentCancelled,
	"payment.processing": provider.KindPaymentProcessing,
	"refund.succeeded":   provider.KindRefund,
	"refund.failed":      provider.KindRefund,
}

func (f *FakeProvider) ParseWebhookEvent(raw []byte) (*provider.WebhookEvent, error) {
	var e FakeEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("event id and type are required")
	}

	kind, ok := fakeKinds[e.Type]
	if !ok {
		kind = provider.KindUnknown
	}

	event := &provider.WebhookEvent{
		ID:   e.ID,
		Type: e.Type,
		Kind: kind,
		Data: provider.EventData{
			ProviderPaymentID: e.PaymentID,
			ProviderRefundID:  e.RefundID,
			Status:            e.Status,
		},
	}
	if e.Amount != "" {
		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return nil, err
		}
		event.Data.Amount = &amount
	}
	return event, nil
}

func SignFake(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

// FakeFactory returns a provider.Factory serving the given fakes by name.
func FakeFactory(fakes ...*FakeProvider) provider.Factory {
	return func(name model.Provider) (provider.Provider, error) {
		for _, f := range fakes {
			if f.ProviderName == name {
				return f, nil
			}
		}
		return nil, fmt.Errorf("no fake for provider %s", name)
	}
}
