// Package sandbox is the adapter for the local test gateway. It speaks plain
// JSON over HTTP with amounts in minor units.
package sandbox

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payment-service/internal/model"
	"payment-service/internal/money"
	"payment-service/internal/provider"
)

const (
	SignatureHeader = "X-Sandbox-Signature"
	APIKeyHeader    = "X-Api-Key"

	defaultTimeout = 10 * time.Second
)

type Provider struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() model.Provider {
	return model.ProviderSandbox
}

func (p *Provider) SignatureHeader() string {
	return SignatureHeader
}

func (p *Provider) Initialize(cfg provider.Config) error {
	if cfg.APIKey == "" || cfg.BaseURL == "" {
		return fmt.Errorf("%w: sandbox api-key and base-url", provider.ErrMissingCredentials)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	p.apiKey = cfg.APIKey
	p.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	p.client = &http.Client{Timeout: timeout}
	return nil
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sandbox: HTTP %d: %s", e.StatusCode, e.Message)
}

func (p *Provider) do(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	if p.client == nil {
		return provider.ErrNotInitialized
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set(APIKeyHeader, p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sandbox: reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var eb ErrorBody
		if err := json.Unmarshal(respBody, &eb); err != nil || eb.Error == "" {
			eb.Error = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: eb.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func toIntent(r *PaymentResource) *provider.PaymentIntent {
	intent := &provider.PaymentIntent{
		ProviderPaymentID: r.ID,
		Status:            r.Status,
		ClientSecret:      r.ClientSecret,
		Metadata:          r.Metadata,
	}
	if c, err := money.ParseCurrency(r.Currency); err == nil {
		intent.Amount = money.FromMinor(r.AmountMinor, c)
	}
	return intent
}

func optionalMinor(amount *decimal.Decimal, currency money.Currency) (*int64, error) {
	if amount == nil {
		return nil, nil
	}
	minor, err := money.ToMinor(*amount, currency)
	if err != nil {
		return nil, err
	}
	return &minor, nil
}

func (p *Provider) CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error) {
	minor, err := money.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	body := CreatePaymentBody{
		AmountMinor: minor,
		Currency:    string(req.Currency),
		Description: req.Description,
		Metadata:    req.Metadata,
	}
	if req.PaymentMethod != nil {
		body.PaymentMethod = *req.PaymentMethod
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var res PaymentResource
	if err := p.do(ctx, http.MethodPost, "/payments", key, body, &res); err != nil {
		return nil, err
	}
	return toIntent(&res), nil
}

func (p *Provider) CapturePayment(ctx context.Context, id string, amount *decimal.Decimal, currency money.Currency) (*provider.PaymentIntent, error) {
	minor, err := optionalMinor(amount, currency)
	if err != nil {
		return nil, err
	}

	var res PaymentResource
	path := "/payments/" + url.PathEscape(id) + "/capture"
	if err := p.do(ctx, http.MethodPost, path, uuid.NewString(), CaptureBody{AmountMinor: minor}, &res); err != nil {
		return nil, err
	}
	return toIntent(&res), nil
}

func (p *Provider) RefundPayment(ctx context.Context, id string, amount *decimal.Decimal, currency money.Currency, reason string) (*provider.RefundResult, error) {
	minor, err := optionalMinor(amount, currency)
	if err != nil {
		return nil, err
	}

	var res RefundResource
	path := "/payments/" + url.PathEscape(id) + "/refunds"
	if err := p.do(ctx, http.MethodPost, path, uuid.NewString(), RefundBody{AmountMinor: minor, Reason: reason}, &res); err != nil {
		return nil, err
	}

	return &provider.RefundResult{
		ProviderRefundID: res.ID,
		Status:           res.Status,
		Amount:           money.FromMinor(res.AmountMinor, currency),
	}, nil
}

func (p *Provider) GetPaymentStatus(ctx context.Context, id string) (*provider.PaymentIntent, error) {
	var res PaymentResource
	if err := p.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), "", nil, &res); err != nil {
		return nil, err
	}
	return toIntent(&res), nil
}

// Sign returns the signature the sandbox gateway puts on raw.
func Sign(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *Provider) VerifyWebhook(raw []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(raw, secret)), []byte(strings.ToLower(signature)))
}

var eventKinds = map[string]provider.EventKind{
	EventPaymentSucceeded: provider.KindPaymentSucceeded,
	EventPaymentFailed:    provider.KindPaymentFailed,
	EventPaymentCancelled: provider.KindPaymentCancelled,
	"payment.processing":  provider.KindPaymentProcessing,
	EventRefundSucceeded:  provider.KindRefund,
	EventRefundFailed:     provider.KindRefund,
}

func (p *Provider) ParseWebhookEvent(raw []byte) (*provider.WebhookEvent, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("sandbox: decoding event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("sandbox: event id and type are required")
	}

	var rawMap map[string]any
	_ = json.Unmarshal(raw, &rawMap)

	kind, ok := eventKinds[e.Type]
	if !ok {
		kind = provider.KindUnknown
	}

	out := &provider.WebhookEvent{
		ID:   e.ID,
		Type: e.Type,
		Kind: kind,
		Data: provider.EventData{
			ProviderPaymentID: e.Data.PaymentID,
			ProviderRefundID:  e.Data.RefundID,
			Status:            e.Data.Status,
			Raw:               rawMap,
		},
	}
	if c, err := money.ParseCurrency(e.Data.Currency); err == nil {
		amount := money.FromMinor(e.Data.AmountMinor, c)
		out.Data.Amount = &amount
		out.Data.Currency = c
	}
	return out, nil
}
