// Package stripe is the Stripe adapter. Payment intents are created with
// manual capture so that capture is an explicit operation.
package stripe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payment-service/internal/model"
	"payment-service/internal/money"
	"payment-service/internal/provider"
)

const SignatureHeader = "Stripe-Signature"

type Provider struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	retries    int
	retryDelay time.Duration
	now        func() time.Time
}

func New() *Provider {
	return &Provider{
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
	}
}

func (p *Provider) Name() model.Provider {
	return model.ProviderStripe
}

func (p *Provider) SignatureHeader() string {
	return SignatureHeader
}

func (p *Provider) Initialize(cfg provider.Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("%w: stripe api-key", provider.ErrMissingCredentials)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	p.apiKey = cfg.APIKey
	p.baseURL = baseURL
	p.client = &http.Client{Timeout: timeout}
	return nil
}

type paymentIntent struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

func (pi *paymentIntent) toIntent() *provider.PaymentIntent {
	intent := &provider.PaymentIntent{
		ProviderPaymentID: pi.ID,
		Status:            pi.Status,
		ClientSecret:      pi.ClientSecret,
		Metadata:          pi.Metadata,
	}
	if c, err := money.ParseCurrency(pi.Currency); err == nil {
		intent.Amount = money.FromMinor(pi.Amount, c)
	}
	return intent
}

type refund struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentIntent string `json:"payment_intent"`
}

func (p *Provider) ready() error {
	if p.client == nil {
		return provider.ErrNotInitialized
	}
	return nil
}

func (p *Provider) CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	minor, err := money.ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minor, 10))
	form.Set("currency", strings.ToLower(string(req.Currency)))
	form.Set("capture_method", "manual")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.PaymentMethod != nil {
		form.Set("payment_method", *req.PaymentMethod)
	}
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = newIdempotencyKey()
	}

	var pi paymentIntent
	if err := p.do(ctx, http.MethodPost, "/v1/payment_intents", form, key, &pi); err != nil {
		return nil, err
	}
	return pi.toIntent(), nil
}

func (p *Provider) CapturePayment(ctx context.Context, id string, amount *decimal.Decimal, currency money.Currency) (*provider.PaymentIntent, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	form := url.Values{}
	if amount != nil {
		minor, err := money.ToMinor(*amount, currency)
		if err != nil {
			return nil, err
		}
		form.Set("amount_to_capture", strconv.FormatInt(minor, 10))
	}

	var pi paymentIntent
	path := "/v1/payment_intents/" + url.PathEscape(id) + "/capture"
	if err := p.do(ctx, http.MethodPost, path, form, newIdempotencyKey(), &pi); err != nil {
		return nil, err
	}
	return pi.toIntent(), nil
}

func (p *Provider) RefundPayment(ctx context.Context, id string, amount *decimal.Decimal, currency money.Currency, reason string) (*provider.RefundResult, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("payment_intent", id)
	if amount != nil {
		minor, err := money.ToMinor(*amount, currency)
		if err != nil {
			return nil, err
		}
		form.Set("amount", strconv.FormatInt(minor, 10))
	}
	if reason != "" {
		form.Set("metadata[reason]", reason)
	}

	var r refund
	if err := p.do(ctx, http.MethodPost, "/v1/refunds", form, newIdempotencyKey(), &r); err != nil {
		return nil, err
	}

	res := &provider.RefundResult{ProviderRefundID: r.ID, Status: r.Status}
	if c, err := money.ParseCurrency(r.Currency); err == nil {
		res.Amount = money.FromMinor(r.Amount, c)
	}
	return res, nil
}

func (p *Provider) GetPaymentStatus(ctx context.Context, id string) (*provider.PaymentIntent, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	var pi paymentIntent
	if err := p.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, "", &pi); err != nil {
		return nil, err
	}
	return pi.toIntent(), nil
}
