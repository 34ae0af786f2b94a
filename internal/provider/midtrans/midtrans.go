// Package midtrans is the Midtrans adapter. Payments are opened through Snap;
// capture, refund and status go through the Core API. The order id we send is
// the provider payment id, since every Midtrans notification carries it.
package midtrans

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"payment-service/internal/model"
	"payment-service/internal/money"
	"payment-service/internal/provider"
)

const SignatureHeader = "X-Midtrans-Signature"

type Provider struct {
	serverKey string
	snap      *snap.Client
	core      *coreapi.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() model.Provider {
	return model.ProviderMidtrans
}

func (p *Provider) SignatureHeader() string {
	return SignatureHeader
}

func environment(name string) mt.EnvironmentType {
	if strings.EqualFold(name, "production") {
		return mt.Production
	}
	return mt.Sandbox
}

func (p *Provider) Initialize(cfg provider.Config) error {
	if cfg.SecretKey == "" {
		return fmt.Errorf("%w: midtrans secret-key", provider.ErrMissingCredentials)
	}

	env := environment(cfg.Environment)

	var s snap.Client
	s.New(cfg.SecretKey, env)
	var c coreapi.Client
	c.New(cfg.SecretKey, env)

	p.serverKey = cfg.SecretKey
	p.snap = &s
	p.core = &c
	return nil
}

func (p *Provider) ready() error {
	if p.snap == nil || p.core == nil {
		return provider.ErrNotInitialized
	}
	return nil
}

// Midtrans settles IDR in whole rupiah.
func grossAmount(amount decimal.Decimal, currency money.Currency) (int64, error) {
	if currency != money.IDR {
		return 0, fmt.Errorf("midtrans: unsupported currency %s", currency)
	}
	return money.ToMinorExp(amount, 0)
}

// call runs a blocking SDK call and gives up when ctx is done. The SDK has no
// context support, so an abandoned call may still complete at the gateway.
func call[T any](ctx context.Context, fn func() (T, *mt.Error)) (T, error) {
	type result struct {
		v   T
		err *mt.Error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return r.v, fmt.Errorf("midtrans: %s (HTTP %d)", r.err.Message, r.err.StatusCode)
		}
		return r.v, nil
	}
}

func (p *Provider) CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	gross, err := grossAmount(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	orderID := req.IdempotencyKey
	if orderID == "" {
		orderID = uuid.NewString()
	}
	orderID = "PAY-" + orderID

	snapReq := &snap.Request{
		TransactionDetails: mt.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
	}

	resp, err := call(ctx, func() (*snap.Response, *mt.Error) {
		return p.snap.CreateTransaction(snapReq)
	})
	if err != nil {
		return nil, err
	}

	return &provider.PaymentIntent{
		ProviderPaymentID: orderID,
		Status:            "pending",
		ClientSecret:      resp.Token,
		Amount:            req.Amount,
		Metadata:          map[string]string{"redirect_url": resp.RedirectURL},
	}, nil
}

func (p *Provider) status(ctx context.Context, orderID string) (*coreapi.TransactionStatusResponse, error) {
	return call(ctx, func() (*coreapi.TransactionStatusResponse, *mt.Error) {
		return p.core.CheckTransaction(orderID)
	})
}

func statusIntent(orderID string, st *coreapi.TransactionStatusResponse) *provider.PaymentIntent {
	intent := &provider.PaymentIntent{
		ProviderPaymentID: orderID,
		Status:            effectiveStatus(st.TransactionStatus, st.FraudStatus),
	}
	if amount, err := decimal.NewFromString(st.GrossAmount); err == nil {
		intent.Amount = amount
	}
	return intent
}

// effectiveStatus folds the fraud verdict into the transaction status. A card
// capture under fraud review is not settled money yet.
func effectiveStatus(transactionStatus, fraudStatus string) string {
	if transactionStatus == "capture" && fraudStatus == "challenge" {
		return "authorize"
	}
	return transactionStatus
}

func (p *Provider) CapturePayment(ctx context.Context, orderID string, amount *decimal.Decimal, currency money.Currency) (*provider.PaymentIntent, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	st, err := p.status(ctx, orderID)
	if err != nil {
		return nil, err
	}

	captureReq := &coreapi.CaptureReq{TransactionID: st.TransactionID}
	if amount != nil {
		gross, err := grossAmount(*amount, currency)
		if err != nil {
			return nil, err
		}
		captureReq.GrossAmt = float64(gross)
	}

	resp, err := call(ctx, func() (*coreapi.CaptureResponse, *mt.Error) {
		return p.core.CaptureTransaction(captureReq)
	})
	if err != nil {
		return nil, err
	}

	return &provider.PaymentIntent{
		ProviderPaymentID: orderID,
		Status:            effectiveStatus(resp.TransactionStatus, resp.FraudStatus),
	}, nil
}

func (p *Provider) RefundPayment(ctx context.Context, orderID string, amount *decimal.Decimal, currency money.Currency, reason string) (*provider.RefundResult, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	// The refund key comes back in refund notifications and is our refund id.
	refundReq := &coreapi.RefundReq{
		RefundKey: "RF-" + uuid.NewString(),
		Reason:    reason,
	}
	if amount != nil {
		gross, err := grossAmount(*amount, currency)
		if err != nil {
			return nil, err
		}
		refundReq.Amount = gross
	}

	resp, err := call(ctx, func() (*coreapi.RefundResponse, *mt.Error) {
		return p.core.RefundTransaction(orderID, refundReq)
	})
	if err != nil {
		return nil, err
	}

	res := &provider.RefundResult{
		ProviderRefundID: refundReq.RefundKey,
		Status:           refundStatus(resp.StatusCode),
	}
	if amount != nil {
		res.Amount = *amount
	}
	return res, nil
}

// refundStatus maps the Core API status code of a refund request.
func refundStatus(code string) string {
	switch code {
	case "200":
		return "succeeded"
	case "201":
		return "pending"
	default:
		return "failed"
	}
}

func (p *Provider) GetPaymentStatus(ctx context.Context, orderID string) (*provider.PaymentIntent, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	st, err := p.status(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return statusIntent(orderID, st), nil
}
