package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"payment-service/internal/apperr"
	"payment-service/internal/audit"
	"payment-service/internal/config"
	"payment-service/internal/model"
	"payment-service/internal/provider"
	"payment-service/internal/testhelpers"
	"payment-service/internal/webhook"
)

const webhookSecret = "whsec_test"

type ServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *testhelpers.MemoryStore
	gateway  *testhelpers.FakeProvider
	audit    *testhelpers.MemoryAudit
	owner    *model.User
	other    *model.User
	admin    *model.User
	webhooks *webhook.Pipeline
	sut      *Service
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testhelpers.NewMemoryStore()
	s.gateway = testhelpers.NewFakeProvider(model.ProviderSandbox)
	s.audit = &testhelpers.MemoryAudit{}
	s.owner = testhelpers.NewUser("customer")
	s.other = testhelpers.NewUser("customer")
	s.admin = testhelpers.NewUser("admin")

	selector, err := provider.NewSelector(config.Payments{
		ActiveProvider:   "sandbox",
		GatewayTimeoutMs: 1000,
		Providers: map[string]config.Provider{
			"sandbox": {APIKey: "k", BaseURL: "http://sandbox", WebhookSecret: webhookSecret},
		},
	}, testhelpers.FakeFactory(s.gateway))
	s.Require().NoError(err)

	s.webhooks = webhook.NewPipeline(s.store, selector, s.audit, testhelpers.DiscardLogger())

	s.sut = NewService(s.store, selector, testhelpers.NewMemoryUsers(s.owner, s.other, s.admin),
		NewRolePolicy([]string{"admin"}), s.audit, testhelpers.DiscardLogger(), time.Second)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func (s *ServiceTestSuite) create(amount string) *model.Payment {
	res, err := s.sut.Create(s.ctx, s.owner.ID, CreateRequest{Amount: dec(amount), Currency: "USD", Description: "order"})
	s.Require().NoError(err)
	return res.Payment
}

func (s *ServiceTestSuite) assertKind(err error, kind apperr.Kind) {
	s.Require().Error(err)
	s.Equal(kind, apperr.KindOf(err), err.Error())
}

func (s *ServiceTestSuite) deliver(ctx context.Context, e testhelpers.FakeEvent) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	headers := http.Header{}
	headers.Set(testhelpers.FakeSignatureHeader, testhelpers.SignFake(raw, webhookSecret))
	_, err = s.webhooks.Ingest(ctx, "sandbox", headers, raw)
	return err
}

func (s *ServiceTestSuite) TestCreateCaptureRefundLifecycle() {
	t := s.T()

	res, err := s.sut.Create(s.ctx, s.owner.ID, CreateRequest{
		Amount:   dec("100.00"),
		Currency: "USD",
		Metadata: map[string]string{"order": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Payment.Status)
	assert.NotEmpty(t, res.ClientSecret)
	assert.Equal(t, "42", res.Payment.Metadata["order"])
	assert.Nil(t, res.Payment.CapturedAt)
	id := res.Payment.ID

	p, err := s.sut.Capture(s.ctx, s.owner.ID, id, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, p.Status)
	assert.NotNil(t, p.CapturedAt)

	r1, err := s.sut.Refund(s.ctx, s.owner.ID, id, RefundRequest{Amount: decPtr("40.00"), Reason: "partial"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartiallyRefunded, r1.Payment.Status)
	assert.True(t, r1.Payment.RefundedAmount.Equal(dec("40")))
	assert.Equal(t, model.RefundSucceeded, r1.Refund.Status)

	r2, err := s.sut.Refund(s.ctx, s.owner.ID, id, RefundRequest{Amount: decPtr("60.00")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRefunded, r2.Payment.Status)
	assert.True(t, r2.Payment.RefundedAmount.Equal(dec("100")))

	_, err = s.sut.Refund(s.ctx, s.owner.ID, id, RefundRequest{Amount: decPtr("0.01")})
	s.assertKind(err, apperr.KindConflict)

	got, err := s.sut.Get(s.ctx, s.owner.ID, id)
	require.NoError(t, err)
	assert.Len(t, got.Refunds, 2)
	assert.Equal(t, model.StatusRefunded, got.Status)

	assert.Len(t, s.audit.Entries(audit.ActionCreate), 1)
	assert.Len(t, s.audit.Entries(audit.ActionCapture), 1)
	assert.Len(t, s.audit.Entries(audit.ActionRefund), 2)
	assert.Len(t, s.store.Outbox(), 4)
	assert.Equal(t, 3, s.gateway.Calls("refund")+s.gateway.Calls("capture"))
}

func (s *ServiceTestSuite) TestRefundDefaultsToRemaining() {
	p := s.create("25.50")
	_, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.Require().NoError(err)

	_, err = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Amount: decPtr("5.50")})
	s.Require().NoError(err)

	res, err := s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{})
	s.Require().NoError(err)
	s.True(res.Refund.Amount.Equal(dec("20")))
	s.Equal(model.StatusRefunded, res.Payment.Status)
}

func (s *ServiceTestSuite) TestNoDoubleCapture() {
	p := s.create("10.00")
	_, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.Require().NoError(err)

	_, err = s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.assertKind(err, apperr.KindConflict)
	s.Equal(1, s.gateway.Calls("capture"))

	got, err := s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusSucceeded, got.Status)
}

func (s *ServiceTestSuite) TestCaptureTerminalPayment() {
	p := s.create("10.00")
	failed := p.Clone()
	failed.Status = model.StatusFailed
	s.store.PutPayment(failed)

	_, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.assertKind(err, apperr.KindConflict)
	s.Equal(0, s.gateway.Calls("capture"))
}

func (s *ServiceTestSuite) TestOwnership() {
	p := s.create("10.00")

	_, err := s.sut.Capture(s.ctx, s.other.ID, p.ID, nil)
	s.assertKind(err, apperr.KindForbidden)

	_, err = s.sut.Refund(s.ctx, s.other.ID, p.ID, RefundRequest{})
	s.assertKind(err, apperr.KindForbidden)

	_, err = s.sut.Get(s.ctx, s.other.ID, p.ID)
	s.assertKind(err, apperr.KindForbidden)

	_, err = s.sut.Reconcile(s.ctx, s.other.ID, p.ID)
	s.assertKind(err, apperr.KindForbidden)

	s.Equal(0, s.gateway.Calls("capture"))
	s.Equal(0, s.gateway.Calls("refund"))

	got, err := s.sut.Get(s.ctx, s.admin.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)

	_, err = s.sut.Capture(s.ctx, s.admin.ID, p.ID, nil)
	s.NoError(err)
}

func (s *ServiceTestSuite) TestUnknownRequester() {
	_, err := s.sut.Create(s.ctx, uuid.New(), CreateRequest{Amount: dec("1"), Currency: "USD"})
	s.assertKind(err, apperr.KindUnauthorized)
}

func (s *ServiceTestSuite) TestUnknownPayment() {
	_, err := s.sut.Get(s.ctx, s.owner.ID, uuid.New())
	s.assertKind(err, apperr.KindNotFound)
}

func (s *ServiceTestSuite) TestCreateValidation() {
	tests := []CreateRequest{
		{Amount: dec("10"), Currency: "XYZ"},
		{Amount: dec("0"), Currency: "USD"},
		{Amount: dec("-5"), Currency: "USD"},
		{Amount: dec("1.001"), Currency: "USD"},
		{Amount: dec("1.5"), Currency: "JPY"},
	}
	for _, req := range tests {
		_, err := s.sut.Create(s.ctx, s.owner.ID, req)
		s.assertKind(err, apperr.KindValidation)
	}
	s.Equal(0, s.gateway.Calls("create"))
}

func (s *ServiceTestSuite) TestCreateGatewayFailurePersistsNothing() {
	s.gateway.CreateFunc = func(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error) {
		return nil, errors.New("card declined")
	}

	_, err := s.sut.Create(s.ctx, s.owner.ID, CreateRequest{Amount: dec("10"), Currency: "USD"})
	s.assertKind(err, apperr.KindInternal)
	s.NotContains(apperr.PublicMessage(err), "card declined")
	s.Empty(s.store.Payments())
	s.Empty(s.store.Outbox())
	s.Empty(s.audit.Entries(""))
}

func (s *ServiceTestSuite) TestCreateSucceededSetsCapturedAt() {
	s.gateway.CreateFunc = func(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error) {
		return &provider.PaymentIntent{ProviderPaymentID: "pay_1", Status: "SUCCESS"}, nil
	}

	p := s.create("10.00")
	s.Equal(model.StatusSucceeded, p.Status)
	s.NotNil(p.CapturedAt)
}

func (s *ServiceTestSuite) TestCreateUnknownGatewayStatusIsPending() {
	s.gateway.CreateFunc = func(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error) {
		return &provider.PaymentIntent{ProviderPaymentID: "pay_1", Status: "mystery"}, nil
	}

	s.Equal(model.StatusPending, s.create("10.00").Status)
}

func (s *ServiceTestSuite) TestCaptureTimeoutLeavesStateUnchanged() {
	p := s.create("10.00")

	s.sut.gatewayTimeout = 20 * time.Millisecond
	s.gateway.CaptureFunc = func(ctx context.Context, id string, amount *decimal.Decimal) (*provider.PaymentIntent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.assertKind(err, apperr.KindInternal)
	s.ErrorIs(err, context.DeadlineExceeded)

	got, err := s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusPending, got.Status)
	s.Nil(got.CapturedAt)
	s.Empty(s.audit.Entries(audit.ActionCapture))
}

func (s *ServiceTestSuite) TestRefundTimeoutLeavesStateUnchanged() {
	p := s.create("10.00")
	_, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.Require().NoError(err)

	s.sut.gatewayTimeout = 20 * time.Millisecond
	s.gateway.RefundFunc = func(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*provider.RefundResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{})
	s.assertKind(err, apperr.KindInternal)

	got, err := s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusSucceeded, got.Status)
	s.True(got.RefundedAmount.IsZero())
	s.Empty(got.Refunds)
}

func (s *ServiceTestSuite) TestRefundValidation() {
	p := s.create("10.00")

	_, err := s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{})
	s.assertKind(err, apperr.KindConflict)

	_, err = s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.Require().NoError(err)

	_, err = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Amount: decPtr("10.01")})
	s.assertKind(err, apperr.KindValidation)

	_, err = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Amount: decPtr("-1")})
	s.assertKind(err, apperr.KindValidation)

	_, err = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Amount: decPtr("1.001")})
	s.assertKind(err, apperr.KindValidation)

	s.Equal(0, s.gateway.Calls("refund"))
}

func (s *ServiceTestSuite) TestRefundDeclinedByGateway() {
	p := s.create("10.00")
	_, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.Require().NoError(err)

	s.gateway.RefundFunc = func(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*provider.RefundResult, error) {
		return &provider.RefundResult{ProviderRefundID: "re_failed", Status: "failed", Amount: *amount}, nil
	}

	_, err = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Amount: decPtr("4")})
	s.assertKind(err, apperr.KindInternal)

	refunds := s.store.Refunds()
	s.Require().Len(refunds, 1)
	s.Equal(model.RefundFailed, refunds[0].Status)

	got, err := s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusSucceeded, got.Status)
	s.True(got.RefundedAmount.IsZero())
}

func (s *ServiceTestSuite) TestConcurrentRefundsNeverOverRefund() {
	p := s.create("100.00")
	_, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Amount: decPtr("10.00")})
		}()
	}
	wg.Wait()

	got, err := s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)

	sum := decimal.Zero
	for _, r := range got.Refunds {
		if r.Status.Counted() {
			sum = sum.Add(r.Amount)
		}
	}
	s.True(sum.Equal(got.RefundedAmount), "refund rows %s vs refunded %s", sum, got.RefundedAmount)
	s.True(got.RefundedAmount.LessThanOrEqual(got.Amount))
	s.Equal(model.RefundStatusFor(got.RefundCeiling(), got.RefundedAmount), got.Status)
}

func (s *ServiceTestSuite) TestAuditFailureIsNotFatal() {
	s.audit.Err = errors.New("audit store down")

	res, err := s.sut.Create(s.ctx, s.owner.ID, CreateRequest{Amount: dec("10"), Currency: "USD"})
	s.Require().NoError(err)
	s.Len(s.store.Payments(), 1)
	s.Equal(res.Payment.ID, s.store.Payments()[0].ID)
}

func (s *ServiceTestSuite) TestList() {
	for i := 0; i < 3; i++ {
		s.create("1.00")
	}
	_, err := s.sut.Create(s.ctx, s.other.ID, CreateRequest{Amount: dec("2"), Currency: "EUR"})
	s.Require().NoError(err)

	page, err := s.sut.List(s.ctx, s.owner.ID, ListRequest{PageSize: 2})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Len(page.Items, 2)
	for _, p := range page.Items {
		s.Equal(s.owner.ID, p.UserID)
	}

	page, err = s.sut.List(s.ctx, s.owner.ID, ListRequest{Page: 2, PageSize: 2})
	s.Require().NoError(err)
	s.Len(page.Items, 1)

	all, err := s.sut.List(s.ctx, s.admin.ID, ListRequest{})
	s.Require().NoError(err)
	s.Equal(4, all.Total)

	succeeded := model.StatusSucceeded
	filtered, err := s.sut.List(s.ctx, s.admin.ID, ListRequest{Status: &succeeded})
	s.Require().NoError(err)
	s.Equal(0, filtered.Total)
	s.NotNil(filtered.Items)

	_, err = s.sut.List(s.ctx, s.owner.ID, ListRequest{PageSize: MaxPageSize + 1})
	s.assertKind(err, apperr.KindValidation)
}

func (s *ServiceTestSuite) TestReconcile() {
	p := s.create("10.00")

	s.gateway.StatusFunc = func(ctx context.Context, id string) (*provider.PaymentIntent, error) {
		return &provider.PaymentIntent{ProviderPaymentID: id, Status: "unheard-of"}, nil
	}
	got, err := s.sut.Reconcile(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusPending, got.Status)

	s.gateway.StatusFunc = func(ctx context.Context, id string) (*provider.PaymentIntent, error) {
		return &provider.PaymentIntent{ProviderPaymentID: id, Status: "succeeded"}, nil
	}
	got, err = s.sut.Reconcile(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusSucceeded, got.Status)
	s.NotNil(got.CapturedAt)
	s.Len(s.audit.Entries(audit.ActionReconcile), 1)

	// captured payments are left alone
	_, err = s.sut.Reconcile(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(2, s.gateway.Calls("status"))
}

func (s *ServiceTestSuite) TestReconcileStale() {
	p := s.create("10.00")
	s.gateway.StatusFunc = func(ctx context.Context, id string) (*provider.PaymentIntent, error) {
		return &provider.PaymentIntent{ProviderPaymentID: id, Status: "expire"}, nil
	}

	changed, err := s.sut.ReconcileStale(s.ctx, p)
	s.Require().NoError(err)
	s.True(changed)

	entries := s.audit.Entries(audit.ActionReconcile)
	s.Require().Len(entries, 1)
	s.Nil(entries[0].UserID)
}

func (s *ServiceTestSuite) TestRefundAlreadyRecordedByWebhook() {
	p := s.create("100.00")
	_, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.Require().NoError(err)

	// the gateway announces the refund before its API call returns
	s.gateway.RefundFunc = func(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*provider.RefundResult, error) {
		err := s.deliver(ctx, testhelpers.FakeEvent{
			ID: "evt_re_1", Type: "refund.succeeded", PaymentID: id, RefundID: "re_1", Status: "succeeded", Amount: amount.String(),
		})
		if err != nil {
			return nil, err
		}
		return &provider.RefundResult{ProviderRefundID: "re_1", Status: "succeeded", Amount: *amount}, nil
	}

	res, err := s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Reason: "duplicate order"})
	s.Require().NoError(err)
	s.Equal("re_1", res.Refund.ProviderRefundID)
	s.Equal(model.StatusRefunded, res.Payment.Status)
	s.True(res.Payment.RefundedAmount.Equal(dec("100")))
	s.Len(res.Payment.Refunds, 1)

	s.Len(s.store.Refunds(), 1)
	s.Len(s.audit.Entries(audit.ActionWebhook), 1)
	entries := s.audit.Entries(audit.ActionRefund)
	s.Require().Len(entries, 1)
	s.Equal(true, entries[0].Details["viaWebhook"])

	got, err := s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.True(got.RefundedAmount.Equal(dec("100")))
}

func (s *ServiceTestSuite) TestPartialCaptureLimitsRefunds() {
	p := s.create("100.00")

	captured, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, decPtr("60.00"))
	s.Require().NoError(err)
	s.Equal(model.StatusSucceeded, captured.Status)
	s.True(captured.CapturedAmount.Equal(dec("60")))
	s.True(captured.RemainingAmount().Equal(dec("60")))

	_, err = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Amount: decPtr("70.00")})
	s.assertKind(err, apperr.KindValidation)
	s.Equal(0, s.gateway.Calls("refund"))

	res, err := s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{})
	s.Require().NoError(err)
	s.True(res.Refund.Amount.Equal(dec("60")))
	s.Equal(model.StatusRefunded, res.Payment.Status)
	s.True(res.Payment.RemainingAmount().IsZero())

	_, err = s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{})
	s.assertKind(err, apperr.KindConflict)
}

func (s *ServiceTestSuite) TestPartialCaptureSurvivesRacingWebhook() {
	p := s.create("100.00")

	s.gateway.CaptureFunc = func(ctx context.Context, id string, amount *decimal.Decimal) (*provider.PaymentIntent, error) {
		if err := s.deliver(ctx, testhelpers.FakeEvent{ID: "evt_ok", Type: "payment.succeeded", PaymentID: id}); err != nil {
			return nil, err
		}
		return &provider.PaymentIntent{ProviderPaymentID: id, Status: "succeeded"}, nil
	}

	captured, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, decPtr("25.00"))
	s.Require().NoError(err)
	s.True(captured.CapturedAmount.Equal(dec("25")))
	s.True(captured.RemainingAmount().Equal(dec("25")))
}

func (s *ServiceTestSuite) TestResponsesMatchGet() {
	p := s.create("100.00")
	captured, err := s.sut.Capture(s.ctx, s.owner.ID, p.ID, nil)
	s.Require().NoError(err)
	got, err := s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(got, captured)

	res, err := s.sut.Refund(s.ctx, s.owner.ID, p.ID, RefundRequest{Amount: decPtr("10.00")})
	s.Require().NoError(err)
	got, err = s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(got, res.Payment)
	s.Len(res.Payment.Refunds, 1)

	pending := s.create("5.00")
	s.gateway.StatusFunc = func(ctx context.Context, id string) (*provider.PaymentIntent, error) {
		return &provider.PaymentIntent{ProviderPaymentID: id, Status: "processing"}, nil
	}
	reconciled, err := s.sut.Reconcile(s.ctx, s.owner.ID, pending.ID)
	s.Require().NoError(err)
	got, err = s.sut.Get(s.ctx, s.owner.ID, pending.ID)
	s.Require().NoError(err)
	s.Equal(got, reconciled)
}

func (s *ServiceTestSuite) TestReconcileStampsEveryCheck() {
	p := s.create("10.00")

	changed, err := s.sut.ReconcileStale(s.ctx, p)
	s.Require().NoError(err)
	s.False(changed)

	got, err := s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Equal(model.StatusPending, got.Status)
	s.Require().NotNil(got.ReconciledAt)
	s.Equal(p.UpdatedAt, got.UpdatedAt)
	first := *got.ReconciledAt

	s.gateway.StatusFunc = func(ctx context.Context, id string) (*provider.PaymentIntent, error) {
		return nil, errors.New("gateway down")
	}
	_, err = s.sut.ReconcileStale(s.ctx, got)
	s.assertKind(err, apperr.KindInternal)

	got, err = s.sut.Get(s.ctx, s.owner.ID, p.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.ReconciledAt)
	s.False(got.ReconciledAt.Before(first))
	s.Empty(s.store.Outbox())
}

func TestRolePolicy(t *testing.T) {
	policy := NewRolePolicy([]string{"admin", "finance"})
	assert.True(t, policy.IsPrivileged(&model.User{Role: "finance"}))
	assert.False(t, policy.IsPrivileged(&model.User{Role: "customer"}))
}
