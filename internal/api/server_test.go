package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"payment-service/internal/config"
	"payment-service/internal/model"
	"payment-service/internal/payment"
	"payment-service/internal/provider"
	"payment-service/internal/testhelpers"
	"payment-service/internal/webhook"
)

const (
	testJWTSecret     = "test-secret"
	testWebhookSecret = "whsec_test"
)

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

type ServerTestSuite struct {
	suite.Suite
	store   *testhelpers.MemoryStore
	gateway *testhelpers.FakeProvider
	owner   *model.User
	other   *model.User
	handler http.Handler
}

func (s *ServerTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *ServerTestSuite) SetupTest() {
	s.store = testhelpers.NewMemoryStore()
	s.gateway = testhelpers.NewFakeProvider(model.ProviderSandbox)
	s.owner = testhelpers.NewUser("customer")
	s.other = testhelpers.NewUser("customer")

	selector, err := provider.NewSelector(config.Payments{
		ActiveProvider: "sandbox",
		Providers: map[string]config.Provider{
			"sandbox": {APIKey: "k", BaseURL: "http://sandbox", WebhookSecret: testWebhookSecret},
		},
	}, testhelpers.FakeFactory(s.gateway))
	s.Require().NoError(err)

	logger := testhelpers.DiscardLogger()
	auditLog := &testhelpers.MemoryAudit{}
	svc := payment.NewService(s.store, selector, testhelpers.NewMemoryUsers(s.owner, s.other),
		payment.NewRolePolicy([]string{"admin"}), auditLog, logger, time.Second)
	pipeline := webhook.NewPipeline(s.store, selector, auditLog, logger)

	server, err := NewServer(svc, pipeline, testJWTSecret, logger)
	s.Require().NoError(err)
	s.handler = server.Handler()
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) token(user *model.User) string {
	token, err := GenerateToken([]byte(testJWTSecret), user.ID, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *ServerTestSuite) do(method, path string, user *model.User, body string) (*httptest.ResponseRecorder, response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(user))
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var res response
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	}
	return rec, res
}

func (s *ServerTestSuite) decode(raw json.RawMessage, out any) {
	s.Require().NoError(json.Unmarshal(raw, out))
}

func (s *ServerTestSuite) createPayment(amount string) *model.Payment {
	rec, res := s.do(http.MethodPost, "/api/payments", s.owner, `{"amount":"`+amount+`","currency":"USD","description":"order 42"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var created createPaymentResponse
	s.decode(res.Data, &created)
	return created.Payment
}

func (s *ServerTestSuite) TestLiveness() {
	rec, _ := s.do(http.MethodGet, "/liveness", nil, "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ServerTestSuite) TestMetrics() {
	s.createPayment("10.00")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "payment_operations_total")
}

func (s *ServerTestSuite) TestUnknownRoute() {
	rec, res := s.do(http.MethodGet, "/nope", nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.False(res.Success)
}

func (s *ServerTestSuite) TestAuthentication() {
	rec, res := s.do(http.MethodGet, "/api/payments", nil, "")
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("UnauthorizedError", res.Error.Type)

	expired, err := GenerateToken([]byte(testJWTSecret), s.owner.ID, -time.Minute)
	s.Require().NoError(err)
	forged, err := GenerateToken([]byte("other-secret"), s.owner.ID, time.Hour)
	s.Require().NoError(err)

	for _, token := range []string{expired, forged, "garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		s.Equal(http.StatusUnauthorized, rec.Code)
	}
}

func (s *ServerTestSuite) TestUnknownUserIsUnauthorized() {
	stranger := &model.User{ID: uuid.New()}
	rec, _ := s.do(http.MethodGet, "/api/payments", stranger, "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *ServerTestSuite) TestPaymentLifecycle() {
	p := s.createPayment("100.00")
	s.Equal(model.StatusPending, p.Status)
	base := "/api/payments/" + p.ID.String()

	rec, res := s.do(http.MethodPost, base+"/capture", s.owner, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var captured model.Payment
	s.decode(res.Data, &captured)
	s.Equal(model.StatusSucceeded, captured.Status)
	s.NotNil(captured.CapturedAt)

	rec, res = s.do(http.MethodPost, base+"/refunds", s.owner, `{"amount":"40.00","reason":"damaged"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var refunded refundResponse
	s.decode(res.Data, &refunded)
	s.Equal(model.StatusPartiallyRefunded, refunded.Payment.Status)
	s.True(refunded.Refund.Amount.Equal(decimal.RequireFromString("40")))

	rec, _ = s.do(http.MethodPost, base+"/refunds", s.owner, `{"amount":"60.01"}`)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, res = s.do(http.MethodGet, base, s.owner, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var got model.Payment
	s.decode(res.Data, &got)
	s.Len(got.Refunds, 1)
	s.True(got.RefundedAmount.Equal(decimal.RequireFromString("40")))

	rec, _ = s.do(http.MethodPost, base+"/capture", s.owner, "")
	s.Equal(http.StatusConflict, rec.Code)

	rec, res = s.do(http.MethodGet, "/api/payments?page=1&pageSize=10", s.owner, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var page payment.Page
	s.decode(res.Data, &page)
	s.Equal(1, page.Total)
	s.Len(page.Items, 1)
}

func (s *ServerTestSuite) TestOwnershipEnforced() {
	p := s.createPayment("10.00")

	rec, res := s.do(http.MethodGet, "/api/payments/"+p.ID.String(), s.other, "")
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("ForbiddenError", res.Error.Type)

	rec, _ = s.do(http.MethodPost, "/api/payments/"+p.ID.String()+"/capture", s.other, "")
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal(0, s.gateway.Calls("capture"))
}

func (s *ServerTestSuite) TestRequestValidation() {
	bodies := []string{
		`{"amount":100,"currency":"USD"}`,
		`{"amount":"-1","currency":"USD"}`,
		`{"amount":"10","currency":"DOLLARS"}`,
		`{"currency":"USD"}`,
		`{"amount":"10","currency":"USD","unexpected":true}`,
		`not json`,
	}
	for _, body := range bodies {
		rec, res := s.do(http.MethodPost, "/api/payments", s.owner, body)
		s.Equal(http.StatusBadRequest, rec.Code, body)
		s.Equal("ValidationError", res.Error.Type, body)
	}
	s.Equal(0, s.gateway.Calls("create"))

	rec, _ := s.do(http.MethodGet, "/api/payments/not-a-uuid", s.owner, "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/payments?status=BOGUS", s.owner, "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/payments?pageSize=1000", s.owner, "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerTestSuite) TestInternalErrorsAreNotLeaked() {
	s.gateway.CreateFunc = func(ctx context.Context, req provider.CreatePaymentRequest) (*provider.PaymentIntent, error) {
		return nil, errors.New("dial tcp 10.0.0.7:443: secret-host unreachable")
	}

	rec, res := s.do(http.MethodPost, "/api/payments", s.owner, `{"amount":"10","currency":"USD"}`)
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("InternalServerError", res.Error.Type)
	s.NotContains(rec.Body.String(), "secret-host")
}

func (s *ServerTestSuite) postWebhook(raw []byte, signature string) (*httptest.ResponseRecorder, response) {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sandbox", bytes.NewReader(raw))
	req.Header.Set(testhelpers.FakeSignatureHeader, signature)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var res response
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &res))
	return rec, res
}

func (s *ServerTestSuite) TestWebhooks() {
	p := s.createPayment("25.00")

	raw, err := json.Marshal(testhelpers.FakeEvent{ID: "evt_1", Type: "payment.succeeded", PaymentID: p.ProviderPaymentID})
	s.Require().NoError(err)
	signature := testhelpers.SignFake(raw, testWebhookSecret)

	rec, res := s.postWebhook(raw, signature)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var first webhookResponse
	s.decode(res.Data, &first)
	s.Equal(string(webhook.OutcomeApplied), first.Outcome)

	rec, res = s.postWebhook(raw, signature)
	s.Equal(http.StatusOK, rec.Code)
	var second webhookResponse
	s.decode(res.Data, &second)
	s.Equal(string(webhook.OutcomeDuplicate), second.Outcome)

	rec, _ = s.postWebhook(raw, "bad-signature")
	s.Equal(http.StatusUnauthorized, rec.Code)

	_, res = s.do(http.MethodGet, "/api/payments/"+p.ID.String(), s.owner, "")
	var got model.Payment
	s.decode(res.Data, &got)
	s.Equal(model.StatusSucceeded, got.Status)
}

func (s *ServerTestSuite) TestWebhookUnknownProvider() {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	s.Equal(http.StatusNotFound, rec.Code)
}
