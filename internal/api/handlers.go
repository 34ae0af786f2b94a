package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payment-service/internal/apperr"
	"payment-service/internal/model"
	"payment-service/internal/payment"
)

const maxBodyBytes = 1 << 20

type createPaymentBody struct {
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description"`
	PaymentMethod *string           `json:"paymentMethod"`
	Metadata      map[string]string `json:"metadata"`
}

type capturePaymentBody struct {
	Amount *decimal.Decimal `json:"amount"`
}

type refundPaymentBody struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

type createPaymentResponse struct {
	Payment      *model.Payment `json:"payment"`
	ClientSecret string         `json:"clientSecret,omitempty"`
}

type refundResponse struct {
	Refund  *model.Refund  `json:"refund"`
	Payment *model.Payment `json:"payment"`
}

type webhookResponse struct {
	Outcome string `json:"outcome"`
}

func readBody(c *gin.Context) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("request body too large")
		}
		return nil, apperr.Validation("failed to read request body")
	}
	return raw, nil
}

// bind validates the body against schema and decodes it into out. An empty
// body counts as an empty object.
func (s *Server) bind(c *gin.Context, schema string, out any) error {
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := s.contracts.validate(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Validation("malformed request body")
	}
	return nil
}

func paymentID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid payment id")
	}
	return id, nil
}

func (s *Server) handleCreate(c *gin.Context) {
	var body createPaymentBody
	if err := s.bind(c, schemaCreatePayment, &body); err != nil {
		respondError(c, err)
		return
	}

	res, err := s.payments.Create(c.Request.Context(), currentUser(c), payment.CreateRequest{
		Amount:        body.Amount,
		Currency:      body.Currency,
		Description:   body.Description,
		PaymentMethod: body.PaymentMethod,
		Metadata:      body.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, createPaymentResponse{Payment: res.Payment, ClientSecret: res.ClientSecret})
}

func (s *Server) handleList(c *gin.Context) {
	var req payment.ListRequest

	if v := c.Query("status"); v != "" {
		status, err := model.ParsePaymentStatus(v)
		if err != nil {
			respondError(c, apperr.Validation("unknown status %q", v))
			return
		}
		req.Status = &status
	}
	for param, dst := range map[string]*int{"page": &req.Page, "pageSize": &req.PageSize} {
		v := c.Query(param)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(c, apperr.Validation("%s must be an integer", param))
			return
		}
		*dst = n
	}

	page, err := s.payments.List(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, page)
}

func (s *Server) handleGet(c *gin.Context) {
	id, err := paymentID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := s.payments.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

func (s *Server) handleCapture(c *gin.Context) {
	id, err := paymentID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var body capturePaymentBody
	if err := s.bind(c, schemaCapturePayment, &body); err != nil {
		respondError(c, err)
		return
	}

	p, err := s.payments.Capture(c.Request.Context(), currentUser(c), id, body.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

func (s *Server) handleRefund(c *gin.Context) {
	id, err := paymentID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var body refundPaymentBody
	if err := s.bind(c, schemaRefundPayment, &body); err != nil {
		respondError(c, err)
		return
	}

	res, err := s.payments.Refund(c.Request.Context(), currentUser(c), id, payment.RefundRequest{
		Amount: body.Amount,
		Reason: body.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, refundResponse{Refund: res.Refund, Payment: res.Payment})
}

func (s *Server) handleReconcile(c *gin.Context) {
	id, err := paymentID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := s.payments.Reconcile(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, p)
}

// handleWebhook passes the body through untouched: signatures are computed
// over the exact bytes the gateway sent.
func (s *Server) handleWebhook(c *gin.Context) {
	raw, err := readBody(c)
	if err != nil {
		respondError(c, err)
		return
	}

	outcome, err := s.webhooks.Ingest(c.Request.Context(), c.Param("provider"), c.Request.Header, raw)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, webhookResponse{Outcome: string(outcome)})
}
