package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"payment-service/internal/provider/sandbox"
)

const (
	apiKeyHeader = sandbox.APIKeyHeader
	contentType  = "application/json"

	// Payment methods that make the mock misbehave on purpose.
	methodDecline = "decline"
	methodSlow    = "slow"
	methodPending = "pending_refund"
)

// gateway is an in-memory sandbox payment gateway. It serves the sandbox
// adapter's REST API and reports state changes to a webhook URL.
type gateway struct {
	mu          sync.Mutex
	payments    map[string]*sandbox.PaymentResource
	methods     map[string]string
	idempotency map[string][]byte
	seq         int

	webhookURL    string
	webhookSecret string
	webhookDelay  time.Duration
	slowDelay     time.Duration
	client        *http.Client
	logger        *slog.Logger
	// wg tracks in-flight webhook deliveries.
	wg sync.WaitGroup
}

func newGateway(webhookURL, webhookSecret string, logger *slog.Logger) *gateway {
	return &gateway{
		payments:      make(map[string]*sandbox.PaymentResource),
		methods:       make(map[string]string),
		idempotency:   make(map[string][]byte),
		webhookURL:    webhookURL,
		webhookSecret: webhookSecret,
		webhookDelay:  500 * time.Millisecond,
		slowDelay:     20 * time.Second,
		client:        &http.Client{Timeout: 5 * time.Second},
		logger:        logger,
	}
}

func (g *gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments", g.createPayment)
	mux.HandleFunc("GET /payments/{id}", g.getPayment)
	mux.HandleFunc("POST /payments/{id}/capture", g.capturePayment)
	mux.HandleFunc("POST /payments/{id}/refunds", g.refundPayment)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, sandbox.ErrorBody{Error: message})
}

func (g *gateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%06d", prefix, g.seq)
}

// replay answers a request whose Idempotency-Key was seen before. Callers hold g.mu.
func (g *gateway) replay(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return false
	}
	cached, ok := g.idempotency[r.URL.Path+"|"+key]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(http.StatusOK)
	w.Write(cached)
	return true
}

func (g *gateway) remember(r *http.Request, v any) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	g.idempotency[r.URL.Path+"|"+key] = raw
}

func (g *gateway) createPayment(w http.ResponseWriter, r *http.Request) {
	var body sandbox.CreatePaymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.AmountMinor <= 0 || len(body.Currency) != 3 {
		writeError(w, http.StatusBadRequest, "amount_minor and currency are required")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.replay(w, r) {
		return
	}

	id := g.nextID("pay")
	p := &sandbox.PaymentResource{
		ID:           id,
		Status:       "created",
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		AmountMinor:  body.AmountMinor,
		Currency:     strings.ToUpper(body.Currency),
		Metadata:     body.Metadata,
	}
	if body.PaymentMethod == methodDecline {
		p.Status = "declined"
		g.notify(sandbox.Event{ID: "evt_" + id + "_failed", Type: sandbox.EventPaymentFailed, Data: eventData(p, "", "failed")})
	}
	g.payments[id] = p
	g.methods[id] = body.PaymentMethod

	res := *p
	g.remember(r, res)
	writeJSON(w, http.StatusCreated, res)
}

func (g *gateway) getPayment(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "no such payment")
		return
	}
	writeJSON(w, http.StatusOK, *p)
}

func (g *gateway) capturePayment(w http.ResponseWriter, r *http.Request) {
	var body sandbox.CaptureBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	g.mu.Lock()
	p, ok := g.payments[r.PathValue("id")]
	slow := ok && g.methods[p.ID] == methodSlow
	g.mu.Unlock()
	if slow {
		time.Sleep(g.slowDelay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.replay(w, r) {
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no such payment")
		return
	}
	if p.Status != "created" && p.Status != "authorized" {
		writeError(w, http.StatusConflict, "payment is "+p.Status)
		return
	}

	amount := p.AmountMinor
	if body.AmountMinor != nil {
		amount = *body.AmountMinor
	}
	if amount <= 0 || amount > p.AmountMinor {
		writeError(w, http.StatusBadRequest, "invalid capture amount")
		return
	}

	p.Status = "captured"
	p.Captured = amount
	g.notify(sandbox.Event{ID: "evt_" + p.ID + "_captured", Type: sandbox.EventPaymentSucceeded, Data: eventData(p, "", "captured")})

	res := *p
	g.remember(r, res)
	writeJSON(w, http.StatusOK, res)
}

func (g *gateway) refundPayment(w http.ResponseWriter, r *http.Request) {
	var body sandbox.RefundBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.replay(w, r) {
		return
	}

	p, ok := g.payments[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "no such payment")
		return
	}
	if p.Status != "captured" && p.Status != "partially_refunded" {
		writeError(w, http.StatusConflict, "payment is "+p.Status)
		return
	}

	remaining := p.Captured - p.Refunded
	amount := remaining
	if body.AmountMinor != nil {
		amount = *body.AmountMinor
	}
	if amount <= 0 || amount > remaining {
		writeError(w, http.StatusBadRequest, "refund exceeds captured amount")
		return
	}

	refund := sandbox.RefundResource{
		ID:          g.nextID("re"),
		PaymentID:   p.ID,
		Status:      "succeeded",
		AmountMinor: amount,
		Currency:    p.Currency,
	}
	p.Refunded += amount
	if g.methods[p.ID] == methodPending {
		refund.Status = "pending"
	} else {
		g.notify(sandbox.Event{ID: "evt_" + refund.ID, Type: sandbox.EventRefundSucceeded, Data: refundData(p, refund)})
	}
	if p.Refunded == p.Captured {
		p.Status = "refunded"
	} else {
		p.Status = "partially_refunded"
	}

	g.remember(r, refund)
	writeJSON(w, http.StatusCreated, refund)
}

func eventData(p *sandbox.PaymentResource, refundID, status string) sandbox.EventData {
	return sandbox.EventData{
		PaymentID:   p.ID,
		RefundID:    refundID,
		Status:      status,
		AmountMinor: p.AmountMinor,
		Currency:    p.Currency,
	}
}

func refundData(p *sandbox.PaymentResource, rf sandbox.RefundResource) sandbox.EventData {
	d := eventData(p, rf.ID, rf.Status)
	d.AmountMinor = rf.AmountMinor
	return d
}

// notify posts a signed event to the webhook URL after webhookDelay. The
// response arrives first, as with a real gateway. Callers hold g.mu.
func (g *gateway) notify(e sandbox.Event) {
	if g.webhookURL == "" {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		g.logger.Error("Failed to encode webhook", "eventId", e.ID, "error", err)
		return
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		time.Sleep(g.webhookDelay)
		g.deliver(e.ID, raw)
	}()
}

func (g *gateway) deliver(eventID string, raw []byte) {
	req, err := http.NewRequest(http.MethodPost, g.webhookURL, bytes.NewReader(raw))
	if err != nil {
		g.logger.Error("Failed to build webhook request", "eventId", eventID, "error", err)
		return
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sandbox.SignatureHeader, sandbox.Sign(raw, g.webhookSecret))

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("Webhook delivery failed", "eventId", eventID, "error", err)
		return
	}
	defer resp.Body.Close()

	g.logger.Info("Webhook delivered", "eventId", eventID, "status", resp.StatusCode)
}
