package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"payment-service/internal/model"
	"payment-service/internal/store"
)

type memState struct {
	payments map[uuid.UUID]*model.Payment
	refunds  []*model.Refund
	webhooks map[uuid.UUID]*model.WebhookEvent
	outbox   []*model.OutboxMessage
}

func (s *memState) clone() *memState {
	c := &memState{
		payments: make(map[uuid.UUID]*model.Payment, len(s.payments)),
		refunds:  make([]*model.Refund, len(s.refunds)),
		webhooks: make(map[uuid.UUID]*model.WebhookEvent, len(s.webhooks)),
		outbox:   make([]*model.OutboxMessage, len(s.outbox)),
	}
	for id, p := range s.payments {
		c.payments[id] = p.Clone()
	}
	for i, r := range s.refunds {
		rc := *r
		c.refunds[i] = &rc
	}
	for id, w := range s.webhooks {
		wc := *w
		c.webhooks[id] = &wc
	}
	for i, m := range s.outbox {
		mc := *m
		c.outbox[i] = &mc
	}
	return c
}

// MemoryStore is an in-memory store.Store. Transactions are serialized and
// work on a copy that replaces the state on commit, so a failed transaction
// leaves nothing behind.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState

	// FailNextTx makes the next WithTx fail before running fn.
	FailNextTx error
}

var _ store.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		payments: map[uuid.UUID]*model.Payment{},
		webhooks: map[uuid.UUID]*model.WebhookEvent{},
	}}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailNextTx; err != nil {
		m.FailNextTx = nil
		return err
	}

	tx := &memTx{state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *MemoryStore) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := p.Clone()
	for _, r := range m.state.refunds {
		if r.PaymentID == id {
			rc := *r
			c.Refunds = append(c.Refunds, &rc)
		}
	}
	return c, nil
}

func (m *MemoryStore) ListPayments(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*model.Payment
	for _, p := range m.state.payments {
		if filter.UserID != nil && p.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		matched = append(matched, p.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) ListStalePayments(ctx context.Context, before time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*model.Payment
	for _, p := range m.state.payments {
		if p.Status != model.StatusPending && p.Status != model.StatusProcessing {
			continue
		}
		if p.UpdatedAt.Before(before) && (p.ReconciledAt == nil || p.ReconciledAt.Before(before)) {
			stale = append(stale, p.Clone())
		}
	}
	// never reconciled first, then least recently reconciled
	sort.Slice(stale, func(i, j int) bool {
		a, b := stale[i].ReconciledAt, stale[j].ReconciledAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (m *MemoryStore) InsertWebhookEvent(ctx context.Context, e *model.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.EventID != nil {
		for _, existing := range m.state.webhooks {
			if existing.Provider == e.Provider && existing.EventID != nil && *existing.EventID == *e.EventID {
				*e = *existing
				return false, nil
			}
		}
	}
	c := *e
	m.state.webhooks[e.ID] = &c
	return true, nil
}

func (m *MemoryStore) MarkWebhookEventFailed(ctx context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.state.webhooks[id]
	if !ok {
		return store.ErrNotFound
	}
	w.ErrorMessage = &message
	return nil
}

// Test inspection helpers.

func (m *MemoryStore) Payments() []*model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Payment
	for _, p := range m.state.payments {
		out = append(out, p.Clone())
	}
	return out
}

func (m *MemoryStore) Refunds() []*model.Refund {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Refund, len(m.state.refunds))
	for i, r := range m.state.refunds {
		rc := *r
		out[i] = &rc
	}
	return out
}

func (m *MemoryStore) WebhookEvents() []*model.WebhookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.WebhookEvent
	for _, w := range m.state.webhooks {
		wc := *w
		out = append(out, &wc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) Outbox() []*model.OutboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.OutboxMessage, len(m.state.outbox))
	for i, o := range m.state.outbox {
		oc := *o
		out[i] = &oc
	}
	return out
}

// PutPayment seeds a payment outside of any transaction.
func (m *MemoryStore) PutPayment(p *model.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.payments[p.ID] = p.Clone()
}

type memTx struct {
	state *memState
}

func (t *memTx) InsertPayment(ctx context.Context, p *model.Payment) error {
	for _, existing := range t.state.payments {
		if existing.ID == p.ID {
			return fmt.Errorf("duplicate payment id %s", p.ID)
		}
		if existing.Provider == p.Provider && existing.ProviderPaymentID == p.ProviderPaymentID {
			return fmt.Errorf("duplicate provider payment id %s", p.ProviderPaymentID)
		}
	}
	t.state.payments[p.ID] = p.Clone()
	return nil
}

func (t *memTx) LockPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	p, ok := t.state.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (t *memTx) LockPaymentByProviderID(ctx context.Context, provider model.Provider, providerPaymentID string) (*model.Payment, error) {
	for _, p := range t.state.payments {
		if p.Provider == provider && p.ProviderPaymentID == providerPaymentID {
			return p.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	if _, ok := t.state.payments[p.ID]; !ok {
		return store.ErrNotFound
	}
	if p.RefundedAmount.IsNegative() || p.RefundedAmount.GreaterThan(p.RefundCeiling()) {
		return fmt.Errorf("refunded amount %s out of range for payment %s", p.RefundedAmount, p.ID)
	}
	if p.CapturedAmount.GreaterThan(p.Amount) {
		return fmt.Errorf("captured amount %s exceeds payment %s", p.CapturedAmount, p.ID)
	}
	c := p.Clone()
	c.Refunds = nil
	t.state.payments[p.ID] = c
	return nil
}

func (t *memTx) InsertRefund(ctx context.Context, r *model.Refund) (bool, error) {
	for _, existing := range t.state.refunds {
		if existing.Provider == r.Provider && existing.ProviderRefundID == r.ProviderRefundID {
			return false, nil
		}
	}
	rc := *r
	t.state.refunds = append(t.state.refunds, &rc)
	return true, nil
}

func (t *memTx) LockRefund(ctx context.Context, provider model.Provider, providerRefundID string) (*model.Refund, error) {
	for _, r := range t.state.refunds {
		if r.Provider == provider && r.ProviderRefundID == providerRefundID {
			rc := *r
			return &rc, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) UpdateRefund(ctx context.Context, r *model.Refund) error {
	for i, existing := range t.state.refunds {
		if existing.ID == r.ID {
			rc := *r
			t.state.refunds[i] = &rc
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) LockWebhookEvent(ctx context.Context, id uuid.UUID) (*model.WebhookEvent, error) {
	w, ok := t.state.webhooks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	wc := *w
	return &wc, nil
}

func (t *memTx) MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	w, ok := t.state.webhooks[id]
	if !ok {
		return store.ErrNotFound
	}
	w.Processed = true
	w.ProcessedAt = &at
	w.ErrorMessage = nil
	return nil
}

func (t *memTx) EnqueueOutbox(ctx context.Context, m *model.OutboxMessage) error {
	mc := *m
	t.state.outbox = append(t.state.outbox, &mc)
	return nil
}
