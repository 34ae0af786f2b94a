package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payment-service/internal/money"
)

type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderMidtrans Provider = "midtrans"
	ProviderSandbox  Provider = "sandbox"
)

var providers = map[Provider]struct{}{
	ProviderStripe:   {},
	ProviderMidtrans: {},
	ProviderSandbox:  {},
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if _, ok := providers[p]; !ok {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrNotRefundable     = errors.New("payment is not refundable in its current status")
	ErrRefundExceeds     = errors.New("refund exceeds remaining amount")
)

type Payment struct {
	ID                uuid.UUID         `json:"id"`
	UserID            uuid.UUID         `json:"userId"`
	Provider          Provider          `json:"provider"`
	ProviderPaymentID string            `json:"providerPaymentId"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          money.Currency    `json:"currency"`
	Status            PaymentStatus     `json:"status"`
	PaymentMethod     *string           `json:"paymentMethod,omitempty"`
	Description       string            `json:"description"`
	Metadata          map[string]string `json:"metadata"`
	RefundedAmount    decimal.Decimal   `json:"refundedAmount"`
	CapturedAmount    decimal.Decimal   `json:"capturedAmount"`
	CapturedAt        *time.Time        `json:"capturedAt,omitempty"`
	RefundedAt        *time.Time        `json:"refundedAt,omitempty"`
	ReconciledAt      *time.Time        `json:"reconciledAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Refunds           []*Refund         `json:"refunds,omitempty"`
}

// Transition moves the payment to next. Re-entering the current status is a
// no-op and reports false. Refund statuses are only reachable through
// ApplyRefund so that status never drifts from RefundedAmount.
func (p *Payment) Transition(next PaymentStatus, at time.Time) (bool, error) {
	if p.Status == next {
		if next == StatusSucceeded && p.CapturedAt == nil {
			p.markCaptured(at)
			p.UpdatedAt = at
		}
		return false, nil
	}
	if next.IsRefundState() || !p.Status.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.Status, next)
	}

	p.Status = next
	p.UpdatedAt = at
	if next == StatusSucceeded && p.CapturedAt == nil {
		p.markCaptured(at)
	}
	return true, nil
}

// markCaptured stamps the capture. A payment settled without an explicit
// partial amount counts as captured in full.
func (p *Payment) markCaptured(at time.Time) {
	p.CapturedAt = &at
	if !p.CapturedAmount.IsPositive() {
		p.CapturedAmount = p.Amount
	}
}

func (p *Payment) Refundable() bool {
	return p.Status == StatusSucceeded || p.Status == StatusPartiallyRefunded
}

// RefundCeiling is the most that can ever be refunded: the captured amount,
// or the full amount when no capture amount was recorded.
func (p *Payment) RefundCeiling() decimal.Decimal {
	if p.CapturedAmount.IsPositive() {
		return p.CapturedAmount
	}
	return p.Amount
}

func (p *Payment) RemainingAmount() decimal.Decimal {
	return p.RefundCeiling().Sub(p.RefundedAmount)
}

// ApplyRefund adds amount to RefundedAmount and recomputes the status.
func (p *Payment) ApplyRefund(amount decimal.Decimal, at time.Time) error {
	if !p.Refundable() {
		return fmt.Errorf("%w: %s", ErrNotRefundable, p.Status)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("refund amount must be positive")
	}
	ceiling := p.RefundCeiling()
	total := p.RefundedAmount.Add(amount)
	if total.GreaterThan(ceiling) {
		return fmt.Errorf("%w: %s + %s > %s", ErrRefundExceeds, p.RefundedAmount, amount, ceiling)
	}

	p.RefundedAmount = total
	p.Status = RefundStatusFor(ceiling, total)
	p.RefundedAt = &at
	p.UpdatedAt = at
	return nil
}

// ReleaseRefund gives back an amount reserved by a pending refund that the
// gateway later declined.
func (p *Payment) ReleaseRefund(amount decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() || amount.GreaterThan(p.RefundedAmount) {
		return fmt.Errorf("cannot release %s of refunded %s", amount, p.RefundedAmount)
	}
	p.RefundedAmount = p.RefundedAmount.Sub(amount)
	p.Status = RefundStatusFor(p.RefundCeiling(), p.RefundedAmount)
	if p.RefundedAmount.IsZero() {
		p.RefundedAt = nil
	}
	p.UpdatedAt = at
	return nil
}

// RefundStatusFor derives the status of a captured payment from its refunded total.
// amount is the refund ceiling, see RefundCeiling.
func RefundStatusFor(amount, refunded decimal.Decimal) PaymentStatus {
	switch {
	case refunded.IsZero():
		return StatusSucceeded
	case refunded.Equal(amount):
		return StatusRefunded
	default:
		return StatusPartiallyRefunded
	}
}

func (p *Payment) Clone() *Payment {
	c := *p
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	if p.ReconciledAt != nil {
		at := *p.ReconciledAt
		c.ReconciledAt = &at
	}
	if p.Refunds != nil {
		c.Refunds = make([]*Refund, len(p.Refunds))
		for i, r := range p.Refunds {
			rc := *r
			c.Refunds[i] = &rc
		}
	}
	return &c
}

type PaymentFilter struct {
	UserID   *uuid.UUID
	Status   *PaymentStatus
	Page     int
	PageSize int
}

func (f PaymentFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
