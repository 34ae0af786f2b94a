package model

import "fmt"

type PaymentStatus string

const (
	StatusPending           PaymentStatus = "PENDING"
	StatusProcessing        PaymentStatus = "PROCESSING"
	StatusSucceeded         PaymentStatus = "SUCCEEDED"
	StatusFailed            PaymentStatus = "FAILED"
	StatusCancelled         PaymentStatus = "CANCELLED"
	StatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	StatusRefunded          PaymentStatus = "REFUNDED"
)

var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:           {StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled},
	StatusProcessing:        {StatusSucceeded, StatusFailed, StatusCancelled},
	StatusSucceeded:         {StatusPartiallyRefunded, StatusRefunded},
	StatusPartiallyRefunded: {StatusPartiallyRefunded, StatusRefunded},
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	if _, ok := transitions[st]; ok || st.IsTerminal() {
		return st, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusRefunded
}

func (s PaymentStatus) IsRefundState() bool {
	return s == StatusPartiallyRefunded || s == StatusRefunded
}

// IsCaptured reports whether the payment has reached SUCCEEDED at some point.
func (s PaymentStatus) IsCaptured() bool {
	return s == StatusSucceeded || s.IsRefundState()
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundSucceeded RefundStatus = "SUCCEEDED"
	RefundFailed    RefundStatus = "FAILED"
)

// Counted reports whether the refund takes money off the payment.
func (s RefundStatus) Counted() bool {
	return s == RefundPending || s == RefundSucceeded
}
