package payment

import (
	"context"

	"github.com/google/uuid"

	"payment-service/internal/apperr"
	"payment-service/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ListRequest struct {
	Status   *model.PaymentStatus
	Page     int
	PageSize int
}

type Page struct {
	Items    []*model.Payment `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// Get returns the payment with its refunds.
func (s *Service) Get(ctx context.Context, userID, paymentID uuid.UUID) (res *model.Payment, err error) {
	ctx, finish := s.startOp(ctx, "get")
	defer finish(&err)

	requester, err := s.requester(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.loadOwned(ctx, requester, paymentID)
}

// List pages through the requester's payments, or all payments for a
// privileged requester.
func (s *Service) List(ctx context.Context, userID uuid.UUID, req ListRequest) (res *Page, err error) {
	ctx, finish := s.startOp(ctx, "list")
	defer finish(&err)

	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}
	if req.Page < 1 || req.PageSize < 1 || req.PageSize > MaxPageSize {
		return nil, apperr.Validation("page must be >= 1 and pageSize between 1 and %d", MaxPageSize)
	}

	requester, err := s.requester(ctx, userID)
	if err != nil {
		return nil, err
	}

	filter := model.PaymentFilter{Status: req.Status, Page: req.Page, PageSize: req.PageSize}
	if !s.policy.IsPrivileged(requester) {
		filter.UserID = &requester.ID
	}

	items, total, err := s.store.ListPayments(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list payments")
	}
	if items == nil {
		items = []*model.Payment{}
	}
	return &Page{Items: items, Total: total, Page: req.Page, PageSize: req.PageSize}, nil
}
