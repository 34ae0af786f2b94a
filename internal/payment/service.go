// Package payment orchestrates payments and refunds: it checks ownership and
// state, talks to the gateway, then applies the result under a row lock.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"payment-service/internal/apperr"
	"payment-service/internal/audit"
	"payment-service/internal/logcontext"
	"payment-service/internal/metrics"
	"payment-service/internal/model"
	"payment-service/internal/provider"
	"payment-service/internal/store"
)

const defaultGatewayTimeout = 15 * time.Second

type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// AccessPolicy decides whether a user may act on payments they do not own.
type AccessPolicy interface {
	IsPrivileged(user *model.User) bool
}

type ProviderSelector interface {
	Active() (provider.Provider, error)
	ForProvider(name model.Provider) (provider.Provider, error)
}

// RolePolicy grants privilege to a fixed set of roles.
type RolePolicy struct {
	roles map[string]struct{}
}

func NewRolePolicy(roles []string) *RolePolicy {
	p := &RolePolicy{roles: make(map[string]struct{}, len(roles))}
	for _, r := range roles {
		p.roles[r] = struct{}{}
	}
	return p
}

func (p *RolePolicy) IsPrivileged(user *model.User) bool {
	_, ok := p.roles[user.Role]
	return ok
}

type Service struct {
	store          store.Store
	providers      ProviderSelector
	users          UserDirectory
	policy         AccessPolicy
	audit          *audit.Recorder
	logger         *slog.Logger
	gatewayTimeout time.Duration
	tracer         trace.Tracer
	now            func() time.Time
}

func NewService(
	st store.Store,
	providers ProviderSelector,
	users UserDirectory,
	policy AccessPolicy,
	auditLog audit.Log,
	logger *slog.Logger,
	gatewayTimeout time.Duration,
) *Service {
	if gatewayTimeout <= 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	return &Service{
		store:          st,
		providers:      providers,
		users:          users,
		policy:         policy,
		audit:          audit.NewRecorder(auditLog, logger),
		logger:         logger,
		gatewayTimeout: gatewayTimeout,
		tracer:         otel.Tracer("payment-service/internal/payment"),
		now:            time.Now,
	}
}

// startOp opens a span, tags the log context and returns a finish func that
// records the operation's outcome.
func (s *Service) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "payment."+op, trace.WithAttributes(attrs...))
	ctx = logcontext.AppendCtx(ctx, slog.String("operation", op))

	return ctx, func(errp *error) {
		result := "success"
		if err := *errp; err != nil {
			result = apperr.KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.PublicMessage(err))
		}
		metrics.PaymentOperation(op, result)
		span.End()
	}
}

func (s *Service) requester(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("unknown user")
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load user")
	}
	return u, nil
}

// loadOwned returns the payment when the requester owns it or is privileged.
func (s *Service) loadOwned(ctx context.Context, requester *model.User, id uuid.UUID) (*model.Payment, error) {
	p, err := s.store.GetPayment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("payment %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to load payment")
	}
	if p.UserID != requester.ID && !s.policy.IsPrivileged(requester) {
		return nil, apperr.Forbidden("payment %s does not belong to requester", id)
	}
	return p, nil
}

// withRefunds reloads a committed payment together with its refunds so every
// operation answers with the same shape as Get. A failed read falls back to p.
func (s *Service) withRefunds(ctx context.Context, p *model.Payment) *model.Payment {
	full, err := s.store.GetPayment(ctx, p.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to reload payment refunds", "error", err)
		return p
	}
	return full
}

func (s *Service) providerFor(name model.Provider) (provider.Provider, error) {
	p, err := s.providers.ForProvider(name)
	if err != nil {
		return nil, apperr.Internal(err, "payment provider unavailable")
	}
	return p, nil
}

// gatewayError logs a failed gateway call and converts it into an internal
// error. A timeout is ambiguous: the gateway may have applied the operation.
func (s *Service) gatewayError(ctx context.Context, op string, p provider.Provider, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.WarnContext(ctx, "Gateway call timed out, outcome unknown until reconciled",
			"provider", p.Name(), "gatewayOperation", op, "ambiguous", true, "error", err)
		return apperr.Internal(err, "payment provider timed out, the payment will be reconciled")
	}
	s.logger.ErrorContext(ctx, "Gateway call failed", "provider", p.Name(), "gatewayOperation", op, "error", err)
	return apperr.Internal(err, "payment provider request failed")
}

func (s *Service) withGatewayTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.gatewayTimeout)
}

func enqueueChange(ctx context.Context, tx store.Tx, p *model.Payment, previous model.PaymentStatus, at time.Time) error {
	msg, err := model.NewStatusChangedMessage(p, previous, at)
	if err != nil {
		return err
	}
	return tx.EnqueueOutbox(ctx, msg)
}

func txError(err error, message string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("payment not found")
	}
	return apperr.Internal(err, message)
}
