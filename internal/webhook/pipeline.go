// Package webhook ingests gateway notifications: it verifies and logs each
// delivery, drops duplicates and applies the event to the payment it names.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
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

type Outcome string

const (
	// OutcomeApplied means the event changed a payment.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event was valid but changed nothing.
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeRejected means the event could never be applied. It is logged
	// with its error and acknowledged, since redelivery would not help.
	OutcomeRejected Outcome = "rejected"
)

type ProviderSource interface {
	ForProvider(name model.Provider) (provider.Provider, error)
	WebhookSecret(name model.Provider) string
}

type Pipeline struct {
	store     store.Store
	providers ProviderSource
	audit     *audit.Recorder
	logger    *slog.Logger
	tracer    trace.Tracer
	handlers  map[provider.EventKind]Handler
	now       func() time.Time
}

func NewPipeline(st store.Store, providers ProviderSource, auditLog audit.Log, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     st,
		providers: providers,
		audit:     audit.NewRecorder(auditLog, logger),
		logger:    logger,
		tracer:    otel.Tracer("payment-service/internal/webhook"),
		handlers:  defaultHandlers(),
		now:       time.Now,
	}
}

// Handle registers h for kind, replacing any existing handler.
func (p *Pipeline) Handle(kind provider.EventKind, h Handler) {
	p.handlers[kind] = h
}

// Ingest processes one delivery for the named provider. raw must be the body
// exactly as received. A nil error means the delivery should be acknowledged.
func (p *Pipeline) Ingest(ctx context.Context, providerName string, headers http.Header, raw []byte) (outcome Outcome, err error) {
	ctx, span := p.tracer.Start(ctx, "webhook.ingest", trace.WithAttributes(attribute.String("provider", providerName)))
	defer func() {
		result := string(outcome)
		if err != nil {
			result = apperr.KindOf(err).String()
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.PublicMessage(err))
		}
		metrics.WebhookDelivery(providerName, result)
		span.SetAttributes(attribute.String("outcome", result))
		span.End()
	}()
	ctx = logcontext.AppendCtx(ctx, slog.String("provider", providerName))

	name, err := model.ParseProvider(providerName)
	if err != nil {
		return "", apperr.NotFound("unknown provider %q", providerName)
	}
	gateway, err := p.providers.ForProvider(name)
	if err != nil {
		p.logger.ErrorContext(ctx, "Webhook provider unavailable", "error", err)
		return "", apperr.Internal(err, "payment provider unavailable")
	}

	now := p.now()
	row := &model.WebhookEvent{
		ID:         uuid.New(),
		Provider:   name,
		EventType:  "unknown",
		RawPayload: string(raw),
		CreatedAt:  now,
	}

	if !gateway.VerifyWebhook(raw, headers.Get(gateway.SignatureHeader()), p.providers.WebhookSecret(name)) {
		p.logger.WarnContext(ctx, "Webhook signature verification failed")
		p.reject(ctx, row, "signature verification failed")
		return "", apperr.Unauthorized("invalid webhook signature")
	}
	row.SignatureVerified = true

	event, err := gateway.ParseWebhookEvent(raw)
	if err == nil && event.ID == "" {
		err = errors.New("event has no id")
	}
	if err != nil {
		p.logger.WarnContext(ctx, "Webhook payload could not be parsed", "error", err)
		p.reject(ctx, row, "unparseable payload: "+err.Error())
		return "", apperr.Validation("malformed webhook payload")
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("eventId", event.ID), slog.String("eventType", event.Type))
	span.SetAttributes(attribute.String("event.id", event.ID), attribute.String("event.type", event.Type))

	row.EventID = &event.ID
	row.EventType = event.Type
	inserted, err := p.store.InsertWebhookEvent(ctx, row)
	if err != nil {
		return "", apperr.Internal(err, "failed to log webhook")
	}
	if !inserted && row.Processed {
		p.logger.InfoContext(ctx, "Duplicate webhook acknowledged")
		return OutcomeDuplicate, nil
	}

	return p.apply(ctx, gateway.Name(), row.ID, event)
}

func (p *Pipeline) apply(ctx context.Context, name model.Provider, rowID uuid.UUID, event *provider.WebhookEvent) (Outcome, error) {
	handler, known := p.handlers[event.Kind]

	var (
		change    *Change
		duplicate bool
	)
	err := p.store.WithTx(ctx, func(tx store.Tx) error {
		row, err := tx.LockWebhookEvent(ctx, rowID)
		if err != nil {
			return err
		}
		if row.Processed {
			duplicate = true
			return nil
		}

		now := p.now()
		if known {
			change, err = handler(ctx, tx, name, event, now)
			if err != nil {
				return err
			}
		}
		if change != nil {
			if err := tx.UpdatePayment(ctx, change.Payment); err != nil {
				return err
			}
			msg, err := model.NewStatusChangedMessage(change.Payment, change.Previous, now)
			if err != nil {
				return err
			}
			if err := tx.EnqueueOutbox(ctx, msg); err != nil {
				return err
			}
		}
		return tx.MarkWebhookEventProcessed(ctx, rowID, now)
	})

	switch {
	case err != nil:
		return p.fail(ctx, rowID, err)
	case duplicate:
		p.logger.InfoContext(ctx, "Duplicate webhook acknowledged")
		return OutcomeDuplicate, nil
	case !known:
		p.logger.InfoContext(ctx, "Webhook event type not handled", "kind", event.Kind)
		return OutcomeIgnored, nil
	case change == nil:
		p.logger.InfoContext(ctx, "Webhook changed nothing")
		return OutcomeIgnored, nil
	}

	p.logger.InfoContext(ctx, "Webhook applied", "paymentId", change.Payment.ID,
		"from", change.Previous, "to", change.Payment.Status)
	details := map[string]any{
		"eventId":   event.ID,
		"eventType": event.Type,
		"provider":  string(name),
		"from":      string(change.Previous),
		"to":        string(change.Payment.Status),
	}
	for k, v := range change.Details {
		details[k] = v
	}
	p.audit.Record(ctx, nil, audit.ActionWebhook, change.Payment, details)
	return OutcomeApplied, nil
}

// fail records err on the log row. Errors redelivery cannot fix are
// acknowledged; anything else is returned so the gateway retries.
func (p *Pipeline) fail(ctx context.Context, rowID uuid.UUID, err error) (Outcome, error) {
	if ferr := p.store.MarkWebhookEventFailed(ctx, rowID, err.Error()); ferr != nil {
		p.logger.ErrorContext(ctx, "Failed to record webhook error", "error", ferr)
	}

	if errors.Is(err, errNotCaptured) {
		p.logger.WarnContext(ctx, "Refund arrived before capture, awaiting redelivery", "error", err)
		return "", apperr.Internal(err, "payment not captured yet")
	}

	switch apperr.KindOf(err) {
	case apperr.KindConflict, apperr.KindValidation:
		p.logger.WarnContext(ctx, "Webhook rejected", "error", err)
		return OutcomeRejected, nil
	case apperr.KindNotFound:
		p.logger.WarnContext(ctx, "Webhook refers to an unknown payment, awaiting redelivery", "error", err)
		return "", apperr.Internal(err, "payment not found for webhook")
	}
	if errors.Is(err, store.ErrNotFound) {
		return "", apperr.Internal(err, "webhook log row vanished")
	}
	p.logger.ErrorContext(ctx, "Webhook processing failed", "error", err)
	return "", apperr.Internal(err, "failed to process webhook")
}

// reject logs a delivery that could not be trusted or read.
func (p *Pipeline) reject(ctx context.Context, row *model.WebhookEvent, message string) {
	row.ErrorMessage = &message
	if _, err := p.store.InsertWebhookEvent(ctx, row); err != nil {
		p.logger.ErrorContext(ctx, "Failed to log rejected webhook", "error", err)
	}
}
