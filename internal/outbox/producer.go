// Package outbox publishes payment state changes recorded in the outbox
// table to Kafka.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"payment-service/internal/config"
	"payment-service/internal/logcontext"
	"payment-service/internal/model"
)

const (
	defaultPollingIntervalMs  = 500
	defaultFetchSize          = 200
	defaultRescheduleDelayMs  = 10_000
	defaultMaxPublishAttempts = 3
)

var (
	// producer batch metrics
	producerErrorFetchingCounter = metrics.GetOrCreateCounter(`payment_outbox_producer_total{result="fetching_failed"}`)
	producerErrorKafkaCounter    = metrics.GetOrCreateCounter(`payment_outbox_producer_total{result="publish_failed"}`)
	producerErrorUpdateCounter   = metrics.GetOrCreateCounter(`payment_outbox_producer_total{result="db_update_failed"}`)
	producerSuccessCounter       = metrics.GetOrCreateCounter(`payment_outbox_producer_total{result="success"}`)

	producerProcessDurationHistogram = metrics.GetOrCreateHistogram(`payment_outbox_producer_duration_milliseconds`)

	// producer per message metrics
	producerMessagesPublishedCounter   = metrics.GetOrCreateCounter(`payment_outbox_messages_total{result="published"}`)
	producerMessagesMaxAttemptsCounter = metrics.GetOrCreateCounter(`payment_outbox_messages_total{result="max_attempts_reached"}`)
	producerMessagesRescheduledCounter = metrics.GetOrCreateCounter(`payment_outbox_messages_total{result="rescheduled"}`)
)

type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]*model.OutboxMessage, error)
	Update(ctx context.Context, tx pgx.Tx, m *model.OutboxMessage) error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Producer struct {
	repo               Repository
	writer             Writer
	pollingInterval    time.Duration
	fetchSize          int
	retryDelay         time.Duration
	maxPublishAttempts int
	logger             *slog.Logger
	now                func() time.Time
}

func NewProducer(repo Repository, writer Writer, cfg config.Outbox, logger *slog.Logger) *Producer {
	return &Producer{
		repo:               repo,
		writer:             writer,
		pollingInterval:    time.Duration(orDefault(cfg.PollingIntervalMs, defaultPollingIntervalMs)) * time.Millisecond,
		fetchSize:          orDefault(cfg.FetchSize, defaultFetchSize),
		retryDelay:         time.Duration(orDefault(cfg.RescheduleDelayMs, defaultRescheduleDelayMs)) * time.Millisecond,
		maxPublishAttempts: orDefault(cfg.MaxPublishAttempts, defaultMaxPublishAttempts),
		logger:             logger,
		now:                time.Now,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.process(ctx)
			case <-ctx.Done():
				p.logger.InfoContext(ctx, "Context done, stopping outbox producer")
				return
			}
		}
	}()
}

// process publishes one batch of due messages. Failed publishes are
// rescheduled with a linear backoff until maxPublishAttempts is reached.
func (p *Producer) process(ctx context.Context) {
	startTime := time.Now()
	defer func() {
		producerProcessDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	// set runId as a correlation id for all logs in scope
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error starting transaction", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}
	defer tx.Rollback(ctx)

	messages, err := p.repo.GetUnpublished(ctx, tx, p.fetchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error fetching unpublished outbox messages", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	if len(messages) == 0 {
		p.logger.DebugContext(ctx, "No outbox messages due")
		producerSuccessCounter.Inc()
		return
	}

	p.logger.InfoContext(ctx, "Writing messages to Kafka", "count", len(messages))
	err = p.writer.WriteMessages(ctx, toKafkaMessages(messages)...)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error writing messages to Kafka", "error", err)
		producerErrorKafkaCounter.Inc()
	}

	now := p.now()
	for _, m := range messages {
		messageCtx := logcontext.AppendCtx(ctx, slog.String("outboxId", m.ID.String()))
		m.PublishAttempts++

		if err != nil {
			errMsg := err.Error()
			m.Error = &errMsg

			if m.PublishAttempts >= p.maxPublishAttempts {
				p.logger.WarnContext(messageCtx, "Max publish attempts reached for outbox message")
				m.ScheduledAt = nil
				producerMessagesMaxAttemptsCounter.Inc()
			} else {
				scheduledAt := now.Add(time.Duration(m.PublishAttempts) * p.retryDelay)
				m.ScheduledAt = &scheduledAt
				producerMessagesRescheduledCounter.Inc()
			}
		} else {
			m.ScheduledAt = nil
			m.PublishedAt = &now
			m.Error = nil
			producerMessagesPublishedCounter.Inc()
		}

		if err := p.repo.Update(messageCtx, tx, m); err != nil {
			p.logger.ErrorContext(messageCtx, "Error updating outbox message", "error", err)
			producerErrorUpdateCounter.Inc()
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Error committing transaction", "error", err)
		producerErrorUpdateCounter.Inc()
		return
	}
	producerSuccessCounter.Inc()
}

func toKafkaMessages(messages []*model.OutboxMessage) []kafka.Message {
	out := make([]kafka.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, kafka.Message{
			// payment id as key keeps one payment's events ordered
			Key:   []byte(m.PaymentID.String()),
			Value: []byte(m.Payload),
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(m.EventType)},
				{Key: "event-id", Value: []byte(m.ID.String())},
			},
		})
	}
	return out
}
