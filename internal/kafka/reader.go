package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"

	"payment-service/internal/config"
	"payment-service/internal/model"
)

var (
	readErrorCounter      = metrics.GetOrCreateCounter(`kafka_reader_total{result="read_error",type="payment_event"}`)
	unmarshalErrorCounter = metrics.GetOrCreateCounter(`kafka_reader_total{result="unmarshal_error",type="payment_event"}`)
	processErrorCounter   = metrics.GetOrCreateCounter(`kafka_reader_total{result="process_error",type="payment_event"}`)
	successCounter        = metrics.GetOrCreateCounter(`kafka_reader_total{result="success",type="payment_event"}`)
)

func NewReader(cfg config.Kafka, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(cfg.Broker.URL, ","),
		GroupID: groupID,
		Topic:   cfg.Topic.PaymentEvents,
	})
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// ReadPaymentEvents decodes payment events from reader and hands them to
// process until ctx is done. Undecodable messages are logged and skipped.
func ReadPaymentEvents(ctx context.Context, reader MessageReader, logger *slog.Logger, process func(context.Context, model.PaymentEvent) error) error {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			readErrorCounter.Inc()
			return err
		}

		var e model.PaymentEvent
		if err := json.Unmarshal(m.Value, &e); err != nil {
			logger.ErrorContext(ctx, "Error unmarshalling payment event", "offset", m.Offset, "error", err)
			unmarshalErrorCounter.Inc()
			continue
		}

		if err := process(ctx, e); err != nil {
			logger.ErrorContext(ctx, "Error processing payment event", "eventId", e.ID, "error", err)
			processErrorCounter.Inc()
			continue
		}
		successCounter.Inc()
	}
}
