package metrics

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"payment-service/internal/config"
)

func Setup(cfg config.Metrics, logger *slog.Logger) {
	if cfg.URL == "" {
		return
	}

	err := metrics.InitPush(cfg.URL, time.Duration(cfg.IntervalMs)*time.Millisecond, cfg.CommonLabels, true)
	if err != nil {
		logger.Error("Error initializing metrics push", "error", err)
	}
}

// WritePrometheus writes all registered metrics in Prometheus text format.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

func PaymentOperation(operation, result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`payment_operations_total{operation=%q,result=%q}`, operation, result)).Inc()
}

func WebhookDelivery(provider, result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`webhook_deliveries_total{provider=%q,result=%q}`, provider, result)).Inc()
}

func AuditFailure() {
	metrics.GetOrCreateCounter(`audit_records_total{result="failed"}`).Inc()
}

// GatewayDuration records the time spent in one gateway call since start.
func GatewayDuration(provider, operation string, start time.Time) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`gateway_request_duration_seconds{provider=%q,operation=%q}`, provider, operation)).UpdateDuration(start)
}
