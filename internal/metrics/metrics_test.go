package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWritePrometheus(t *testing.T) {
	PaymentOperation("create", "success")
	WebhookDelivery("stripe", "applied")
	GatewayDuration("stripe", "create", time.Now())

	var buf bytes.Buffer
	WritePrometheus(&buf)

	out := buf.String()
	assert.Contains(t, out, `payment_operations_total{operation="create",result="success"}`)
	assert.Contains(t, out, `webhook_deliveries_total{provider="stripe",result="applied"}`)
	assert.Contains(t, out, `gateway_request_duration_seconds_bucket{provider="stripe",operation="create"`)
}
