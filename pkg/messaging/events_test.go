package messaging

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestNewEvent(t *testing.T) {
	payload := StockChangedEvent{
		MaterialID:      "mat-1",
		ClinicID:        "clinic-1",
		TransactionType: "Restock",
		Quantity:        20,
		BalanceAfter:    65,
	}

	event, err := NewEvent(EventStockRestocked, "inventory-service", "req-1", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventStockRestocked, event.Type)
	assert.Equal(t, "inventory-service", event.Source)
	assert.Equal(t, "req-1", event.CorrelationID)

	var decoded StockChangedEvent
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestCorrelationID(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
	assert.Equal(t, "req-1", CorrelationID(WithCorrelationID(context.Background(), "req-1")))
}

func TestHeaderCarrier_PropagatesTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := amqp.Table{}
	prop := propagation.TraceContext{}
	prop.Inject(ctx, HeaderCarrier(headers))

	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", headers["traceparent"])

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), HeaderCarrier(headers)))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Contains(t, HeaderCarrier(headers).Keys(), "traceparent")
}
