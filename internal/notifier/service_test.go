package notifier

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-boutique-orders.git/internal/kafka"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

func statusMessage(t *testing.T, eventType string, payload any) kafkago.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	env := orders.Envelope{
		EventID:      "ev-1",
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "test",
		Payload:      raw,
	}
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func TestHandleOrderStatus(t *testing.T) {
	s := &Service{ServiceName: "notifier-test"}
	ctx := context.Background()

	m := statusMessage(t, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{
		OrderID: "ord-1", BoutiqueID: "btq-1",
		From: orders.StatusPaid, To: orders.StatusAccepted,
	})
	assert.NoError(t, s.HandleOrderStatus(ctx, m))
}

func TestHandleOrderStatus_IgnoresOtherEvents(t *testing.T) {
	s := &Service{ServiceName: "notifier-test"}
	m := statusMessage(t, orders.EventStockReleased, orders.StockReleasedPayload{OrderID: "ord-1"})
	assert.NoError(t, s.HandleOrderStatus(context.Background(), m))
}

func TestHandleOrderStatus_BadEnvelope(t *testing.T) {
	s := &Service{ServiceName: "notifier-test"}
	err := s.HandleOrderStatus(context.Background(), kafkago.Message{Value: []byte("{nope")})
	assert.Error(t, err)
}

func TestHandleOrderStatus_BadPayload(t *testing.T) {
	s := &Service{ServiceName: "notifier-test"}
	env := orders.Envelope{
		EventID:   "ev-2",
		EventType: orders.EventOrderStatusChanged,
		Payload:   json.RawMessage(`[1, 2, 3]`),
	}
	err := s.HandleOrderStatus(context.Background(), kafkago.Message{Value: kafkax.MustMarshal(env)})
	assert.Error(t, err)
}
