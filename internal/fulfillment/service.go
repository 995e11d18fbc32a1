package fulfillment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ariefcatur/go-boutique-orders.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-boutique-orders.git/internal/kafka"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/ariefcatur/go-boutique-orders.git/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service menggerakkan order committed lewat state machine:
// paid -> accepted -> (delivering ->) success, cancel dari paid/accepted.
// Draft bukan wilayah sini; expiry urusan sweeper.
type Service struct {
	Repo        orders.DraftRepo
	Ledger      inventory.Ledger
	Redis       *redis.Client // optional, cache status
	ServiceName string

	ProducerStatus kafkax.Sink // order.status.changed
	ProducerStock  kafkax.Sink // stock.released / stock.committed
}

// Transition menerapkan satu event ke order. CAS di repo yg menentukan
// pemenang kalau ada dua transisi barengan; yg kalah dapat
// ErrInvalidTransition dan state tidak tersentuh.
func (s *Service) Transition(ctx context.Context, orderID string, ev orders.Event, reason string) (*orders.Order, error) {
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	t, ok := orders.Next(o.Status, ev, o.DeliveryMode)
	if !ok {
		return nil, fmt.Errorf("%s + %s: %w", o.Status, ev, orders.ErrInvalidTransition)
	}
	if ev == orders.EventCancel && reason == "" {
		reason = "canceled by boutique"
	}

	won, err := s.Repo.SetStatus(ctx, orderID, o.Status, t.To, reason)
	if err != nil {
		return nil, err
	}
	if !won {
		// ada transisi lain yg menang duluan
		return nil, fmt.Errorf("%s + %s: %w", o.Status, ev, orders.ErrInvalidTransition)
	}
	from := o.Status
	o.Status = t.To
	o.CancelReason = reason
	o.UpdatedAt = time.Now().UTC()

	switch t.Effect {
	case orders.EffectRelease:
		released, err := s.Ledger.ReleaseOrder(ctx, orderID)
		if err != nil {
			// status sudah final; reservasi menggantung harus kelihatan di log
			log.Printf("release order %s: %v", orderID, err)
		} else if len(released) > 0 {
			s.emit(s.ProducerStock, orders.EventStockReleased, orderID, orders.StockReleasedPayload{
				OrderID: orderID, Items: toItemQty(released), Cause: "CANCELED",
			})
		}
	case orders.EffectCommit:
		committed, err := s.Ledger.CommitOrder(ctx, orderID)
		if err != nil {
			log.Printf("commit order %s: %v", orderID, err)
		} else if len(committed) > 0 {
			s.emit(s.ProducerStock, orders.EventStockCommitted, orderID, orders.StockCommittedPayload{
				OrderID: orderID, Items: toItemQty(committed),
			})
		}
	}

	s.emit(s.ProducerStatus, orders.EventOrderStatusChanged, orderID, orders.OrderStatusChangedPayload{
		OrderID: orderID, BoutiqueID: o.BoutiqueID, From: from, To: t.To, Reason: reason,
	})
	s.cacheStatus(ctx, orderID, t.To)
	return o, nil
}

func toItemQty(in []inventory.ReleasedItem) []orders.ItemQty {
	out := make([]orders.ItemQty, 0, len(in))
	for _, r := range in {
		out = append(out, orders.ItemQty{ProductID: r.ProductID, Qty: r.Qty})
	}
	return out
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, st orders.Status) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	body := fmt.Sprintf(`{"status":%q}`, st)
	if err := s.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
		log.Printf("status cache set: %v", err)
	}
}

func (s *Service) emit(sink kafkax.Sink, eventType, orderID string, payload any) {
	if sink == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	sink.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
