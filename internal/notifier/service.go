package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/ariefcatur/go-boutique-orders.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service men-tail event status order dan me-refresh cache status di
// redis. Fan-out notifikasi (push/socket/email) bukan urusan core;
// komponen luar tinggal subscribe topic yg sama.
type Service struct {
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderStatus: dipasang sebagai handler consumer.
func (s *Service) HandleOrderStatus(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil // ignore
	}

	// dedup via redis (pakai event_id). SETNX = klaim atomik, dua
	// worker tidak bisa lolos gerbang barengan.
	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
		ok, err := s.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
		if err == nil && !ok {
			return nil // sudah diproses worker lain
		}
	}

	var p orders.OrderStatusChangedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}

	if s.Redis != nil {
		statusKey := fmt.Sprintf(redisx.KeyOrderStatus, p.OrderID)
		body, _ := json.Marshal(map[string]any{"status": p.To, "updated_at": env.OccurredAt})
		_ = s.Redis.Set(ctx, statusKey, body, redisx.TTLStatusCache).Err()
	}

	log.Printf("order %s: %s -> %s (boutique=%s)", p.OrderID, p.From, p.To, p.BoutiqueID)
	return nil
}
