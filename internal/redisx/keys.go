package redisx

import "time"

const (
	// Cache draft per user: draft:{user_id} -> JSON order
	KeyDraftCache = "draft:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Lock sweep per order: sweep:{order_id}. Mencegah dua instance
	// sweeper menggarap draft yg sama barengan; CAS di DB tetap jadi
	// penentu akhir.
	KeySweepLock = "sweep:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDraftCache  = 5 * time.Minute
	TTLStatusCache = 5 * time.Minute
	TTLSweepLock   = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)
