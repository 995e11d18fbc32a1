package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPaid          = "OrderPaid"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventDraftExpired       = "DraftExpired"
	EventStockReleased      = "StockReleased"
	EventStockCommitted     = "StockCommitted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339, UTC
	Producer      string          `json:"producer"`      // e.g., "boutique-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderPaidPayload struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	BoutiqueID string    `json:"boutique_id"`
	Items      []ItemQty `json:"items"`
	TotalCents int       `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderID    string `json:"order_id"`
	BoutiqueID string `json:"boutique_id"`
	From       Status `json:"from"`
	To         Status `json:"to"`
	Reason     string `json:"reason,omitempty"` // terisi utk cancel
}

type DraftExpiredPayload struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

type StockReleasedPayload struct {
	OrderID string    `json:"order_id"`
	Items   []ItemQty `json:"items"`
	Cause   string    `json:"cause"` // EXPIRED | CANCELED | ITEM_REMOVED
}

type StockCommittedPayload struct {
	OrderID string    `json:"order_id"`
	Items   []ItemQty `json:"items"`
}
