package orders

import (
	"context"
	"sync"
	"time"
)

// MemRepo: implementasi in-memory utk DraftRepo + Catalog. Dipakai unit
// test dan mode standalone tanpa postgres. Semua read/write meng-copy
// supaya caller tidak pegang pointer ke state internal.
type MemRepo struct {
	mu       sync.Mutex
	orders   map[string]*Order  // orderID -> order
	drafts   map[string]string  // userID -> orderID draft aktif
	products map[string]Product // productID -> product
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		orders:   make(map[string]*Order),
		drafts:   make(map[string]string),
		products: make(map[string]Product),
	}
}

func clone(o *Order) *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.DeliveryAddress != nil {
		a := *o.DeliveryAddress
		c.DeliveryAddress = &a
	}
	if o.ExpiresAt != nil {
		t := *o.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func (m *MemRepo) GetDraft(ctx context.Context, userID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.drafts[userID]
	if !ok {
		return nil, ErrDraftNotFound
	}
	o := m.orders[id]
	if o == nil || o.Status != StatusDraft {
		delete(m.drafts, userID)
		return nil, ErrDraftNotFound
	}
	return clone(o), nil
}

func (m *MemRepo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(o), nil
}

func (m *MemRepo) CreateDraft(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = clone(o)
	m.drafts[o.UserID] = o.ID
	return nil
}

func (m *MemRepo) UpdateDraft(ctx context.Context, o *Order) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok || cur.Status != StatusDraft {
		return false, nil
	}
	m.orders[o.ID] = clone(o)
	return true, nil
}

func (m *MemRepo) SetStatus(ctx context.Context, orderID string, from, to Status, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if reason != "" {
		o.CancelReason = reason
	}
	if to != StatusDraft {
		o.ExpiresAt = nil
		delete(m.drafts, o.UserID)
	}
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemRepo) ListExpiredDrafts(ctx context.Context, now time.Time, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.Expired(now) {
			out = append(out, clone(o))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemRepo) GetProduct(ctx context.Context, productID string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (m *MemRepo) ListProducts(ctx context.Context, boutiqueID string) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Product
	for _, p := range m.products {
		if boutiqueID == "" || p.BoutiqueID == boutiqueID {
			out = append(out, p)
		}
	}
	return out, nil
}

// PutProduct: seed katalog (test / standalone).
func (m *MemRepo) PutProduct(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// ForceExpiry memundurkan expires_at sebuah draft; helper utk test
// skenario expiry tanpa clock injection.
func (m *MemRepo) ForceExpiry(orderID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.ExpiresAt = &at
	}
}
