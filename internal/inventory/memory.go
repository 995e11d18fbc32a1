package inventory

import (
	"context"
	"sync"
)

type stockInfo struct {
	stock   int
	engaged int
}

// MemoryLedger: ledger in-memory. Satu mutex utk seluruh store sudah
// cukup me-linearize mutasi per product; pemegang lock tidak pernah
// blocking ke I/O.
type MemoryLedger struct {
	mu      sync.Mutex
	stocks  map[string]*stockInfo
	records map[string]map[string]int // orderID -> productID -> qty reserved
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		stocks:  make(map[string]*stockInfo),
		records: make(map[string]map[string]int),
	}
}

// SetStock: seed stok fisik sebuah product.
func (l *MemoryLedger) SetStock(productID string, qty int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stocks[productID] = &stockInfo{stock: qty}
}

func (l *MemoryLedger) Reserve(ctx context.Context, orderID, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stocks[productID]
	if !ok {
		return ErrProductNotFound
	}
	if s.stock-s.engaged < qty {
		return ErrInsufficientStock
	}
	s.engaged += qty
	if l.records[orderID] == nil {
		l.records[orderID] = make(map[string]int)
	}
	l.records[orderID][productID] += qty
	return nil
}

func (l *MemoryLedger) AdjustReservation(ctx context.Context, orderID, productID string, newQty int) error {
	if newQty <= 0 {
		return ErrInvalidQty
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stocks[productID]
	if !ok {
		return ErrProductNotFound
	}
	old := l.records[orderID][productID]
	delta := newQty - old
	if delta > 0 && s.stock-s.engaged < delta {
		return ErrInsufficientStock
	}
	s.engaged += delta
	if s.engaged < 0 {
		s.engaged = 0 // defensif, tidak boleh terjadi dgn caller yg benar
	}
	if l.records[orderID] == nil {
		l.records[orderID] = make(map[string]int)
	}
	l.records[orderID][productID] = newQty
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, orderID, productID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(orderID, productID)
	return nil
}

func (l *MemoryLedger) releaseLocked(orderID, productID string) int {
	qty := l.records[orderID][productID]
	if qty == 0 {
		return 0
	}
	if s, ok := l.stocks[productID]; ok {
		s.engaged -= qty
		if s.engaged < 0 {
			s.engaged = 0
		}
	}
	delete(l.records[orderID], productID)
	return qty
}

func (l *MemoryLedger) ReleaseOrder(ctx context.Context, orderID string) ([]ReleasedItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ReleasedItem
	for pid := range l.records[orderID] {
		if qty := l.releaseLocked(orderID, pid); qty > 0 {
			out = append(out, ReleasedItem{ProductID: pid, Qty: qty})
		}
	}
	delete(l.records, orderID)
	return out, nil
}

func (l *MemoryLedger) CommitOrder(ctx context.Context, orderID string) ([]ReleasedItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []ReleasedItem
	for pid, qty := range l.records[orderID] {
		if qty == 0 {
			continue
		}
		if s, ok := l.stocks[pid]; ok {
			s.stock -= qty
			s.engaged -= qty
			if s.stock < 0 {
				s.stock = 0
			}
			if s.engaged < 0 {
				s.engaged = 0
			}
		}
		out = append(out, ReleasedItem{ProductID: pid, Qty: qty})
	}
	delete(l.records, orderID)
	return out, nil
}

func (l *MemoryLedger) Reserved(ctx context.Context, orderID, productID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[orderID][productID], nil
}

func (l *MemoryLedger) Available(ctx context.Context, productID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stocks[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	real := s.stock - s.engaged
	if real < 0 {
		real = 0
	}
	return real, nil
}

// Snapshot counters utk assert test / endpoint admin.
func (l *MemoryLedger) Counters(productID string) (stock, engaged int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.stocks[productID]; ok {
		return s.stock, s.engaged
	}
	return 0, 0
}
