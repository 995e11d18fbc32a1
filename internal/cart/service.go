package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ariefcatur/go-boutique-orders.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-boutique-orders.git/internal/kafka"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/ariefcatur/go-boutique-orders.git/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/singleflight"
)

// Service = Cart Manager: CRUD draft order milik satu user, selalu
// menjaga total dan reservasi konsisten dgn line items. Urutannya
// selalu: reserve dulu di ledger, baru tulis draft; kalau tulisan
// kalah/gagal, reservasi di-undo (Release per record idempotent, jadi
// kompensasi aman dipanggil walau sweeper sudah keburu release).
type Service struct {
	Repo        orders.DraftRepo
	Catalog     orders.Catalog
	Ledger      inventory.Ledger
	Redis       *redis.Client // optional; nil = tanpa cache
	ServiceName string        // nama producer di envelope event

	ProducerPaid    kafkax.Sink // order.paid
	ProducerStatus  kafkax.Sink // order.status.changed
	ProducerExpired kafkax.Sink // order.draft.expired
	ProducerStock   kafkax.Sink // stock.released

	TTL time.Duration // umur draft; default 1 jam, di-refresh tiap mutasi

	locks sync.Map // userID -> *sync.Mutex, serialisasi mutasi per draft
	sfg   singleflight.Group
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return time.Hour
}

func (s *Service) lockUser(userID string) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Out-of-bounds ditolak, tidak pernah di-clamp diam-diam.
func validateQty(p *orders.Product, qty int) error {
	if qty < p.MinQty() {
		return orders.ErrInvalidQuantity
	}
	if p.MaxOrderQty > 0 && qty > p.MaxOrderQty {
		return orders.ErrInvalidQuantity
	}
	return nil
}

func (s *Service) AddItem(ctx context.Context, userID, boutiqueID, productID string, qty int) (*orders.Order, error) {
	if qty <= 0 {
		return nil, orders.ErrInvalidQuantity
	}
	unlock := s.lockUser(userID)
	defer unlock()
	now := time.Now().UTC()

	draft, err := s.Repo.GetDraft(ctx, userID)
	if err != nil && !errors.Is(err, orders.ErrDraftNotFound) {
		return nil, err
	}
	if draft != nil && draft.Expired(now) {
		if _, err := s.ExpireDraft(ctx, draft); err != nil {
			return nil, err
		}
		draft = nil
	}
	if draft != nil && draft.BoutiqueID != boutiqueID {
		return nil, orders.ErrCrossBoutiqueCart // cart single-boutique
	}

	p, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.BoutiqueID != boutiqueID {
		return nil, orders.ErrProductNotFound
	}

	idx := -1
	merged := qty
	if draft != nil {
		if idx = draft.Item(productID); idx >= 0 {
			merged = draft.Items[idx].Qty + qty
		}
	}
	if err := validateQty(p, merged); err != nil {
		return nil, err
	}

	isNew := draft == nil
	if isNew {
		draft = &orders.Order{
			ID:         uuid.NewString(),
			UserID:     userID,
			BoutiqueID: boutiqueID,
			Status:     orders.StatusDraft,
			CreatedAt:  now,
		}
	}

	// reserve dulu; gagal stok langsung keluar tanpa mutasi draft
	if err := s.Ledger.Reserve(ctx, draft.ID, productID, qty); err != nil {
		return nil, err
	}

	oldQty := 0
	if idx >= 0 {
		oldQty = draft.Items[idx].Qty
		draft.Items[idx].Qty = merged // harga unit tetap snapshot saat add pertama
	} else {
		draft.Items = append(draft.Items, orders.OrderItem{
			ProductID:      productID,
			Qty:            qty,
			UnitPriceCents: p.EffectivePriceCents(),
			OnSale:         p.OnSale,
		})
	}
	draft.RecomputeTotal()
	s.refreshExpiry(draft, now)
	draft.UpdatedAt = now

	if isNew {
		if err := s.Repo.CreateDraft(ctx, draft); err != nil {
			_ = s.Ledger.Release(ctx, draft.ID, productID)
			return nil, err
		}
	} else {
		ok, err := s.Repo.UpdateDraft(ctx, draft)
		if err != nil {
			s.rollbackReservation(ctx, draft.ID, productID, oldQty)
			return nil, err
		}
		if !ok {
			// kalah race dgn sweeper; record release idempotent
			_ = s.Ledger.Release(ctx, draft.ID, productID)
			return nil, orders.ErrDraftExpired
		}
	}
	s.invalidateCache(ctx, userID)
	return draft, nil
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, qty int) (*orders.Order, error) {
	unlock := s.lockUser(userID)
	defer unlock()
	now := time.Now().UTC()

	draft, err := s.draftOrNotFound(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	idx := draft.Item(productID)
	if idx < 0 {
		return nil, fmt.Errorf("product %s: %w", productID, orders.ErrDraftNotFound)
	}
	p, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := validateQty(p, qty); err != nil {
		return nil, err
	}

	oldQty := draft.Items[idx].Qty
	// delta diterapkan satu langkah atomik; cek ketersediaan sudah
	// memperhitungkan reservasi line ini sendiri
	if err := s.Ledger.AdjustReservation(ctx, draft.ID, productID, qty); err != nil {
		return nil, err
	}

	draft.Items[idx].Qty = qty
	draft.RecomputeTotal()
	s.refreshExpiry(draft, now)
	draft.UpdatedAt = now

	ok, err := s.Repo.UpdateDraft(ctx, draft)
	if err != nil {
		s.rollbackReservation(ctx, draft.ID, productID, oldQty)
		return nil, err
	}
	if !ok {
		_ = s.Ledger.Release(ctx, draft.ID, productID)
		return nil, orders.ErrDraftExpired
	}
	s.invalidateCache(ctx, userID)
	return draft, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*orders.Order, error) {
	unlock := s.lockUser(userID)
	defer unlock()
	now := time.Now().UTC()

	draft, err := s.draftOrNotFound(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	idx := draft.Item(productID)
	if idx < 0 {
		return nil, fmt.Errorf("product %s: %w", productID, orders.ErrDraftNotFound)
	}

	removedQty := draft.Items[idx].Qty
	if err := s.Ledger.Release(ctx, draft.ID, productID); err != nil {
		return nil, err
	}

	draft.Items = append(draft.Items[:idx], draft.Items[idx+1:]...)
	draft.RecomputeTotal()
	s.refreshExpiry(draft, now)
	draft.UpdatedAt = now

	// draft kosong dibiarkan sbg draft kosong (tetap kena expiry)
	ok, err := s.Repo.UpdateDraft(ctx, draft)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, orders.ErrDraftExpired
	}
	s.invalidateCache(ctx, userID)
	s.emit(s.ProducerStock, orders.EventStockReleased, draft.ID, orders.StockReleasedPayload{
		OrderID: draft.ID,
		Items:   []orders.ItemQty{{ProductID: productID, Qty: removedQty}},
		Cause:   "ITEM_REMOVED",
	})
	return draft, nil
}

// SetDelivery memilih mode + alamat antar; ongkir ikut masuk total.
func (s *Service) SetDelivery(ctx context.Context, userID string, mode orders.DeliveryMode, addr *orders.DeliveryAddress) (*orders.Order, error) {
	if mode != orders.ModePickup && mode != orders.ModeDelivery {
		return nil, fmt.Errorf("%q: %w", mode, orders.ErrInvalidDeliveryMode)
	}
	if mode == orders.ModePickup {
		addr = nil
	}
	unlock := s.lockUser(userID)
	defer unlock()
	now := time.Now().UTC()

	draft, err := s.draftOrNotFound(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	draft.DeliveryMode = mode
	draft.DeliveryAddress = addr
	draft.RecomputeTotal()
	s.refreshExpiry(draft, now)
	draft.UpdatedAt = now

	ok, err := s.Repo.UpdateDraft(ctx, draft)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, orders.ErrDraftExpired
	}
	s.invalidateCache(ctx, userID)
	return draft, nil
}

// GetDraft: cart user, nil kalau tidak ada. Draft yg sudah lewat
// expires_at di-expire dulu di sini (lazy), tidak menunggu sweeper.
func (s *Service) GetDraft(ctx context.Context, userID string) (*orders.Order, error) {
	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		now := time.Now().UTC()
		if o, ok := s.cachedDraft(ctx, userID); ok && !o.Expired(now) {
			return o, nil
		}
		o, err := s.Repo.GetDraft(ctx, userID)
		if errors.Is(err, orders.ErrDraftNotFound) {
			return (*orders.Order)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		if o.Expired(now) {
			if _, err := s.ExpireDraft(ctx, o); err != nil {
				return nil, err
			}
			return (*orders.Order)(nil), nil
		}
		s.cacheDraft(ctx, o)
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*orders.Order), nil
}

// Checkout: draft jadi PAID. Reservasi yg sudah dipegang tidak dilepas —
// tetap jadi klaim order sampai Commit (fulfillment) atau Release (cancel).
func (s *Service) Checkout(ctx context.Context, userID string) (*orders.Order, error) {
	unlock := s.lockUser(userID)
	defer unlock()
	now := time.Now().UTC()

	draft, err := s.Repo.GetDraft(ctx, userID)
	if errors.Is(err, orders.ErrDraftNotFound) {
		return nil, orders.ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}
	if draft.Expired(now) {
		if _, err := s.ExpireDraft(ctx, draft); err != nil {
			return nil, err
		}
		return nil, orders.ErrDraftExpired
	}
	if len(draft.Items) == 0 {
		return nil, orders.ErrEmptyDraft
	}

	// re-validasi terakhir per line: jaga-jaga reservasi sempat drift
	// antara mutasi terakhir dan checkout
	for _, it := range draft.Items {
		reserved, err := s.Ledger.Reserved(ctx, draft.ID, it.ProductID)
		if err != nil {
			return nil, err
		}
		if reserved < it.Qty {
			if err := s.Ledger.Reserve(ctx, draft.ID, it.ProductID, it.Qty-reserved); err != nil {
				if errors.Is(err, inventory.ErrInsufficientStock) {
					return nil, orders.ErrInsufficientStockAtCheckout
				}
				return nil, err
			}
		}
	}

	won, err := s.Repo.SetStatus(ctx, draft.ID, orders.StatusDraft, orders.StatusPaid, "")
	if err != nil {
		return nil, err
	}
	if !won {
		// sweeper menang race: transisi valid pertama yg berlaku.
		// Top-up reservasi di atas terjadi SETELAH sweeper release,
		// jadi harus dilepas lagi di sini; sweeper tidak pernah
		// balik menengok order yg sudah expired.
		if _, err := s.Ledger.ReleaseOrder(ctx, draft.ID); err != nil {
			log.Printf("release checkout loser %s: %v", draft.ID, err)
		}
		return nil, orders.ErrDraftExpired
	}
	draft.Status = orders.StatusPaid
	draft.ExpiresAt = nil
	draft.UpdatedAt = now
	s.invalidateCache(ctx, userID)

	items := make([]orders.ItemQty, 0, len(draft.Items))
	for _, it := range draft.Items {
		items = append(items, orders.ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	s.emit(s.ProducerPaid, orders.EventOrderPaid, draft.ID, orders.OrderPaidPayload{
		OrderID: draft.ID, UserID: draft.UserID, BoutiqueID: draft.BoutiqueID,
		Items: items, TotalCents: draft.TotalCents,
	})
	s.emit(s.ProducerStatus, orders.EventOrderStatusChanged, draft.ID, orders.OrderStatusChangedPayload{
		OrderID: draft.ID, BoutiqueID: draft.BoutiqueID,
		From: orders.StatusDraft, To: orders.StatusPaid,
	})
	return draft, nil
}

// ExpireDraft adalah SATU-SATUNYA jalur "kembalikan stok" utk draft
// kedaluwarsa; dipakai lazy expiry di sini dan sweeper. CAS status yg
// menentukan pemenang, jadi aman dipanggil dobel.
func (s *Service) ExpireDraft(ctx context.Context, o *orders.Order) (bool, error) {
	won, err := s.Repo.SetStatus(ctx, o.ID, orders.StatusDraft, orders.StatusExpired, "")
	if err != nil || !won {
		return false, err
	}
	released, err := s.Ledger.ReleaseOrder(ctx, o.ID)
	if err != nil {
		return true, err
	}
	s.invalidateCache(ctx, o.UserID)

	expiredAt := time.Now().UTC()
	if o.ExpiresAt != nil {
		expiredAt = *o.ExpiresAt
	}
	s.emit(s.ProducerExpired, orders.EventDraftExpired, o.ID, orders.DraftExpiredPayload{
		OrderID: o.ID, UserID: o.UserID, ExpiredAt: expiredAt,
	})
	if len(released) > 0 {
		items := make([]orders.ItemQty, 0, len(released))
		for _, r := range released {
			items = append(items, orders.ItemQty{ProductID: r.ProductID, Qty: r.Qty})
		}
		s.emit(s.ProducerStock, orders.EventStockReleased, o.ID, orders.StockReleasedPayload{
			OrderID: o.ID, Items: items, Cause: "EXPIRED",
		})
	}
	return true, nil
}

// draftOrNotFound: ambil draft, lazy-expire kalau sudah lewat umur.
func (s *Service) draftOrNotFound(ctx context.Context, userID string, now time.Time) (*orders.Order, error) {
	draft, err := s.Repo.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft.Expired(now) {
		if _, err := s.ExpireDraft(ctx, draft); err != nil {
			return nil, err
		}
		return nil, orders.ErrDraftExpired
	}
	return draft, nil
}

// Setiap mutasi memperpanjang umur cart.
func (s *Service) refreshExpiry(o *orders.Order, now time.Time) {
	exp := now.Add(s.ttl())
	o.ExpiresAt = &exp
}

// rollbackReservation: undo reservasi setelah tulis draft gagal I/O.
// Balik ke qty lama kalau line sudah ada, atau lepas total kalau baru.
func (s *Service) rollbackReservation(ctx context.Context, orderID, productID string, oldQty int) {
	var err error
	if oldQty > 0 {
		err = s.Ledger.AdjustReservation(ctx, orderID, productID, oldQty)
	} else {
		err = s.Ledger.Release(ctx, orderID, productID)
	}
	if err != nil {
		log.Printf("rollback reservation order=%s product=%s: %v", orderID, productID, err)
	}
}

func (s *Service) cachedDraft(ctx context.Context, userID string) (*orders.Order, bool) {
	if s.Redis == nil {
		return nil, false
	}
	key := fmt.Sprintf(redisx.KeyDraftCache, userID)
	b, err := s.Redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("draft cache get: %v", err)
		}
		return nil, false
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, false
	}
	return &o, true
}

func (s *Service) cacheDraft(ctx context.Context, o *orders.Order) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyDraftCache, o.UserID)
	if err := s.Redis.Set(ctx, key, kafkax.MustMarshal(o), redisx.TTLDraftCache).Err(); err != nil {
		log.Printf("draft cache set: %v", err)
	}
}

func (s *Service) invalidateCache(ctx context.Context, userID string) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyDraftCache, userID)
	if err := s.Redis.Del(ctx, key).Err(); err != nil {
		log.Printf("draft cache invalidate: %v", err)
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
