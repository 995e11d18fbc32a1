package fulfillment

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-boutique-orders.git/internal/inventory"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

type fakeSink struct {
	mu     sync.Mutex
	events []orders.Envelope
}

func (f *fakeSink) Publish(key, value []byte, headers ...kafkago.Header) {
	var ev orders.Envelope
	if err := json.Unmarshal(value, &ev); err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.EventType)
	}
	return out
}

type fixture struct {
	svc    *Service
	repo   *orders.MemRepo
	ledger *inventory.MemoryLedger
	sink   *fakeSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := orders.NewMemRepo()
	ledger := inventory.NewMemoryLedger()
	ledger.SetStock("p1", 10)
	sink := &fakeSink{}
	svc := &Service{
		Repo:           repo,
		Ledger:         ledger,
		ServiceName:    "fulfillment-test",
		ProducerStatus: sink,
		ProducerStock:  sink,
	}
	return &fixture{svc: svc, repo: repo, ledger: ledger, sink: sink}
}

// paidOrder menanam order PAID dgn reservasi terpasang, tanpa lewat cart.
func (f *fixture) paidOrder(t *testing.T, mode orders.DeliveryMode, qty int) *orders.Order {
	t.Helper()
	ctx := context.Background()
	o := &orders.Order{
		ID:           uuid.NewString(),
		UserID:       "user-1",
		BoutiqueID:   "btq-1",
		Status:       orders.StatusDraft,
		DeliveryMode: mode,
		Items:        []orders.OrderItem{{ProductID: "p1", Qty: qty, UnitPriceCents: 1000}},
	}
	o.RecomputeTotal()
	require.NoError(t, f.repo.CreateDraft(ctx, o))
	require.NoError(t, f.ledger.Reserve(ctx, o.ID, "p1", qty))
	won, err := f.repo.SetStatus(ctx, o.ID, orders.StatusDraft, orders.StatusPaid, "")
	require.NoError(t, err)
	require.True(t, won)
	o.Status = orders.StatusPaid
	return o
}

func TestTransition_PickupFlowCommitsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.paidOrder(t, orders.ModePickup, 3)

	got, err := f.svc.Transition(ctx, o.ID, orders.EventAccept, "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAccepted, got.Status)

	got, err = f.svc.Transition(ctx, o.ID, orders.EventPickup, "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusSuccess, got.Status)

	// commit memotong stock fisik + engaged
	stock, engaged := f.ledger.Counters("p1")
	assert.Equal(t, 7, stock)
	assert.Equal(t, 0, engaged)
	assert.Contains(t, f.sink.types(), orders.EventStockCommitted)

	// order sudah final: cancel ditolak, state tidak tersentuh
	_, err = f.svc.Transition(ctx, o.ID, orders.EventCancel, "berubah pikiran")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	cur, _ := f.repo.GetOrder(ctx, o.ID)
	assert.Equal(t, orders.StatusSuccess, cur.Status)
	stock, engaged = f.ledger.Counters("p1")
	assert.Equal(t, 7, stock)
	assert.Equal(t, 0, engaged)
}

func TestTransition_DeliveryFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.paidOrder(t, orders.ModeDelivery, 2)

	_, err := f.svc.Transition(ctx, o.ID, orders.EventAccept, "")
	require.NoError(t, err)
	got, err := f.svc.Transition(ctx, o.ID, orders.EventStartDelivery, "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivering, got.Status)

	// sudah di jalan, tidak bisa cancel
	_, err = f.svc.Transition(ctx, o.ID, orders.EventCancel, "")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	got, err = f.svc.Transition(ctx, o.ID, orders.EventDeliver, "")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusSuccess, got.Status)

	stock, engaged := f.ledger.Counters("p1")
	assert.Equal(t, 8, stock)
	assert.Equal(t, 0, engaged)
}

func TestTransition_StartDeliveryNeedsDeliveryMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.paidOrder(t, orders.ModePickup, 1)

	_, err := f.svc.Transition(ctx, o.ID, orders.EventAccept, "")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, o.ID, orders.EventStartDelivery, "")
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestTransition_CancelReleasesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.paidOrder(t, orders.ModeDelivery, 4)

	got, err := f.svc.Transition(ctx, o.ID, orders.EventCancel, "stok rusak")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, got.Status)
	assert.Equal(t, "stok rusak", got.CancelReason)

	// release: engaged balik, stock fisik utuh
	stock, engaged := f.ledger.Counters("p1")
	assert.Equal(t, 10, stock)
	assert.Equal(t, 0, engaged)
	assert.Contains(t, f.sink.types(), orders.EventStockReleased)

	cur, _ := f.repo.GetOrder(ctx, o.ID)
	assert.Equal(t, "stok rusak", cur.CancelReason)
}

func TestTransition_CancelDefaultReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.paidOrder(t, orders.ModePickup, 1)

	got, err := f.svc.Transition(ctx, o.ID, orders.EventCancel, "")
	require.NoError(t, err)
	assert.Equal(t, "canceled by boutique", got.CancelReason)
}

func TestTransition_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transition(context.Background(), "nope", orders.EventAccept, "")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestTransition_DraftUntouchable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := &orders.Order{
		ID: uuid.NewString(), UserID: "user-1", BoutiqueID: "btq-1",
		Status: orders.StatusDraft,
	}
	require.NoError(t, f.repo.CreateDraft(ctx, o))

	for _, ev := range []orders.Event{orders.EventAccept, orders.EventCancel, orders.EventPickup} {
		_, err := f.svc.Transition(ctx, o.ID, ev, "")
		assert.ErrorIs(t, err, orders.ErrInvalidTransition, "event %s", ev)
	}
}

func TestTransition_ConcurrentSameEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.paidOrder(t, orders.ModePickup, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Transition(ctx, o.ID, orders.EventAccept, "")
		}()
	}
	wg.Wait()

	// CAS: persis satu yg menang
	okCount := 0
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			assert.ErrorIs(t, err, orders.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, okCount)
	cur, _ := f.repo.GetOrder(ctx, o.ID)
	assert.Equal(t, orders.StatusAccepted, cur.Status)
}
