package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-boutique-orders.git/internal/cart"
	"github.com/ariefcatur/go-boutique-orders.git/internal/fulfillment"
	"github.com/ariefcatur/go-boutique-orders.git/internal/inventory"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/go-chi/chi/v5"
)

type world struct {
	router *chi.Mux
	repo   *orders.MemRepo
	ledger *inventory.MemoryLedger
}

func newWorld(t *testing.T) *world {
	t.Helper()
	repo := orders.NewMemRepo()
	ledger := inventory.NewMemoryLedger()
	repo.PutProduct(orders.Product{
		ID: "p1", BoutiqueID: "btq-1", SKU: "SKU-1", Name: "Blus Linen",
		PriceCents: 15000, Stock: 10,
	})
	ledger.SetStock("p1", 10)

	carts := &cart.Service{Repo: repo, Catalog: repo, Ledger: ledger, ServiceName: "httpx-test"}
	ff := &fulfillment.Service{Repo: repo, Ledger: ledger, ServiceName: "httpx-test"}

	r := NewRouter()
	(&CartHandler{Carts: carts}).Register(r)
	(&OrdersHandler{Repo: repo, Catalog: repo, Fulfillment: ff}).Register(r)
	return &world{router: r, repo: repo, ledger: ledger}
}

func (w *world) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	w.router.ServeHTTP(rec, req)
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) *orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	return &o
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestCartFlow(t *testing.T) {
	w := newWorld(t)

	rec := w.do(t, http.MethodPost, "/cart/items", AddItemReq{
		UserID: "user-1", BoutiqueID: "btq-1", ProductID: "p1", Qty: 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft := decodeOrder(t, rec)
	assert.Equal(t, orders.StatusDraft, draft.Status)
	assert.Equal(t, 30000, draft.TotalCents)

	rec = w.do(t, http.MethodPatch, "/cart/items/p1", UpdateQtyReq{UserID: "user-1", Qty: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 75000, decodeOrder(t, rec).TotalCents)

	rec = w.do(t, http.MethodGet, "/cart?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decodeOrder(t, rec).Items[0].Qty)

	rec = w.do(t, http.MethodPut, "/cart/delivery", map[string]any{
		"user_id": "user-1", "mode": "pickup",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = w.do(t, http.MethodPost, "/cart/checkout", CheckoutReq{UserID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	order := decodeOrder(t, rec)
	assert.Equal(t, orders.StatusPaid, order.Status)

	// cart kosong lagi: null, bukan 404
	rec = w.do(t, http.MethodGet, "/cart?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())

	// boutique menerima lalu buyer ambil sendiri
	rec = w.do(t, http.MethodPatch, "/orders/"+order.ID+"/transition", TransitionReq{Event: "accept"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = w.do(t, http.MethodPatch, "/orders/"+order.ID+"/transition", TransitionReq{Event: "pickup"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusSuccess, decodeOrder(t, rec).Status)

	stock, engaged := w.ledger.Counters("p1")
	assert.Equal(t, 5, stock)
	assert.Equal(t, 0, engaged)

	rec = w.do(t, http.MethodGet, "/orders/"+order.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "SUCCESS", st["status"])
}

func TestErrorMapping(t *testing.T) {
	w := newWorld(t)

	// stok kurang -> 409
	rec := w.do(t, http.MethodPost, "/cart/items", AddItemReq{
		UserID: "user-1", BoutiqueID: "btq-1", ProductID: "p1", Qty: 11,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", errCode(t, rec))

	// qty nol -> 400
	rec = w.do(t, http.MethodPost, "/cart/items", AddItemReq{
		UserID: "user-1", BoutiqueID: "btq-1", ProductID: "p1", Qty: 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_QUANTITY", errCode(t, rec))

	// product tidak ada -> 404
	rec = w.do(t, http.MethodPost, "/cart/items", AddItemReq{
		UserID: "user-1", BoutiqueID: "btq-1", ProductID: "ghost", Qty: 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// mode antar tidak dikenal -> 400, bukan 500
	rec = w.do(t, http.MethodPut, "/cart/delivery", map[string]any{
		"user_id": "user-1", "mode": "teleport",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_DELIVERY_MODE", errCode(t, rec))

	// checkout tanpa draft -> 404
	rec = w.do(t, http.MethodPost, "/cart/checkout", CheckoutReq{UserID: "user-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DRAFT_NOT_FOUND", errCode(t, rec))

	// order tidak ada -> 404
	rec = w.do(t, http.MethodGet, "/orders/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// body bukan json -> 400
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewBufferString("{nope"))
	rr := httptest.NewRecorder()
	w.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestErrorMapping_DraftExpired(t *testing.T) {
	w := newWorld(t)

	rec := w.do(t, http.MethodPost, "/cart/items", AddItemReq{
		UserID: "user-1", BoutiqueID: "btq-1", ProductID: "p1", Qty: 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	draft := decodeOrder(t, rec)
	w.repo.ForceExpiry(draft.ID, time.Now().UTC().Add(-time.Minute))

	rec = w.do(t, http.MethodPost, "/cart/checkout", CheckoutReq{UserID: "user-1"})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "DRAFT_EXPIRED", errCode(t, rec))
}

func TestErrorMapping_InvalidTransition(t *testing.T) {
	w := newWorld(t)

	rec := w.do(t, http.MethodPost, "/cart/items", AddItemReq{
		UserID: "user-1", BoutiqueID: "btq-1", ProductID: "p1", Qty: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = w.do(t, http.MethodPost, "/cart/checkout", CheckoutReq{UserID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	order := decodeOrder(t, rec)

	// paid belum bisa deliver
	rec = w.do(t, http.MethodPatch, "/orders/"+order.ID+"/transition", TransitionReq{Event: "deliver"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, rec))
}

func TestListProducts(t *testing.T) {
	w := newWorld(t)
	w.repo.PutProduct(orders.Product{
		ID: "p2", BoutiqueID: "btq-2", SKU: "SKU-2", Name: "Rok Midi",
		PriceCents: 20000, SalePriceCents: 12000, OnSale: true,
		Stock: 4, StockEngaged: 1,
	})

	rec := w.do(t, http.MethodGet, "/products?boutique_id=btq-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	// buyer melihat harga efektif + stock_real, bukan counter mentah
	assert.Equal(t, float64(12000), out[0]["price_cents"])
	assert.Equal(t, float64(3), out[0]["stock_real"])
	assert.Equal(t, float64(1), out[0]["min_order_qty"])
}
