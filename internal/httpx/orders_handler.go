package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-boutique-orders.git/internal/fulfillment"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/ariefcatur/go-boutique-orders.git/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type OrdersHandler struct {
	Repo        orders.DraftRepo
	Catalog     orders.Catalog
	Fulfillment *fulfillment.Service
	Redis       *redis.Client
}

type TransitionReq struct {
	Event  string `json:"event"` // accept | cancel | startDelivery | pickup | deliver
	Reason string `json:"reason,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Patch("/orders/{id}/transition", h.transition)
	r.Get("/products", h.listProducts)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus: jalur ringan — cache redis dulu, fallback DB.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := reqCtx(r)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	body := map[string]any{"status": o.Status}
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		b, _ := json.Marshal(body)
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req TransitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Event == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing event"})
		return
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Fulfillment.Transition(ctx, orderID, orders.Event(req.Event), req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type productView struct {
	ID          string `json:"id"`
	BoutiqueID  string `json:"boutique_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	PriceCents  int    `json:"price_cents"`
	OnSale      bool   `json:"on_sale"`
	StockReal   int    `json:"stock_real"` // satu-satunya angka stok yg dilihat buyer
	MinOrderQty int    `json:"min_order_qty"`
	MaxOrderQty int    `json:"max_order_qty"`
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	boutiqueID := r.URL.Query().Get("boutique_id")
	ctx, cancel := reqCtx(r)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx, boutiqueID)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]productView, 0, len(ps))
	for i := range ps {
		p := &ps[i]
		out = append(out, productView{
			ID: p.ID, BoutiqueID: p.BoutiqueID, SKU: p.SKU, Name: p.Name,
			PriceCents: p.EffectivePriceCents(), OnSale: p.OnSale,
			StockReal: p.StockReal(), MinOrderQty: p.MinQty(), MaxOrderQty: p.MaxOrderQty,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
