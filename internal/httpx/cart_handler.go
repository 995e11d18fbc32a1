package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-boutique-orders.git/internal/cart"
	"github.com/ariefcatur/go-boutique-orders.git/internal/inventory"
	"github.com/ariefcatur/go-boutique-orders.git/internal/orders"
	"github.com/go-chi/chi/v5"
)

// Auth/role scoping hidup di layer luar; handler di sini percaya
// user_id yg sudah diverifikasi gateway.
type CartHandler struct {
	Carts *cart.Service
}

type AddItemReq struct {
	UserID     string `json:"user_id"`
	BoutiqueID string `json:"boutique_id"`
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
}

type UpdateQtyReq struct {
	UserID string `json:"user_id"`
	Qty    int    `json:"qty"`
}

type SetDeliveryReq struct {
	UserID  string `json:"user_id"`
	Mode    string `json:"mode"` // pickup | delivery
	Address *struct {
		Lat        float64 `json:"lat"`
		Lng        float64 `json:"lng"`
		Label      string  `json:"label"`
		PriceCents int     `json:"price_cents"`
	} `json:"address,omitempty"`
}

type CheckoutReq struct {
	UserID string `json:"user_id"`
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{productID}", h.updateQty)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Get("/cart", h.getDraft)
	r.Put("/cart/delivery", h.setDelivery)
	r.Post("/cart/checkout", h.checkout)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Mapping taksonomi error -> HTTP. Setiap error user-facing dapat code
// stabil; selain itu 500 generik tanpa bocoran state internal.
func writeErr(w http.ResponseWriter, err error) {
	var code string
	var status int
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		status, code = http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, orders.ErrInsufficientStockAtCheckout):
		status, code = http.StatusConflict, "INSUFFICIENT_STOCK_AT_CHECKOUT"
	case errors.Is(err, orders.ErrInvalidQuantity), errors.Is(err, inventory.ErrInvalidQty):
		status, code = http.StatusBadRequest, "INVALID_QUANTITY"
	case errors.Is(err, orders.ErrInvalidDeliveryMode):
		status, code = http.StatusBadRequest, "INVALID_DELIVERY_MODE"
	case errors.Is(err, orders.ErrCrossBoutiqueCart):
		status, code = http.StatusConflict, "CROSS_BOUTIQUE_CART"
	case errors.Is(err, orders.ErrDraftExpired):
		status, code = http.StatusGone, "DRAFT_EXPIRED"
	case errors.Is(err, orders.ErrDraftNotFound):
		status, code = http.StatusNotFound, "DRAFT_NOT_FOUND"
	case errors.Is(err, orders.ErrEmptyDraft):
		status, code = http.StatusBadRequest, "EMPTY_DRAFT"
	case errors.Is(err, orders.ErrInvalidTransition):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, inventory.ErrProductNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "INTERNAL"})
		return
	}
	writeJSON(w, status, map[string]string{"error": code, "message": err.Error()})
}

func reqCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.BoutiqueID == "" || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Carts.AddItem(ctx, req.UserID, req.BoutiqueID, req.ProductID, req.Qty)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CartHandler) updateQty(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	var req UpdateQtyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" || productID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Carts.UpdateQuantity(ctx, req.UserID, productID, req.Qty)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" || productID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CartHandler) getDraft(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		return
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Carts.GetDraft(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	// tidak ada draft = null, bukan 404
	writeJSON(w, http.StatusOK, o)
}

func (h *CartHandler) setDelivery(w http.ResponseWriter, r *http.Request) {
	var req SetDeliveryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Mode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	var addr *orders.DeliveryAddress
	if req.Address != nil {
		addr = &orders.DeliveryAddress{
			Lat: req.Address.Lat, Lng: req.Address.Lng,
			Label: req.Address.Label, PriceCents: req.Address.PriceCents,
		}
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Carts.SetDelivery(ctx, req.UserID, orders.DeliveryMode(req.Mode), addr)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *CartHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		return
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Carts.Checkout(ctx, req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
