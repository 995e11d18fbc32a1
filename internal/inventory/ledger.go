package inventory

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQty        = errors.New("quantity must be positive")
)

// ReleasedItem: hasil pembalikan reservasi, dipakai utk payload event.
type ReleasedItem struct {
	ProductID string
	Qty       int
}

// Ledger adalah satu-satunya pihak yg boleh mutasi stock/stock_engaged.
// Reservasi dicatat eksplisit per (order, product) supaya Release adalah
// inverse persis dari Reserve, bukan pengurangan delta yg bisa basi.
// Semua operasi atomik per product; tidak ada I/O lain selama lock.
type Ledger interface {
	// Reserve: cek stockReal >= qty lalu naikkan engaged. Gagal tanpa
	// mutasi kalau stok kurang.
	Reserve(ctx context.Context, orderID, productID string, qty int) error
	// AdjustReservation mengeset qty record ke newQty dalam satu langkah
	// atomik. Qty lama dibaca dari record ledger sendiri, bukan dari
	// caller, supaya view basi tidak merusak counter.
	AdjustReservation(ctx context.Context, orderID, productID string, newQty int) error
	// Release menolkan record (order, product). No-op kalau record
	// sudah kosong; aman dipanggil ulang.
	Release(ctx context.Context, orderID, productID string) error
	// ReleaseOrder mengembalikan seluruh reservasi sebuah order
	// (expiry / cancel). Idempotent.
	ReleaseOrder(ctx context.Context, orderID string) ([]ReleasedItem, error)
	// CommitOrder: reservasi jadi penjualan beneran — stock dan engaged
	// sama-sama turun. Dipanggil saat fulfillment (success).
	CommitOrder(ctx context.Context, orderID string) ([]ReleasedItem, error)

	Reserved(ctx context.Context, orderID, productID string) (int, error)
	Available(ctx context.Context, productID string) (int, error)
}
