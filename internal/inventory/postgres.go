package inventory

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger: ledger di atas postgres. Lock per product pakai FOR UPDATE
// pada row products; record reservasi unik per (order_id, product_id).
type PGLedger struct{ DB *pgxpool.Pool }

func (r *PGLedger) lockProduct(ctx context.Context, tx pgx.Tx, productID string) (stock, engaged int, err error) {
	err = tx.QueryRow(ctx, `SELECT stock, stock_engaged FROM products WHERE id=$1 FOR UPDATE`,
		productID).Scan(&stock, &engaged)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, ErrProductNotFound
	}
	return stock, engaged, err
}

func (r *PGLedger) Reserve(ctx context.Context, orderID, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stock, engaged, err := r.lockProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	if stock-engaged < qty {
		return ErrInsufficientStock // rollback via defer, tanpa mutasi
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET stock_engaged = stock_engaged + $2,
		updated_at = now() WHERE id=$1`, productID, qty); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations(order_id, product_id, qty, status)
		VALUES ($1,$2,$3,'RESERVED')
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET qty = reservations.qty + EXCLUDED.qty, status='RESERVED', updated_at=now()
	`, orderID, productID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGLedger) AdjustReservation(ctx context.Context, orderID, productID string, newQty int) error {
	if newQty <= 0 {
		return ErrInvalidQty
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stock, engaged, err := r.lockProduct(ctx, tx, productID)
	if err != nil {
		return err
	}

	// qty lama dibaca dari record, bukan dari caller
	var old int
	err = tx.QueryRow(ctx, `SELECT qty FROM reservations
		WHERE order_id=$1 AND product_id=$2 AND status='RESERVED'`,
		orderID, productID).Scan(&old)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	delta := newQty - old
	if delta > 0 && stock-engaged < delta {
		return ErrInsufficientStock
	}
	if _, err := tx.Exec(ctx, `UPDATE products
		SET stock_engaged = GREATEST(stock_engaged + $2, 0), updated_at = now()
		WHERE id=$1`, productID, delta); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations(order_id, product_id, qty, status)
		VALUES ($1,$2,$3,'RESERVED')
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET qty = EXCLUDED.qty, status='RESERVED', updated_at=now()
	`, orderID, productID, newQty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGLedger) Release(ctx context.Context, orderID, productID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// klaim record dulu secara atomik; pelepas kedua yg interleave
	// dapat 0 row dan berhenti, jadi tidak ada double-decrement
	var qty int
	err = tx.QueryRow(ctx, `UPDATE reservations SET status='RELEASED', updated_at=now()
		WHERE order_id=$1 AND product_id=$2 AND status='RESERVED'
		RETURNING qty`, orderID, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // sudah dilepas, no-op
	}
	if err != nil {
		return err
	}
	if _, _, err := r.lockProduct(ctx, tx, productID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE products
		SET stock_engaged = GREATEST(stock_engaged - $2, 0), updated_at = now()
		WHERE id=$1`, productID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGLedger) ReleaseOrder(ctx context.Context, orderID string) ([]ReleasedItem, error) {
	return r.settleOrder(ctx, orderID, false)
}

func (r *PGLedger) CommitOrder(ctx context.Context, orderID string) ([]ReleasedItem, error) {
	return r.settleOrder(ctx, orderID, true)
}

// settleOrder menutup seluruh record RESERVED sebuah order dalam satu tx.
// commit=true ikut menurunkan stok fisik (reservasi jadi penjualan).
func (r *PGLedger) settleOrder(ctx context.Context, orderID string, commit bool) ([]ReleasedItem, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newStatus := "RELEASED"
	if commit {
		newStatus = "COMMITTED"
	}

	// klaim semua record RESERVED secara atomik; race dgn Release
	// per-item selesai di sini — yg kalah klaim dapat 0 row, jadi
	// counter products hanya diturunkan utk row yg benar-benar diklaim
	rows, err := tx.Query(ctx, `UPDATE reservations SET status=$2, updated_at=now()
		WHERE order_id=$1 AND status='RESERVED'
		RETURNING product_id, qty`, orderID, newStatus)
	if err != nil {
		return nil, err
	}
	var recs []ReleasedItem
	for rows.Next() {
		var x ReleasedItem
		if err := rows.Scan(&x.ProductID, &x.Qty); err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil // idempotent: sweep/cancel kedua jadi no-op
	}
	// urut product_id supaya ordering lock antar-order konsisten
	sort.Slice(recs, func(i, j int) bool { return recs[i].ProductID < recs[j].ProductID })

	for _, x := range recs {
		if _, _, err := r.lockProduct(ctx, tx, x.ProductID); err != nil {
			return nil, err
		}
		if commit {
			if _, err := tx.Exec(ctx, `UPDATE products
				SET stock = GREATEST(stock - $2, 0),
				    stock_engaged = GREATEST(stock_engaged - $2, 0),
				    updated_at = now()
				WHERE id=$1`, x.ProductID, x.Qty); err != nil {
				return nil, err
			}
		} else {
			if _, err := tx.Exec(ctx, `UPDATE products
				SET stock_engaged = GREATEST(stock_engaged - $2, 0), updated_at = now()
				WHERE id=$1`, x.ProductID, x.Qty); err != nil {
				return nil, err
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *PGLedger) Reserved(ctx context.Context, orderID, productID string) (int, error) {
	var qty int
	err := r.DB.QueryRow(ctx, `SELECT qty FROM reservations
		WHERE order_id=$1 AND product_id=$2 AND status='RESERVED'`,
		orderID, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (r *PGLedger) Available(ctx context.Context, productID string) (int, error) {
	var real int
	err := r.DB.QueryRow(ctx, `SELECT GREATEST(stock - stock_engaged, 0)
		FROM products WHERE id=$1`, productID).Scan(&real)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	return real, err
}
