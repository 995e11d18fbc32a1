package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrProductNotFound = errors.New("product not found")

// DraftRepo adalah storage utk order (draft maupun committed). Semua flip
// status lewat SetStatus yg compare-and-set: pemenang race (checkout vs
// sweeper vs transisi ganda) ditentukan di sini.
type DraftRepo interface {
	GetDraft(ctx context.Context, userID string) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	CreateDraft(ctx context.Context, o *Order) error
	// UpdateDraft menulis ulang items/total/expiry; return false kalau
	// order sudah bukan draft (kalah race dgn sweeper/checkout).
	UpdateDraft(ctx context.Context, o *Order) (bool, error)
	// SetStatus: flip status hanya kalau status sekarang == from.
	SetStatus(ctx context.Context, orderID string, from, to Status, reason string) (bool, error)
	ListExpiredDrafts(ctx context.Context, now time.Time, limit int) ([]*Order, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	ListProducts(ctx context.Context, boutiqueID string) ([]Product, error)
}

type Repo struct{ DB *pgxpool.Pool }

const orderCols = `id, user_id, boutique_id, status, delivery_mode,
	delivery_lat, delivery_lng, delivery_label, delivery_price_cents,
	total_cents, cancel_reason, expires_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var mode *string
	var lat, lng *float64
	var label *string
	var deliveryPrice *int
	err := row.Scan(&o.ID, &o.UserID, &o.BoutiqueID, &o.Status, &mode,
		&lat, &lng, &label, &deliveryPrice,
		&o.TotalCents, &o.CancelReason, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if mode != nil {
		o.DeliveryMode = DeliveryMode(*mode)
	}
	if label != nil && lat != nil && lng != nil {
		price := 0
		if deliveryPrice != nil {
			price = *deliveryPrice
		}
		o.DeliveryAddress = &DeliveryAddress{Lat: *lat, Lng: *lng, Label: *label, PriceCents: price}
	}
	return &o, nil
}

func (r *Repo) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, qty, unit_price_cents, total_price_cents, on_sale
		FROM order_items WHERE order_id=$1 ORDER BY position`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ProductID, &it.Qty, &it.UnitPriceCents, &it.TotalPriceCents, &it.OnSale); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r *Repo) GetDraft(ctx context.Context, userID string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders
		WHERE user_id=$1 AND status=$2 LIMIT 1`, userID, StatusDraft)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) CreateDraft(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, boutique_id, status, delivery_mode,
			delivery_lat, delivery_lng, delivery_label, delivery_price_cents,
			total_cents, cancel_reason, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.UserID, o.BoutiqueID, o.Status, nullMode(o.DeliveryMode),
		addrLat(o.DeliveryAddress), addrLng(o.DeliveryAddress),
		addrLabel(o.DeliveryAddress), addrPrice(o.DeliveryAddress),
		o.TotalCents, o.CancelReason, o.ExpiresAt, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if err := insertItems(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) UpdateDraft(ctx context.Context, o *Order) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET delivery_mode=$2, delivery_lat=$3, delivery_lng=$4,
			delivery_label=$5, delivery_price_cents=$6, total_cents=$7,
			expires_at=$8, updated_at=$9
		WHERE id=$1 AND status=$10`,
		o.ID, nullMode(o.DeliveryMode),
		addrLat(o.DeliveryAddress), addrLng(o.DeliveryAddress),
		addrLabel(o.DeliveryAddress), addrPrice(o.DeliveryAddress),
		o.TotalCents, o.ExpiresAt, o.UpdatedAt, StatusDraft)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, nil // sudah bukan draft, jangan sentuh items
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
		return false, err
	}
	if err := insertItems(ctx, tx, o); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repo) SetStatus(ctx context.Context, orderID string, from, to Status, reason string) (bool, error) {
	// expires_at ikut dibersihkan begitu order keluar dari draft
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3, cancel_reason=$4,
			expires_at = CASE WHEN $3 <> 'DRAFT' THEN NULL ELSE expires_at END,
			updated_at = now()
		WHERE id=$1 AND status=$2`, orderID, from, to, reason)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) ListExpiredDrafts(ctx context.Context, now time.Time, limit int) ([]*Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders
		WHERE status=$1 AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at LIMIT $3`, StatusDraft, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, boutique_id, sku, name, price_cents, sale_price_cents, on_sale,
		       stock, stock_engaged, min_order_qty, max_order_qty, created_at, updated_at
		FROM products WHERE id=$1`, productID).Scan(
		&p.ID, &p.BoutiqueID, &p.SKU, &p.Name, &p.PriceCents, &p.SalePriceCents, &p.OnSale,
		&p.Stock, &p.StockEngaged, &p.MinOrderQty, &p.MaxOrderQty, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListProducts(ctx context.Context, boutiqueID string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, boutique_id, sku, name, price_cents, sale_price_cents, on_sale,
		       stock, stock_engaged, min_order_qty, max_order_qty, created_at, updated_at
		FROM products WHERE boutique_id=$1 ORDER BY sku`, boutiqueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.BoutiqueID, &p.SKU, &p.Name, &p.PriceCents,
			&p.SalePriceCents, &p.OnSale, &p.Stock, &p.StockEngaged,
			&p.MinOrderQty, &p.MaxOrderQty, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, o *Order) error {
	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, position, qty,
				unit_price_cents, total_price_cents, on_sale)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, it.ProductID, i, it.Qty, it.UnitPriceCents, it.TotalPriceCents, it.OnSale); err != nil {
			return err
		}
	}
	return nil
}

func nullMode(m DeliveryMode) *string {
	if m == "" {
		return nil
	}
	s := string(m)
	return &s
}

func addrLat(a *DeliveryAddress) *float64 {
	if a == nil {
		return nil
	}
	return &a.Lat
}

func addrLng(a *DeliveryAddress) *float64 {
	if a == nil {
		return nil
	}
	return &a.Lng
}

func addrLabel(a *DeliveryAddress) *string {
	if a == nil {
		return nil
	}
	return &a.Label
}

func addrPrice(a *DeliveryAddress) *int {
	if a == nil {
		return nil
	}
	return &a.PriceCents
}
