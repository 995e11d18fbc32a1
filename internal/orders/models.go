package orders

import "time"

type DeliveryMode string

const (
	ModePickup   DeliveryMode = "pickup"
	ModeDelivery DeliveryMode = "delivery"
)

type Product struct {
	ID             string
	BoutiqueID     string
	SKU            string
	Name           string
	PriceCents     int
	SalePriceCents int
	OnSale         bool
	Stock          int // unit fisik milik boutique; hanya ledger yg boleh mutasi
	StockEngaged   int // unit yg sedang di-reserve draft/order berjalan
	MinOrderQty    int
	MaxOrderQty    int // 0 = tanpa batas atas
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StockReal = stok yg benar-benar bisa dijual. Selalu dihitung, tidak
// pernah disimpan (virtual field dari skema aslinya).
func (p *Product) StockReal() int {
	real := p.Stock - p.StockEngaged
	if real < 0 {
		return 0
	}
	return real
}

// EffectivePriceCents mengikuti harga sale kalau sedang aktif.
func (p *Product) EffectivePriceCents() int {
	if p.OnSale && p.SalePriceCents > 0 {
		return p.SalePriceCents
	}
	return p.PriceCents
}

// MinQty default 1 kalau boutique tidak set.
func (p *Product) MinQty() int {
	if p.MinOrderQty <= 0 {
		return 1
	}
	return p.MinOrderQty
}

type DeliveryAddress struct {
	Lat        float64
	Lng        float64
	Label      string
	PriceCents int // ongkir, ikut masuk total
}

type OrderItem struct {
	ProductID       string
	Qty             int
	UnitPriceCents  int  // snapshot saat add, tidak pernah di-recompute dari harga live
	TotalPriceCents int  // UnitPriceCents * Qty
	OnSale          bool // snapshot flag sale saat add
}

type Order struct {
	ID              string
	UserID          string
	BoutiqueID      string // cart selalu single-boutique
	Status          Status
	Items           []OrderItem
	DeliveryMode    DeliveryMode // kosong = belum dipilih
	DeliveryAddress *DeliveryAddress
	TotalCents      int
	CancelReason    string
	ExpiresAt       *time.Time // hanya terisi selama status draft
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecomputeTotal: sum total item + ongkir. Dipanggil setiap mutasi cart,
// tidak pernah percaya payload client.
func (o *Order) RecomputeTotal() {
	total := 0
	for i := range o.Items {
		o.Items[i].TotalPriceCents = o.Items[i].UnitPriceCents * o.Items[i].Qty
		total += o.Items[i].TotalPriceCents
	}
	if o.DeliveryAddress != nil {
		total += o.DeliveryAddress.PriceCents
	}
	o.TotalCents = total
}

// Item mengembalikan index line utk product, -1 kalau tidak ada.
func (o *Order) Item(productID string) int {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (o *Order) Expired(now time.Time) bool {
	return o.Status == StatusDraft && o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}
