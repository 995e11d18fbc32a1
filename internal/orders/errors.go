package orders

import "errors"

// Taksonomi error yg dilihat layer luar. Error dari ledger diteruskan
// apa adanya, tidak pernah di-downgrade jadi sukses.
var (
	ErrInvalidQuantity             = errors.New("quantity outside allowed bounds")
	ErrInvalidDeliveryMode         = errors.New("unknown delivery mode")
	ErrCrossBoutiqueCart           = errors.New("cart already belongs to another boutique")
	ErrDraftNotFound               = errors.New("draft not found")
	ErrDraftExpired                = errors.New("draft expired")
	ErrEmptyDraft                  = errors.New("draft has no items")
	ErrInsufficientStockAtCheckout = errors.New("insufficient stock at checkout")
	ErrInvalidTransition           = errors.New("invalid status transition")
	ErrNotFound                    = errors.New("order not found")
)
