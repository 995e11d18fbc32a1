package orders

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusPaid       Status = "PAID"
	StatusAccepted   Status = "ACCEPTED"
	StatusDelivering Status = "DELIVERING"
	StatusSuccess    Status = "SUCCESS"
	StatusCanceled   Status = "CANCELED"
	StatusExpired    Status = "EXPIRED"
)

// Event state machine (trigger dari boutique, kecuali cancel yg bisa juga
// dari buyer via layer luar). EXPIRED bukan event di sini: hanya sweeper
// yg boleh mengubah draft jadi expired.
type Event string

const (
	EventAccept        Event = "accept"
	EventCancel        Event = "cancel"
	EventStartDelivery Event = "startDelivery"
	EventPickup        Event = "pickup"
	EventDeliver       Event = "deliver"
)

// Efek stok yg menempel pada sebuah transisi.
type StockEffect int

const (
	EffectNone    StockEffect = iota
	EffectRelease             // kembalikan reservasi (refund path)
	EffectCommit              // reservasi jadi penjualan beneran
)

type Transition struct {
	To     Status
	Effect StockEffect
}

// Tabel transisi. startDelivery hanya valid utk mode delivery; pickup
// dari accepted boleh utk mode apa pun (boutique override).
var validNext = map[Status]map[Event]Transition{
	StatusPaid: {
		EventAccept: {StatusAccepted, EffectNone},
		EventCancel: {StatusCanceled, EffectRelease},
	},
	StatusAccepted: {
		EventCancel:        {StatusCanceled, EffectRelease},
		EventStartDelivery: {StatusDelivering, EffectNone},
		EventPickup:        {StatusSuccess, EffectCommit},
	},
	StatusDelivering: {
		EventDeliver: {StatusSuccess, EffectCommit},
	},
	// DRAFT dan semua terminal state tidak punya transisi keluar.
}

// Next mengembalikan tujuan transisi + efek stoknya.
// ok=false berarti InvalidTransition.
func Next(from Status, ev Event, mode DeliveryMode) (Transition, bool) {
	t, ok := validNext[from][ev]
	if !ok {
		return Transition{}, false
	}
	if ev == EventStartDelivery && mode != ModeDelivery {
		return Transition{}, false
	}
	return t, true
}

func CanTransition(from Status, ev Event, mode DeliveryMode) bool {
	_, ok := Next(from, ev, mode)
	return ok
}

func Terminal(s Status) bool {
	return s == StatusSuccess || s == StatusCanceled || s == StatusExpired
}
