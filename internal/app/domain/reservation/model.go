package reservation

import "time"

// Kind selects which counter a reservation holds.
type Kind string

const (
	// KindSupply holds one unit of a collection's sold quantity.
	KindSupply Kind = "supply"
	// KindOpen holds one box open: an opened count slot and one pool item unit.
	KindOpen Kind = "open"
)

// Reservation is a provisional decrement awaiting commit or release.
type Reservation struct {
	Token        string
	CollectionID string
	Kind         Kind
	// ItemIndex is the pool item position for KindOpen, -1 otherwise.
	ItemIndex int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the reservation outlived its deadline.
func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
