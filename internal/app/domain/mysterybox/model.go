package mysterybox

import "time"

// State tracks a purchased box instance.
type State int

const (
	StateUnopened State = 1
	StateOpening  State = 2
	StateOpened   State = 3
)

// Instance is one box bought by a user.
type Instance struct {
	ID           string
	CollectionID string
	Seq          int
	SubID        string
	Owner        string
	Price        string
	State        State
	// ClaimedAt is set while an open is in flight.
	ClaimedAt   time.Time
	NFTReceived string
	// EditionReceived is the subId of the edition the open produced.
	EditionReceived string
	PurchasedAt     time.Time
	OpenedAt        time.Time
	UpdatedAt       time.Time
}
