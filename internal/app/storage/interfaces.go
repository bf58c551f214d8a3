package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/mysterybox"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/domain/trade"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConditionFailed is returned when a conditional write matched no row:
	// a counter bound, a version check or a state check did not hold.
	ErrConditionFailed = errors.New("storage: condition failed")
	// ErrAlreadyExists is returned when creating a record with a taken id.
	ErrAlreadyExists = errors.New("storage: already exists")
)

// CollectionStore persists collections and their counters. Every counter
// mutation is a single conditional write.
type CollectionStore interface {
	// CreateCollection stores the collection together with its initial editions.
	CreateCollection(ctx context.Context, c collection.Collection, editions []edition.Edition) (collection.Collection, error)
	GetCollection(ctx context.Context, id string) (collection.Collection, error)
	ListCollections(ctx context.Context) ([]collection.Collection, error)

	// IncrementSold adds one sale while sold < total.
	IncrementSold(ctx context.Context, id string) (collection.Collection, error)
	// DecrementSold returns one sale while sold > 0.
	DecrementSold(ctx context.Context, id string) error
	// IncrementOpened records one open while the open limit allows it and
	// takes one unit from the pool item while it has remaining quantity.
	IncrementOpened(ctx context.Context, id string, itemIndex int) (collection.Collection, error)
	// DecrementOpened undoes IncrementOpened.
	DecrementOpened(ctx context.Context, id string, itemIndex int) error
	// AdvanceSequence reserves n consecutive sequence numbers and returns the first.
	AdvanceSequence(ctx context.Context, id string, n int) (int, error)

	// SetCollectionStatus writes the status and the cascaded editions in one
	// unit. Each edition is version checked; any mismatch aborts everything.
	SetCollectionStatus(ctx context.Context, id string, status collection.Status, cascade []edition.Edition) (collection.Collection, error)
}

// EditionStore persists editions and their history.
type EditionStore interface {
	InsertEditions(ctx context.Context, editions []edition.Edition) error
	GetEdition(ctx context.Context, collectionID, subID string) (edition.Edition, error)
	// ListEditions returns a collection's editions ordered by sequence.
	ListEditions(ctx context.Context, collectionID string) ([]edition.Edition, error)
	// UpdateEditions applies version checked updates to all editions or none.
	// History entries beyond those already stored are appended.
	UpdateEditions(ctx context.Context, editions []edition.Edition) ([]edition.Edition, error)
}

// TransferStore commits an ownership change and its trade record together.
type TransferStore interface {
	CommitTransfer(ctx context.Context, e edition.Edition, rec *trade.Record) (edition.Edition, error)
}

// BoxStore persists purchased mystery box instances.
type BoxStore interface {
	CreateInstance(ctx context.Context, inst mysterybox.Instance) (mysterybox.Instance, error)
	GetInstance(ctx context.Context, id string) (mysterybox.Instance, error)
	ListInstancesByOwner(ctx context.Context, owner string) ([]mysterybox.Instance, error)
	// TransitionInstance writes inst only if the stored state equals from.
	TransitionInstance(ctx context.Context, inst mysterybox.Instance, from mysterybox.State) (mysterybox.Instance, error)
	// ListStaleClaims returns opening instances claimed before the cutoff.
	ListStaleClaims(ctx context.Context, before time.Time) ([]mysterybox.Instance, error)
}

// TradeStore persists the trade log.
type TradeStore interface {
	CreateTrade(ctx context.Context, rec trade.Record) (trade.Record, error)
	ListTradesByBuyer(ctx context.Context, buyer string) ([]trade.Record, error)
	ListTradesBySeller(ctx context.Context, seller string) ([]trade.Record, error)
	FindTradeByReference(ctx context.Context, reference string) (trade.Record, error)
}

// ReservationStore tracks pending ledger reservations.
type ReservationStore interface {
	SaveReservation(ctx context.Context, r reservation.Reservation) error
	// DeleteReservation removes the reservation; ErrNotFound means another
	// caller already committed or released it.
	DeleteReservation(ctx context.Context, token string) (reservation.Reservation, error)
	ListExpiredReservations(ctx context.Context, now time.Time) ([]reservation.Reservation, error)
}
