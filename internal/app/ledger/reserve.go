package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/metrics"
	"github.com/mintline/edition_layer/internal/app/storage"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// PoolPicker chooses a pool item index from a snapshot of the box's items.
type PoolPicker func(items []collection.PoolItem) (int, error)

// Selector describes what a reservation holds.
type Selector struct {
	kind reservation.Kind
	pick PoolPicker
}

// Supply reserves one unit of a collection's total quantity.
func Supply() Selector { return Selector{kind: reservation.KindSupply} }

// FromPool reserves one box open and the pool item chosen by pick.
func FromPool(pick PoolPicker) Selector {
	return Selector{kind: reservation.KindOpen, pick: pick}
}

// =============================================================================
// Reservation Operations
// =============================================================================

// ReserveOne provisionally takes one unit from the collection. The returned
// reservation must be passed to Commit or Release.
func (l *Ledger) ReserveOne(ctx context.Context, collectionID string, sel Selector) (reservation.Reservation, error) {
	if sel.kind == "" {
		sel = Supply()
	}

	var res reservation.Reservation
	err := l.do(ctx, collectionID, func(ctx context.Context) error {
		var err error
		if sel.kind == reservation.KindOpen {
			res, err = l.reserveOpen(ctx, collectionID, sel.pick)
		} else {
			res, err = l.reserveSupply(ctx, collectionID)
		}
		return err
	})
	metrics.RecordReservation(string(sel.kind), outcomeOf(err))
	return res, err
}

func (l *Ledger) reserveSupply(ctx context.Context, collectionID string) (reservation.Reservation, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		c, err := l.loadCollection(ctx, collectionID)
		if err != nil {
			return reservation.Reservation{}, err
		}
		if !c.Status.Listed() {
			return reservation.Reservation{}, apperrors.NotPublished("collection is not on sale")
		}
		if c.Remaining() == 0 {
			return reservation.Reservation{}, apperrors.OutOfStock(collectionID)
		}

		if _, err := l.collections.IncrementSold(ctx, collectionID); err != nil {
			if errors.Is(err, storage.ErrConditionFailed) {
				continue
			}
			return reservation.Reservation{}, apperrors.Internal("reserve supply", err)
		}
		return l.persist(ctx, collectionID, reservation.KindSupply, -1)
	}
	return reservation.Reservation{}, apperrors.Conflict("inventory contention, retry", nil)
}

func (l *Ledger) reserveOpen(ctx context.Context, collectionID string, pick PoolPicker) (reservation.Reservation, error) {
	if pick == nil {
		return reservation.Reservation{}, apperrors.Internal("reserve open", errors.New("no pool picker"))
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		c, err := l.loadCollection(ctx, collectionID)
		if err != nil {
			return reservation.Reservation{}, err
		}
		if c.Kind != collection.KindMysteryBox {
			return reservation.Reservation{}, apperrors.Validation("collection is not a mystery box")
		}
		if c.OpenLimitReached() {
			return reservation.Reservation{}, apperrors.OpenLimitReached(collectionID, c.OpenLimit)
		}

		idx, err := pick(c.Items)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeExhaustedPool) {
				return reservation.Reservation{}, apperrors.ExhaustedPool(collectionID)
			}
			return reservation.Reservation{}, err
		}

		if _, err := l.collections.IncrementOpened(ctx, collectionID, idx); err != nil {
			if errors.Is(err, storage.ErrConditionFailed) {
				continue
			}
			return reservation.Reservation{}, apperrors.Internal("reserve open", err)
		}
		return l.persist(ctx, collectionID, reservation.KindOpen, idx)
	}
	return reservation.Reservation{}, apperrors.Conflict("inventory contention, retry", nil)
}

// persist records the reservation, undoing the counter if that fails.
func (l *Ledger) persist(ctx context.Context, collectionID string, kind reservation.Kind, itemIndex int) (reservation.Reservation, error) {
	now := l.now().UTC()
	res := reservation.Reservation{
		Token:        uuid.New().String(),
		CollectionID: collectionID,
		Kind:         kind,
		ItemIndex:    itemIndex,
		CreatedAt:    now,
		ExpiresAt:    now.Add(l.ttl),
	}
	if err := l.reservations.SaveReservation(ctx, res); err != nil {
		if undoErr := l.restoreCounter(ctx, res); undoErr != nil {
			l.log.WithError(undoErr).WithField("collection_id", collectionID).Error("failed to undo counter after reservation write failure")
		}
		return reservation.Reservation{}, apperrors.Internal("save reservation", err)
	}
	return res, nil
}

// Release returns a pending reservation to the pool. Releasing a reservation
// that was already committed or released is a no-op.
func (l *Ledger) Release(ctx context.Context, res reservation.Reservation) error {
	return l.do(ctx, res.CollectionID, func(ctx context.Context) error {
		_, err := l.release(ctx, res.Token)
		return err
	})
}

func (l *Ledger) release(ctx context.Context, token string) (bool, error) {
	res, err := l.reservations.DeleteReservation(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Internal("delete reservation", err)
	}
	if err := l.restoreCounter(ctx, res); err != nil {
		return false, apperrors.Internal("restore counter", err)
	}
	metrics.RecordReservation(string(res.Kind), "released")
	return true, nil
}

// Commit makes a reservation permanent. Callers commit before the write that
// hands the unit out, so a reservation the sweeper already returned is only
// honoured if the unit can still be taken; otherwise Commit fails with the
// same error a fresh reservation would get.
func (l *Ledger) Commit(ctx context.Context, res reservation.Reservation) error {
	return l.do(ctx, res.CollectionID, func(ctx context.Context) error {
		_, err := l.reservations.DeleteReservation(ctx, res.Token)
		if err == nil {
			metrics.RecordReservation(string(res.Kind), "committed")
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return apperrors.Internal("commit reservation", err)
		}

		l.log.WithField("token", res.Token).WithField("collection_id", res.CollectionID).
			Warn("reservation expired before commit, reapplying")
		if err := l.applyCounter(ctx, res); err != nil {
			if errors.Is(err, storage.ErrConditionFailed) {
				metrics.RecordReservation(string(res.Kind), "expired")
				return l.unavailable(ctx, res)
			}
			return apperrors.Internal(fmt.Sprintf("reapply expired reservation %s", res.Token), err)
		}
		metrics.RecordReservation(string(res.Kind), "committed")
		return nil
	})
}

// Refund returns a committed unit whose allocation could not be completed.
func (l *Ledger) Refund(ctx context.Context, res reservation.Reservation) error {
	return l.do(ctx, res.CollectionID, func(ctx context.Context) error {
		if err := l.restoreCounter(ctx, res); err != nil {
			return apperrors.Internal("refund reservation", err)
		}
		metrics.RecordReservation(string(res.Kind), "refunded")
		return nil
	})
}

// unavailable reports why an expired reservation could not be taken again.
func (l *Ledger) unavailable(ctx context.Context, res reservation.Reservation) error {
	if res.Kind != reservation.KindOpen {
		return apperrors.OutOfStock(res.CollectionID)
	}
	c, err := l.loadCollection(ctx, res.CollectionID)
	if err == nil && c.OpenLimitReached() {
		return apperrors.OpenLimitReached(res.CollectionID, c.OpenLimit)
	}
	return apperrors.ExhaustedPool(res.CollectionID)
}

func (l *Ledger) applyCounter(ctx context.Context, res reservation.Reservation) error {
	if res.Kind == reservation.KindOpen {
		_, err := l.collections.IncrementOpened(ctx, res.CollectionID, res.ItemIndex)
		return err
	}
	_, err := l.collections.IncrementSold(ctx, res.CollectionID)
	return err
}

func (l *Ledger) restoreCounter(ctx context.Context, res reservation.Reservation) error {
	if res.Kind == reservation.KindOpen {
		return l.collections.DecrementOpened(ctx, res.CollectionID, res.ItemIndex)
	}
	return l.collections.DecrementSold(ctx, res.CollectionID)
}

func (l *Ledger) loadCollection(ctx context.Context, id string) (collection.Collection, error) {
	c, err := l.collections.GetCollection(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return collection.Collection{}, apperrors.NotFound("collection", id)
	}
	if err != nil {
		return collection.Collection{}, apperrors.Internal("load collection", err)
	}
	return c, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "reserved"
	}
	if se := apperrors.GetServiceError(err); se != nil {
		return string(se.Code)
	}
	return "error"
}
