package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/mysterybox"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/domain/trade"
	"github.com/mintline/edition_layer/internal/app/ledger"
	"github.com/mintline/edition_layer/internal/app/recorder"
	"github.com/mintline/edition_layer/internal/app/storage"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// awardAttempts bounds retries when a concurrent open takes the same edition.
const awardAttempts = 5

// OpenResult is what a box open produced.
type OpenResult struct {
	Instance mysterybox.Instance
	Target   collection.Collection
	Edition  edition.Edition
}

// PurchaseBox sells one unopened box instance to the caller.
func (s *Service) PurchaseBox(ctx context.Context, caller Caller, req PurchaseBoxRequest) (inst mysterybox.Instance, err error) {
	defer func(start time.Time) { observe("purchase_box", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return mysterybox.Instance{}, err
	}
	box, err := s.loadCollection(ctx, req.CollectionID)
	if err != nil {
		return mysterybox.Instance{}, err
	}
	if box.Kind != collection.KindMysteryBox {
		return mysterybox.Instance{}, apperrors.Validation("collection is not a mystery box")
	}
	if !box.Status.Purchasable() {
		return mysterybox.Instance{}, apperrors.NotPublished("mystery box is not on sale")
	}
	if box.Owner == caller.ID {
		return mysterybox.Instance{}, apperrors.SelfTransaction()
	}

	err = s.withReservation(ctx, box.ID, ledger.Supply(), func(reservation.Reservation) error {
		seq, err := s.ledger.AllocateSequence(ctx, box.ID, 1)
		if err != nil {
			return err
		}
		created, err := s.boxes.CreateInstance(ctx, mysterybox.Instance{
			ID:           uuid.New().String(),
			CollectionID: box.ID,
			Seq:          seq,
			SubID:        edition.FormatSubID(seq),
			Owner:        caller.ID,
			Price:        box.Price,
			State:        mysterybox.StateUnopened,
			PurchasedAt:  s.now().UTC(),
		})
		if err != nil {
			return apperrors.Internal("create box instance", err)
		}
		inst = created
		return nil
	})
	if err != nil {
		return mysterybox.Instance{}, err
	}

	if _, err := s.trades.CreateTrade(ctx, trade.Record{
		ID:           uuid.New().String(),
		CollectionID: box.ID,
		SubID:        inst.SubID,
		Seller:       box.Owner,
		Buyer:        caller.ID,
		Price:        box.Price,
		Type:         trade.TypeBoxPurchase,
		Reference:    inst.ID,
		CreatedAt:    inst.PurchasedAt,
	}); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("instance_id", inst.ID).Warn("record box purchase trade failed")
	}
	s.log.WithContext(ctx).WithField("collection_id", box.ID).
		WithField("instance_id", inst.ID).
		WithField("buyer", caller.ID).
		Info("mystery box purchased")
	return inst, nil
}

// OpenBox opens an unopened instance owned by the caller: one pool item is
// drawn by weight and one edition of its target collection is transferred to
// the caller.
func (s *Service) OpenBox(ctx context.Context, caller Caller, req OpenBoxRequest) (result OpenResult, err error) {
	defer func(start time.Time) { observe("open_box", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return OpenResult{}, err
	}
	inst, err := s.loadInstance(ctx, req.InstanceID)
	if err != nil {
		return OpenResult{}, err
	}
	if inst.Owner != caller.ID {
		return OpenResult{}, apperrors.Unauthorized("box instance belongs to another user")
	}
	if inst.State != mysterybox.StateUnopened {
		return OpenResult{}, apperrors.AlreadyOpened(inst.ID)
	}

	claim := inst
	claim.State = mysterybox.StateOpening
	claim.ClaimedAt = s.now().UTC()
	claimed, err := s.boxes.TransitionInstance(ctx, claim, mysterybox.StateUnopened)
	if errors.Is(err, storage.ErrConditionFailed) {
		return OpenResult{}, apperrors.AlreadyOpened(inst.ID)
	}
	if err != nil {
		return OpenResult{}, apperrors.Internal("claim box instance", err)
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		revert := claimed
		revert.State = mysterybox.StateUnopened
		revert.ClaimedAt = time.Time{}
		if _, rerr := s.boxes.TransitionInstance(context.WithoutCancel(ctx), revert, mysterybox.StateOpening); rerr != nil {
			s.log.WithContext(ctx).WithError(rerr).WithField("instance_id", inst.ID).
				Error("revert box claim failed; sweeper will recover it")
		}
	}()

	box, err := s.loadCollection(ctx, inst.CollectionID)
	if err != nil {
		return OpenResult{}, err
	}

	err = s.withReservation(ctx, box.ID, ledger.FromPool(s.alloc.SelectPoolItem), func(res reservation.Reservation) error {
		target, e, err := s.award(ctx, box.Items[res.ItemIndex].CollectionID, caller.ID, box.Price, inst.ID)
		if err != nil {
			return err
		}
		// The transfer is committed from here on; the claim must not be reverted.
		finished = true

		opened := claimed
		opened.State = mysterybox.StateOpened
		opened.NFTReceived = target.ID
		opened.EditionReceived = e.SubID
		opened.OpenedAt = e.History[len(e.History)-1].Timestamp
		final, err := s.boxes.TransitionInstance(ctx, opened, mysterybox.StateOpening)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("instance_id", inst.ID).
				Error("finalize box instance failed; sweeper will settle it from the trade log")
			final = opened
		}
		result = OpenResult{Instance: final, Target: target, Edition: e}
		return nil
	})
	if err != nil {
		return OpenResult{}, err
	}

	s.log.WithContext(ctx).WithField("instance_id", inst.ID).
		WithField("target_collection_id", result.Target.ID).
		WithField("sub_id", result.Edition.SubID).
		Info("mystery box opened")
	return result, nil
}

// award transfers one edition of the target collection from its creator to
// the opener. The lowest-numbered edition still held by the creator is used;
// if none is left a new one is minted.
func (s *Service) award(ctx context.Context, targetID, to, price, reference string) (collection.Collection, edition.Edition, error) {
	target, err := s.loadCollection(ctx, targetID)
	if err != nil {
		return collection.Collection{}, edition.Edition{}, err
	}

	for attempt := 0; attempt < awardAttempts; attempt++ {
		candidate, err := s.freeEdition(ctx, target)
		if err != nil {
			return collection.Collection{}, edition.Edition{}, err
		}
		e, err := s.recorder.Transfer(ctx, recorder.Transfer{
			CollectionID: target.ID,
			SubID:        candidate.SubID,
			From:         target.Owner,
			To:           to,
			Price:        price,
			NewStatus:    edition.StatusSold,
			Type:         edition.TxBoxOpen,
			Reference:    reference,
		})
		if apperrors.HasCode(err, apperrors.CodeOwnershipMismatch) || apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
			// another open or sale took this edition first
			continue
		}
		if err != nil {
			return collection.Collection{}, edition.Edition{}, err
		}
		return target, e, nil
	}
	return collection.Collection{}, edition.Edition{}, apperrors.Conflict("target editions contended, retry", nil)
}

func (s *Service) freeEdition(ctx context.Context, target collection.Collection) (edition.Edition, error) {
	all, err := s.editions.ListEditions(ctx, target.ID)
	if err != nil {
		return edition.Edition{}, apperrors.Internal("list target editions", err)
	}
	for _, e := range all {
		if e.Owner != target.Owner {
			continue
		}
		switch e.Status {
		case edition.StatusUnlisted, edition.StatusLocked, edition.StatusPublished:
			return e, nil
		}
	}

	minted, err := s.ledger.MintEditions(ctx, target.ID, 1, func(int, string) edition.Edition {
		return edition.Edition{
			ID:     uuid.New().String(),
			Status: edition.StatusUnlisted,
			Owner:  target.Owner,
		}
	})
	if err != nil {
		return edition.Edition{}, err
	}
	s.log.WithContext(ctx).WithField("collection_id", target.ID).
		WithField("sub_id", minted[0].SubID).
		Info("minted edition for box open")
	return minted[0], nil
}

// MyBoxes lists the caller's box instances.
func (s *Service) MyBoxes(ctx context.Context, caller Caller) ([]mysterybox.Instance, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	out, err := s.boxes.ListInstancesByOwner(ctx, caller.ID)
	if err != nil {
		return nil, apperrors.Internal("list box instances", err)
	}
	return out, nil
}

// RecoverStaleClaims settles box instances stuck in the opening state since
// before cutoff. Instances whose open reached the trade log are finalized;
// the rest return to unopened.
func (s *Service) RecoverStaleClaims(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.boxes.ListStaleClaims(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, inst := range stale {
		next := inst
		rec, err := s.trades.FindTradeByReference(ctx, inst.ID)
		switch {
		case err == nil && rec.Type == edition.TxBoxOpen:
			next.State = mysterybox.StateOpened
			next.NFTReceived = rec.CollectionID
			next.EditionReceived = rec.SubID
			next.OpenedAt = rec.CreatedAt
		case err == nil || errors.Is(err, storage.ErrNotFound):
			next.State = mysterybox.StateUnopened
			next.ClaimedAt = time.Time{}
		default:
			s.log.WithError(err).WithField("instance_id", inst.ID).Warn("look up box open trade failed")
			continue
		}
		if _, err := s.boxes.TransitionInstance(ctx, next, mysterybox.StateOpening); err != nil {
			if !errors.Is(err, storage.ErrConditionFailed) {
				s.log.WithError(err).WithField("instance_id", inst.ID).Warn("recover box claim failed")
			}
			continue
		}
		recovered++
	}
	return recovered, nil
}
