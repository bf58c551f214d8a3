package allocation

import (
	"context"
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/ledger"
	"github.com/mintline/edition_layer/internal/app/lifecycle"
	"github.com/mintline/edition_layer/internal/app/recorder"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// Purchase buys a consigned or published edition. The collection's sold
// quantity is reserved first and released again if the transfer fails.
func (s *Service) Purchase(ctx context.Context, caller Caller, req PurchaseRequest) (e edition.Edition, err error) {
	defer func(start time.Time) { observe("purchase", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return edition.Edition{}, err
	}
	c, err := s.loadCollection(ctx, req.CollectionID)
	if err != nil {
		return edition.Edition{}, err
	}
	if c.Kind != collection.KindNFT {
		return edition.Edition{}, apperrors.Validation("mystery boxes are bought through the box endpoint")
	}
	current, err := s.loadEdition(ctx, req.CollectionID, req.SubID)
	if err != nil {
		return edition.Edition{}, err
	}

	switch current.Status {
	case edition.StatusPublished:
		if !c.Status.Purchasable() {
			return edition.Edition{}, apperrors.NotPublished("collection is not on sale")
		}
	case edition.StatusConsigned:
		if c.Status == collection.StatusDelisted {
			return edition.Edition{}, apperrors.NotPublished("collection is delisted")
		}
	default:
		return edition.Edition{}, apperrors.NotPublished("edition is not listed for sale")
	}
	if current.Owner == caller.ID {
		return edition.Edition{}, apperrors.SelfTransaction()
	}

	price := priceOf(current, c)
	err = s.withReservation(ctx, c.ID, ledger.Supply(), func(reservation.Reservation) error {
		var txErr error
		e, txErr = s.recorder.Transfer(ctx, recorder.Transfer{
			CollectionID: c.ID,
			SubID:        current.SubID,
			From:         current.Owner,
			To:           caller.ID,
			Price:        price,
			NewStatus:    edition.StatusSold,
			Type:         edition.TxPurchase,
		})
		return txErr
	})
	if err != nil {
		return edition.Edition{}, err
	}

	s.log.WithContext(ctx).WithField("collection_id", c.ID).
		WithField("sub_id", e.SubID).
		WithField("seller", current.Owner).
		WithField("buyer", caller.ID).
		Info("edition purchased")
	return e, nil
}

// Consign lists an owned edition at a price.
func (s *Service) Consign(ctx context.Context, caller Caller, req ConsignRequest) (e edition.Edition, err error) {
	defer func(start time.Time) { observe("consign", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return edition.Edition{}, err
	}
	if err := req.Validate(); err != nil {
		return edition.Edition{}, err
	}
	current, err := s.loadEdition(ctx, req.CollectionID, req.SubID)
	if err != nil {
		return edition.Edition{}, err
	}
	if current.Owner != caller.ID && !caller.IsAdmin() {
		return edition.Edition{}, apperrors.OwnershipMismatch("only the owner may consign an edition")
	}
	if !lifecycle.CanTransition(current.Status, edition.StatusConsigned) {
		return edition.Edition{}, apperrors.InvalidTransition(
			lifecycle.EditionLabel(current.Status), lifecycle.EditionLabel(edition.StatusConsigned))
	}

	next := current.Clone()
	next.Status = edition.StatusConsigned
	next.Price = req.Price
	updated, err := s.updateEditions(ctx, []edition.Edition{next})
	if err != nil {
		return edition.Edition{}, err
	}
	return updated[0], nil
}

// Publish moves editions owned by the collection owner to published.
func (s *Service) Publish(ctx context.Context, caller Caller, req PublishRequest) (out []edition.Edition, err error) {
	defer func(start time.Time) { observe("publish", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := s.loadCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}
	if err := caller.authorizeCollection(c); err != nil {
		return nil, err
	}

	var targets []edition.Edition
	if len(req.SubIDs) == 0 {
		all, err := s.editions.ListEditions(ctx, c.ID)
		if err != nil {
			return nil, apperrors.Internal("list editions", err)
		}
		for _, e := range all {
			if e.Owner == c.Owner && lifecycle.CanTransition(e.Status, edition.StatusPublished) {
				targets = append(targets, e)
			}
		}
	} else {
		for _, subID := range req.SubIDs {
			e, err := s.loadEdition(ctx, c.ID, subID)
			if err != nil {
				return nil, err
			}
			if e.Owner != c.Owner {
				return nil, apperrors.OwnershipMismatch("edition " + subID + " is no longer held by the collection owner")
			}
			if !lifecycle.CanTransition(e.Status, edition.StatusPublished) {
				return nil, apperrors.InvalidTransition(
					lifecycle.EditionLabel(e.Status), lifecycle.EditionLabel(edition.StatusPublished))
			}
			targets = append(targets, e)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	price := req.Price
	if price == "" {
		price = c.Price
	}
	for i := range targets {
		targets[i] = targets[i].Clone()
		targets[i].Status = edition.StatusPublished
		targets[i].Price = price
	}
	out, err = s.updateEditions(ctx, targets)
	if err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).WithField("collection_id", c.ID).WithField("count", len(out)).Info("editions published")
	return out, nil
}

// Transfer moves an edition to another owner outside of a sale.
func (s *Service) Transfer(ctx context.Context, caller Caller, req TransferRequest) (e edition.Edition, err error) {
	defer func(start time.Time) { observe("transfer", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return edition.Edition{}, err
	}
	if err := req.Validate(); err != nil {
		return edition.Edition{}, err
	}
	c, err := s.loadCollection(ctx, req.CollectionID)
	if err != nil {
		return edition.Edition{}, err
	}
	if err := caller.authorizeCollection(c); err != nil {
		return edition.Edition{}, err
	}
	current, err := s.loadEdition(ctx, req.CollectionID, req.SubID)
	if err != nil {
		return edition.Edition{}, err
	}

	return s.recorder.Transfer(ctx, recorder.Transfer{
		CollectionID: c.ID,
		SubID:        current.SubID,
		From:         current.Owner,
		To:           req.To,
		NewStatus:    req.Status,
		Type:         edition.TxTransfer,
	})
}
