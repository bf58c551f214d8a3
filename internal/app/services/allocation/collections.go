package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/lifecycle"
	"github.com/mintline/edition_layer/internal/app/storage"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

const cascadeAttempts = 3

// CreateCollection stores a new collection in draft status. NFT collections
// get editions 001..N owned by the creator; mystery boxes get their pool.
func (s *Service) CreateCollection(ctx context.Context, caller Caller, req CreateCollectionRequest) (c collection.Collection, err error) {
	defer func(start time.Time) { observe("create_collection", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return collection.Collection{}, err
	}
	if caller.Role != RoleAdmin && caller.Role != RoleOwner {
		return collection.Collection{}, apperrors.Unauthorized("only creators may create collections")
	}
	if err := req.Validate(); err != nil {
		return collection.Collection{}, err
	}

	owner := caller.ID
	if caller.IsAdmin() && req.Owner != "" {
		owner = req.Owner
	}

	c = collection.Collection{
		ID:            uuid.New().String(),
		Kind:          req.Kind,
		Name:          req.Name,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		Author:        req.Author,
		Price:         req.Price,
		Owner:         owner,
		TotalQuantity: req.TotalQuantity,
		OpenLimit:     req.OpenLimit,
		Status:        collection.StatusDraft,
	}

	var editions []edition.Edition
	switch req.Kind {
	case collection.KindNFT:
		editions = make([]edition.Edition, 0, req.TotalQuantity)
		for seq := 1; seq <= req.TotalQuantity; seq++ {
			editions = append(editions, edition.Edition{
				ID:           uuid.New().String(),
				CollectionID: c.ID,
				Seq:          seq,
				SubID:        edition.FormatSubID(seq),
				Status:       edition.StatusUnlisted,
				Owner:        owner,
			})
		}
		c.LastSeq = req.TotalQuantity
	case collection.KindMysteryBox:
		pledged := make(map[string]int, len(req.Items))
		for _, it := range req.Items {
			target, err := s.loadCollection(ctx, it.CollectionID)
			if err != nil {
				return collection.Collection{}, err
			}
			if target.Kind != collection.KindNFT {
				return collection.Collection{}, apperrors.Validation("box items must reference NFT collections")
			}
			// Opens may mint past this if the target sells out afterwards.
			pledged[target.ID] += it.Quantity
			if pledged[target.ID] > target.Remaining() {
				return collection.Collection{}, apperrors.Validation("box item quantity exceeds the target's remaining supply").
					WithDetails("collection_id", target.ID).
					WithDetails("remaining", target.Remaining())
			}
			c.Items = append(c.Items, collection.PoolItem{
				CollectionID:      it.CollectionID,
				Weight:            it.Weight,
				Quantity:          it.Quantity,
				RemainingQuantity: it.Quantity,
			})
		}
	}

	created, err := s.collections.CreateCollection(ctx, c, editions)
	if err != nil {
		return collection.Collection{}, apperrors.Internal("create collection", err)
	}
	s.log.WithContext(ctx).WithField("collection_id", created.ID).
		WithField("kind", lifecycle.KindLabel(created.Kind)).
		WithField("owner", created.Owner).
		Info("collection created")
	return created, nil
}

// GetCollection returns a collection by id.
func (s *Service) GetCollection(ctx context.Context, id string) (collection.Collection, error) {
	return s.loadCollection(ctx, id)
}

// ListCollections returns all collections.
func (s *Service) ListCollections(ctx context.Context) ([]collection.Collection, error) {
	out, err := s.collections.ListCollections(ctx)
	if err != nil {
		return nil, apperrors.Internal("list collections", err)
	}
	return out, nil
}

// ListEditions returns a collection's editions in sequence order. With
// availableOnly set only consigned and published editions are returned.
func (s *Service) ListEditions(ctx context.Context, collectionID string, availableOnly bool) ([]edition.Edition, error) {
	if _, err := s.loadCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	all, err := s.editions.ListEditions(ctx, collectionID)
	if err != nil {
		return nil, apperrors.Internal("list editions", err)
	}
	if !availableOnly {
		return all, nil
	}
	out := all[:0]
	for _, e := range all {
		if e.Status == edition.StatusConsigned || e.Status == edition.StatusPublished {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetEdition returns one edition.
func (s *Service) GetEdition(ctx context.Context, collectionID, subID string) (edition.Edition, error) {
	return s.loadEdition(ctx, collectionID, subID)
}

// SetCollectionStatus changes the collection status and applies the edition
// cascade in the same write. The snapshot, plan and write run on the
// collection's ledger actor so no edition can be minted in between; an
// edition changed by another process aborts the write and it is retried
// against a fresh snapshot.
func (s *Service) SetCollectionStatus(ctx context.Context, caller Caller, req SetStatusRequest) (c collection.Collection, err error) {
	defer func(start time.Time) { observe("set_status", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return collection.Collection{}, err
	}
	if err := req.Validate(); err != nil {
		return collection.Collection{}, err
	}
	current, err := s.loadCollection(ctx, req.CollectionID)
	if err != nil {
		return collection.Collection{}, err
	}
	if err := caller.authorizeCollection(current); err != nil {
		return collection.Collection{}, err
	}

	var (
		updated  collection.Collection
		cascaded int
	)
	err = s.ledger.Exclusive(ctx, req.CollectionID, func(ctx context.Context) error {
		for attempt := 0; attempt < cascadeAttempts; attempt++ {
			editions, err := s.editions.ListEditions(ctx, req.CollectionID)
			if err != nil {
				return apperrors.Internal("list editions", err)
			}
			cascade := lifecycle.PlanCascade(req.Status, editions)

			updated, err = s.collections.SetCollectionStatus(ctx, req.CollectionID, req.Status, cascade)
			if errors.Is(err, storage.ErrConditionFailed) {
				continue
			}
			if err != nil {
				return apperrors.Internal("set collection status", err)
			}
			cascaded = len(cascade)
			return nil
		}
		return apperrors.Conflict("editions changed during status change, retry", nil)
	})
	if err != nil {
		return collection.Collection{}, err
	}
	s.log.WithContext(ctx).WithField("collection_id", req.CollectionID).
		WithField("status", lifecycle.CollectionLabel(req.Status)).
		WithField("cascaded", cascaded).
		Info("collection status changed")
	return updated, nil
}
