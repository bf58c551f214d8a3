// Package allocation orchestrates the marketplace operations: purchase,
// publish, box purchase and open, airdrop and synthesis. Each operation
// checks preconditions, takes inventory through the ledger, commits the
// ownership change through the recorder and releases the reservation on any
// failure.
package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/mintline/edition_layer/internal/app/allocator"
	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/mysterybox"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/ledger"
	"github.com/mintline/edition_layer/internal/app/metrics"
	"github.com/mintline/edition_layer/internal/app/recorder"
	"github.com/mintline/edition_layer/internal/app/storage"
	apperrors "github.com/mintline/edition_layer/internal/errors"
	"github.com/mintline/edition_layer/pkg/logger"
)

// Stores groups the persistence the orchestrator reads directly.
type Stores struct {
	Collections storage.CollectionStore
	Editions    storage.EditionStore
	Boxes       storage.BoxStore
	Trades      storage.TradeStore
}

// Service is the allocation orchestrator.
type Service struct {
	collections storage.CollectionStore
	editions    storage.EditionStore
	boxes       storage.BoxStore
	trades      storage.TradeStore
	ledger      *ledger.Ledger
	recorder    *recorder.Recorder
	alloc       *allocator.Allocator
	log         *logger.Logger
	now         func() time.Time
}

// New constructs the orchestrator.
func New(stores Stores, l *ledger.Ledger, rec *recorder.Recorder, alloc *allocator.Allocator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("allocation")
	}
	if alloc == nil {
		alloc = allocator.New(0)
	}
	return &Service{
		collections: stores.Collections,
		editions:    stores.Editions,
		boxes:       stores.Boxes,
		trades:      stores.Trades,
		ledger:      l,
		recorder:    rec,
		alloc:       alloc,
		log:         log,
		now:         time.Now,
	}
}

// withReservation reserves one unit and commits it before fn writes anything,
// so fn never outlives its reservation. If fn fails or panics the unit is
// refunded. Ledger calls after the reservation run detached from ctx so a
// disconnecting caller cannot strand the unit.
func (s *Service) withReservation(ctx context.Context, collectionID string, sel ledger.Selector, fn func(res reservation.Reservation) error) error {
	res, err := s.ledger.ReserveOne(ctx, collectionID, sel)
	if err != nil {
		return err
	}

	detached := context.WithoutCancel(ctx)
	if err := s.ledger.Commit(detached, res); err != nil {
		if relErr := s.ledger.Release(detached, res); relErr != nil {
			s.log.WithContext(ctx).WithError(relErr).WithField("token", res.Token).
				Error("release reservation failed; sweeper will recover it")
		}
		return err
	}

	settled := false
	defer func() {
		if settled {
			return
		}
		if err := s.ledger.Refund(detached, res); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("token", res.Token).
				WithField("collection_id", collectionID).
				Error("refund committed unit failed")
		}
	}()

	if err := fn(res); err != nil {
		return err
	}
	settled = true
	return nil
}

func (s *Service) loadCollection(ctx context.Context, id string) (collection.Collection, error) {
	c, err := s.collections.GetCollection(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return collection.Collection{}, apperrors.NotFound("collection", id)
	}
	if err != nil {
		return collection.Collection{}, apperrors.Internal("load collection", err)
	}
	return c, nil
}

func (s *Service) loadEdition(ctx context.Context, collectionID, subID string) (edition.Edition, error) {
	e, err := s.editions.GetEdition(ctx, collectionID, subID)
	if errors.Is(err, storage.ErrNotFound) {
		return edition.Edition{}, apperrors.NotFound("edition", collectionID+"/"+subID)
	}
	if err != nil {
		return edition.Edition{}, apperrors.Internal("load edition", err)
	}
	return e, nil
}

func (s *Service) loadInstance(ctx context.Context, id string) (mysterybox.Instance, error) {
	inst, err := s.boxes.GetInstance(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return mysterybox.Instance{}, apperrors.NotFound("box instance", id)
	}
	if err != nil {
		return mysterybox.Instance{}, apperrors.Internal("load box instance", err)
	}
	return inst, nil
}

// updateEditions maps storage conflicts onto service errors.
func (s *Service) updateEditions(ctx context.Context, editions []edition.Edition) ([]edition.Edition, error) {
	updated, err := s.editions.UpdateEditions(ctx, editions)
	if errors.Is(err, storage.ErrConditionFailed) {
		return nil, apperrors.Conflict("editions changed concurrently, retry", err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("edition", "")
	}
	if err != nil {
		return nil, apperrors.Internal("update editions", err)
	}
	return updated, nil
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if se := apperrors.GetServiceError(err); se != nil {
			outcome = string(se.Code)
		}
	}
	metrics.RecordOperation(op, outcome, time.Since(start))
}

// priceOf is the price a buyer pays for the edition.
func priceOf(e edition.Edition, c collection.Collection) string {
	if e.Price != "" {
		return e.Price
	}
	return c.Price
}
