// Package recorder commits ownership changes. A transfer sets the new owner,
// status and price of an edition and appends exactly one history entry in a
// single conditional write.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/trade"
	"github.com/mintline/edition_layer/internal/app/lifecycle"
	"github.com/mintline/edition_layer/internal/app/storage"
	apperrors "github.com/mintline/edition_layer/internal/errors"
	"github.com/mintline/edition_layer/pkg/logger"
)

// Transfer describes one ownership change.
type Transfer struct {
	CollectionID string
	SubID        string
	From         string
	To           string
	Price        string
	NewStatus    edition.Status
	Type         edition.TxType
	// Reference ties the resulting trade record to its cause, e.g. a box instance.
	Reference string
}

// Recorder applies transfers.
type Recorder struct {
	editions  storage.EditionStore
	transfers storage.TransferStore
	log       *logger.Logger
	now       func() time.Time
}

// New creates a recorder.
func New(editions storage.EditionStore, transfers storage.TransferStore, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.NewDefault("recorder")
	}
	return &Recorder{editions: editions, transfers: transfers, log: log, now: time.Now}
}

// Transfer moves the edition from req.From to req.To. The edition is left
// unchanged on any error.
func (r *Recorder) Transfer(ctx context.Context, req Transfer) (edition.Edition, error) {
	if req.From == "" || req.To == "" {
		return edition.Edition{}, apperrors.Validation("transfer requires both parties")
	}
	if req.Type.PeerToPeer() && req.From == req.To {
		return edition.Edition{}, apperrors.SelfTransaction()
	}

	current, err := r.editions.GetEdition(ctx, req.CollectionID, req.SubID)
	if errors.Is(err, storage.ErrNotFound) {
		return edition.Edition{}, apperrors.NotFound("edition", req.CollectionID+"/"+req.SubID)
	}
	if err != nil {
		return edition.Edition{}, apperrors.Internal("load edition", err)
	}

	if current.Owner != req.From {
		return edition.Edition{}, apperrors.OwnershipMismatch("edition is not owned by the sender")
	}
	if !lifecycle.CanTransition(current.Status, req.NewStatus) {
		return edition.Edition{}, apperrors.InvalidTransition(
			lifecycle.EditionLabel(current.Status), lifecycle.EditionLabel(req.NewStatus))
	}

	ts := r.now().UTC()
	if last, ok := current.LastEntry(); ok && ts.Before(last.Timestamp) {
		ts = last.Timestamp
	}

	next := current.Clone()
	next.Owner = req.To
	next.Status = req.NewStatus
	next.Price = ""
	next.History = append(next.History, edition.HistoryEntry{
		Timestamp: ts,
		From:      req.From,
		To:        req.To,
		Price:     req.Price,
		Type:      req.Type,
	})

	var rec *trade.Record
	if req.Type != edition.TxTransfer {
		rec = &trade.Record{
			ID:           uuid.New().String(),
			CollectionID: req.CollectionID,
			SubID:        req.SubID,
			Seller:       req.From,
			Buyer:        req.To,
			Price:        req.Price,
			Type:         req.Type,
			Reference:    req.Reference,
			CreatedAt:    ts,
		}
	}

	committed, err := r.transfers.CommitTransfer(ctx, next, rec)
	if errors.Is(err, storage.ErrConditionFailed) {
		return edition.Edition{}, apperrors.OwnershipMismatch("edition changed concurrently")
	}
	if err != nil {
		return edition.Edition{}, apperrors.Internal("commit transfer", err)
	}

	r.log.WithContext(ctx).WithFields(map[string]interface{}{
		"collection_id": req.CollectionID,
		"sub_id":        req.SubID,
		"from":          req.From,
		"to":            req.To,
		"type":          string(req.Type),
	}).Debug("transfer recorded")
	return committed, nil
}
