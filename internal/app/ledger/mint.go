package ledger

import (
	"context"
	"errors"

	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/storage"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// EditionBuilder produces the edition for a freshly assigned sequence.
type EditionBuilder func(seq int, subID string) edition.Edition

// AllocateSequence hands out n consecutive sequence numbers for the
// collection. Numbers are never reused, even if the caller later fails.
func (l *Ledger) AllocateSequence(ctx context.Context, collectionID string, n int) (int, error) {
	var first int
	err := l.do(ctx, collectionID, func(ctx context.Context) error {
		var err error
		first, err = l.advance(ctx, collectionID, n)
		return err
	})
	return first, err
}

// MintEditions creates n new editions with fresh sequence numbers.
func (l *Ledger) MintEditions(ctx context.Context, collectionID string, n int, build EditionBuilder) ([]edition.Edition, error) {
	var minted []edition.Edition
	err := l.do(ctx, collectionID, func(ctx context.Context) error {
		first, err := l.advance(ctx, collectionID, n)
		if err != nil {
			return err
		}
		minted = make([]edition.Edition, 0, n)
		for seq := first; seq < first+n; seq++ {
			e := build(seq, edition.FormatSubID(seq))
			e.CollectionID = collectionID
			e.Seq = seq
			e.SubID = edition.FormatSubID(seq)
			minted = append(minted, e)
		}
		if err := l.editions.InsertEditions(ctx, minted); err != nil {
			return apperrors.Internal("insert editions", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

func (l *Ledger) advance(ctx context.Context, collectionID string, n int) (int, error) {
	if n <= 0 {
		return 0, apperrors.Validation("count must be positive")
	}
	first, err := l.collections.AdvanceSequence(ctx, collectionID, n)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, apperrors.NotFound("collection", collectionID)
	}
	if err != nil {
		return 0, apperrors.Internal("advance sequence", err)
	}
	return first, nil
}
