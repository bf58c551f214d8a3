package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/lifecycle"
	"github.com/mintline/edition_layer/internal/app/recorder"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// AirdropDelivery is one successful airdrop transfer.
type AirdropDelivery struct {
	Recipient string
	Edition   edition.Edition
}

// AirdropFailure is one transfer that failed after eligibility passed.
type AirdropFailure struct {
	Recipient string
	SubID     string
	Err       error
}

// AirdropReport lists per-recipient outcomes.
type AirdropReport struct {
	CollectionID string
	Delivered    []AirdropDelivery
	Failed       []AirdropFailure
}

// Partial reports whether some transfers failed.
func (r AirdropReport) Partial() bool { return len(r.Failed) > 0 }

func airdropEligible(c collection.Collection, e edition.Edition) bool {
	if e.Owner != c.Owner {
		return false
	}
	switch e.Status {
	case edition.StatusUnlisted, edition.StatusLocked, edition.StatusPublished:
		return true
	}
	return false
}

// Airdrop gives one edition to each recipient. Eligibility of the whole batch
// is checked before any transfer; if it fails nothing is sent. Transfers that
// fail afterwards are reported individually.
func (s *Service) Airdrop(ctx context.Context, caller Caller, req AirdropRequest) (report AirdropReport, err error) {
	defer func(start time.Time) { observe("airdrop", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return AirdropReport{}, err
	}
	if err := req.Validate(); err != nil {
		return AirdropReport{}, err
	}
	c, err := s.loadCollection(ctx, req.CollectionID)
	if err != nil {
		return AirdropReport{}, err
	}
	if err := caller.authorizeCollection(c); err != nil {
		return AirdropReport{}, err
	}
	if c.Kind != collection.KindNFT {
		return AirdropReport{}, apperrors.Validation("only NFT collections can be airdropped")
	}

	var picked []edition.Edition
	if len(req.SubIDs) > 0 {
		for _, subID := range req.SubIDs {
			e, err := s.loadEdition(ctx, c.ID, subID)
			if err != nil {
				return AirdropReport{}, err
			}
			if e.Owner != c.Owner {
				return AirdropReport{}, apperrors.OwnershipMismatch("edition " + subID + " is not held by the collection owner")
			}
			if !airdropEligible(c, e) {
				return AirdropReport{}, apperrors.InvalidTransition(
					lifecycle.EditionLabel(e.Status), lifecycle.EditionLabel(edition.StatusAirdropped))
			}
			picked = append(picked, e)
		}
	} else {
		all, err := s.editions.ListEditions(ctx, c.ID)
		if err != nil {
			return AirdropReport{}, apperrors.Internal("list editions", err)
		}
		for _, e := range all {
			if len(picked) == len(req.Recipients) {
				break
			}
			if airdropEligible(c, e) {
				picked = append(picked, e)
			}
		}
		if len(picked) < len(req.Recipients) {
			return AirdropReport{}, apperrors.OutOfStock(c.ID).
				WithDetails("eligible", len(picked)).
				WithDetails("requested", len(req.Recipients))
		}
	}

	report = AirdropReport{CollectionID: c.ID}
	for i, rcpt := range req.Recipients {
		e, err := s.recorder.Transfer(ctx, recorder.Transfer{
			CollectionID: c.ID,
			SubID:        picked[i].SubID,
			From:         c.Owner,
			To:           rcpt,
			Price:        "0",
			NewStatus:    edition.StatusAirdropped,
			Type:         edition.TxAirdrop,
		})
		if err != nil {
			report.Failed = append(report.Failed, AirdropFailure{Recipient: rcpt, SubID: picked[i].SubID, Err: err})
			continue
		}
		report.Delivered = append(report.Delivered, AirdropDelivery{Recipient: rcpt, Edition: e})
	}

	entry := s.log.WithContext(ctx).WithField("collection_id", c.ID).
		WithField("delivered", len(report.Delivered)).
		WithField("failed", len(report.Failed))
	if report.Partial() {
		entry.Warn("airdrop partially delivered")
	} else {
		entry.Info("airdrop delivered")
	}
	return report, nil
}

// Synthesize mints new editions with fresh sequence numbers. Admin only.
func (s *Service) Synthesize(ctx context.Context, caller Caller, req SynthesizeRequest) (out []edition.Edition, err error) {
	defer func(start time.Time) { observe("synthesize", start, err) }(time.Now())

	if err := caller.validate(); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, apperrors.Unauthorized("synthesis is restricted to administrators")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := s.loadCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}
	if c.Kind != collection.KindNFT {
		return nil, apperrors.Validation("only NFT collections can be synthesized into")
	}

	owner := req.Owner
	if owner == "" {
		owner = c.Owner
	}
	out, err = s.ledger.MintEditions(ctx, c.ID, req.Count, func(int, string) edition.Edition {
		return edition.Edition{
			ID:     uuid.New().String(),
			Status: edition.StatusSynthesized,
			Owner:  owner,
			Price:  req.Price,
		}
	})
	if err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).WithField("collection_id", c.ID).
		WithField("count", len(out)).
		WithField("first_sub_id", out[0].SubID).
		Info("editions synthesized")
	return out, nil
}
