package allocation

import (
	"context"

	"github.com/mintline/edition_layer/internal/app/domain/trade"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// MyPurchases lists trades where the caller bought, newest first.
func (s *Service) MyPurchases(ctx context.Context, caller Caller) ([]trade.Record, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	out, err := s.trades.ListTradesByBuyer(ctx, caller.ID)
	if err != nil {
		return nil, apperrors.Internal("list purchases", err)
	}
	return out, nil
}

// MySales lists trades where the caller sold, newest first.
func (s *Service) MySales(ctx context.Context, caller Caller) ([]trade.Record, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	out, err := s.trades.ListTradesBySeller(ctx, caller.ID)
	if err != nil {
		return nil, apperrors.Internal("list sales", err)
	}
	return out, nil
}
