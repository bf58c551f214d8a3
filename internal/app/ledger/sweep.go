package ledger

import (
	"context"

	"github.com/mintline/edition_layer/internal/app/metrics"
)

// SweepExpired releases every reservation past its deadline and returns how
// many were returned to the pool.
func (l *Ledger) SweepExpired(ctx context.Context) (int, error) {
	expired, err := l.reservations.ListExpiredReservations(ctx, l.now().UTC())
	if err != nil {
		return 0, err
	}

	released := 0
	for _, res := range expired {
		var restored bool
		err := l.do(ctx, res.CollectionID, func(ctx context.Context) error {
			var err error
			restored, err = l.release(ctx, res.Token)
			return err
		})
		if err != nil {
			l.log.WithError(err).WithField("token", res.Token).Warn("failed to release expired reservation")
			continue
		}
		if restored {
			released++
		}
	}
	if released > 0 {
		l.log.WithField("released", released).Info("returned expired reservations to the pool")
	}
	metrics.RecordSweep("reservations", released)
	return released, nil
}
