package allocation

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mintline/edition_layer/internal/app/ledger"
	"github.com/mintline/edition_layer/internal/app/metrics"
	"github.com/mintline/edition_layer/internal/app/system"
	"github.com/mintline/edition_layer/pkg/logger"
)

// DefaultSweepSchedule runs the sweeper every thirty seconds.
const DefaultSweepSchedule = "@every 30s"

// Sweeper returns orphaned reservations to the pool and settles box opens
// abandoned mid-flight.
type Sweeper struct {
	service  *Service
	ledger   *ledger.Ledger
	schedule string
	// claimTimeout is how long an opening claim may stay unresolved.
	claimTimeout time.Duration
	log          *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper builds a sweeper. Claims older than twice the reservation TTL
// are recovered.
func NewSweeper(service *Service, l *ledger.Ledger, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("allocation-sweeper")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		service:      service,
		ledger:       l,
		schedule:     schedule,
		claimTimeout: 2 * l.TTL(),
		log:          log,
	}
}

func (s *Sweeper) Name() string { return "allocation-sweeper" }

func (s *Sweeper) Descriptor() system.Descriptor {
	return system.Descriptor{Name: s.Name(), Domain: "allocation"}.
		WithCapabilities("expired-reservations", "stale-box-claims")
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(s.log.Entry())),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.log.Entry()))),
	)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(runCtx) }); err != nil {
		cancel()
		return err
	}
	s.cron, s.cancel = c, cancel
	s.running = true
	c.Start()

	s.log.WithField("schedule", s.schedule).Info("allocation sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	if _, err := s.ledger.SweepExpired(ctx); err != nil {
		s.log.WithError(err).Warn("sweep expired reservations failed")
	}

	cutoff := time.Now().UTC().Add(-s.claimTimeout)
	n, err := s.service.RecoverStaleClaims(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Warn("recover stale box claims failed")
		return
	}
	if n > 0 {
		s.log.WithField("recovered", n).Info("recovered stale box claims")
	}
	metrics.RecordSweep("box_claims", n)
}
