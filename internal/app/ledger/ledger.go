// Package ledger is the sole writer of collection inventory counters. Every
// operation on a collection runs on that collection's actor goroutine, and
// every counter change is a conditional write in storage, so the counters
// stay within bounds across goroutines and across processes sharing a
// database.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mintline/edition_layer/internal/app/storage"
	"github.com/mintline/edition_layer/internal/app/system"
	"github.com/mintline/edition_layer/pkg/logger"
)

// DefaultReservationTTL bounds how long an uncommitted reservation holds stock.
const DefaultReservationTTL = 2 * time.Minute

// DefaultIdleTimeout is how long an actor waits for work before it retires.
const DefaultIdleTimeout = 5 * time.Minute

// maxAttempts bounds conditional-write retries against concurrent writers in
// other processes.
const maxAttempts = 8

// ErrClosed is returned once the ledger has been stopped.
var ErrClosed = errors.New("ledger: closed")

// Ledger serializes inventory operations per collection.
type Ledger struct {
	collections  storage.CollectionStore
	editions     storage.EditionStore
	reservations storage.ReservationStore
	ttl          time.Duration
	idle         time.Duration
	log          *logger.Logger
	now          func() time.Time

	mu     sync.Mutex
	actors map[string]*actor
	quit   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

type actor struct {
	jobs chan func()
	// done is closed once the actor has retired and accepts no more jobs.
	done chan struct{}
}

var _ system.Service = (*Ledger)(nil)

// New creates a ledger. A non-positive ttl selects DefaultReservationTTL.
func New(collections storage.CollectionStore, editions storage.EditionStore, reservations storage.ReservationStore, ttl time.Duration, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.NewDefault("inventory-ledger")
	}
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Ledger{
		collections:  collections,
		editions:     editions,
		reservations: reservations,
		ttl:          ttl,
		idle:         DefaultIdleTimeout,
		log:          log,
		now:          time.Now,
		actors:       make(map[string]*actor),
		quit:         make(chan struct{}),
	}
}

func (l *Ledger) Name() string { return "inventory-ledger" }

func (l *Ledger) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:         l.Name(),
		Domain:       "inventory",
		Capabilities: []string{"reserve", "commit", "release", "refund", "mint", "sweep"},
	}
}

// TTL returns the reservation lifetime.
func (l *Ledger) TTL() time.Duration { return l.ttl }

func (l *Ledger) Start(ctx context.Context) error { return nil }

// Stop terminates all actors. Jobs already accepted finish first.
func (l *Ledger) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.quit)
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Ledger) actorFor(collectionID string) (*actor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	a, ok := l.actors[collectionID]
	if !ok {
		a = &actor{jobs: make(chan func()), done: make(chan struct{})}
		l.actors[collectionID] = a
		l.wg.Add(1)
		go l.run(collectionID, a)
	}
	return a, nil
}

func (l *Ledger) run(collectionID string, a *actor) {
	defer l.wg.Done()

	idle := time.NewTimer(l.idle)
	defer idle.Stop()
	for {
		select {
		case job := <-a.jobs:
			job()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(l.idle)
		case <-idle.C:
			l.retire(collectionID, a)
			return
		case <-l.quit:
			return
		}
	}
}

// retire removes an idle actor. Callers still holding it see done closed and
// start a fresh one.
func (l *Ledger) retire(collectionID string, a *actor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.actors[collectionID] == a {
		delete(l.actors, collectionID)
	}
	close(a.done)
}

// Exclusive runs fn on the collection's actor, serialized with every
// reservation and mint for that collection. fn must not call back into the
// ledger for the same collection.
func (l *Ledger) Exclusive(ctx context.Context, collectionID string, fn func(ctx context.Context) error) error {
	return l.do(ctx, collectionID, fn)
}

// do runs fn on the collection's actor and waits for its result. Once the
// actor has accepted the job the caller always receives its outcome; a
// context cancelled before execution starts skips fn.
func (l *Ledger) do(ctx context.Context, collectionID string, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	job := func() {
		defer func() {
			if p := recover(); p != nil {
				reply <- fmt.Errorf("ledger job panicked: %v", p)
			}
		}()
		if err := ctx.Err(); err != nil {
			reply <- err
			return
		}
		reply <- fn(ctx)
	}

	for {
		a, err := l.actorFor(collectionID)
		if err != nil {
			return err
		}
		select {
		case a.jobs <- job:
			return <-reply
		case <-a.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return ErrClosed
		}
	}
}
