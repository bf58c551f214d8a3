package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/mysterybox"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/domain/trade"
	"github.com/mintline/edition_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	collections  map[string]collection.Collection
	editions     map[string]map[string]edition.Edition
	instances    map[string]mysterybox.Instance
	trades       []trade.Record
	reservations map[string]reservation.Reservation
	fault        func(op string) error
}

var _ storage.CollectionStore = (*Store)(nil)
var _ storage.EditionStore = (*Store)(nil)
var _ storage.TransferStore = (*Store)(nil)
var _ storage.BoxStore = (*Store)(nil)
var _ storage.TradeStore = (*Store)(nil)
var _ storage.ReservationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		collections:  make(map[string]collection.Collection),
		editions:     make(map[string]map[string]edition.Edition),
		instances:    make(map[string]mysterybox.Instance),
		reservations: make(map[string]reservation.Reservation),
	}
}

// SetFault installs a hook consulted before multi-record writes are applied.
// A non-nil error aborts the write with nothing changed. Passing nil removes
// the hook.
func (s *Store) SetFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) faultLocked(op string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op)
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// CollectionStore implementation ----------------------------------------------

func (s *Store) CreateCollection(_ context.Context, c collection.Collection, editions []edition.Edition) (collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = s.nextIDLocked()
	} else if _, exists := s.collections[c.ID]; exists {
		return collection.Collection{}, storage.ErrAlreadyExists
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	byID := make(map[string]edition.Edition, len(editions))
	for _, e := range editions {
		e = e.Clone()
		e.CollectionID = c.ID
		if e.ID == "" {
			e.ID = s.nextIDLocked()
		}
		e.CreatedAt, e.UpdatedAt = now, now
		byID[e.SubID] = e
	}

	s.collections[c.ID] = c.Clone()
	s.editions[c.ID] = byID
	return c.Clone(), nil
}

func (s *Store) GetCollection(_ context.Context, id string) (collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[id]
	if !ok {
		return collection.Collection{}, storage.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) ListCollections(_ context.Context) ([]collection.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]collection.Collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) IncrementSold(_ context.Context, id string) (collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return collection.Collection{}, storage.ErrNotFound
	}
	if c.SoldQuantity >= c.TotalQuantity {
		return collection.Collection{}, storage.ErrConditionFailed
	}
	c.SoldQuantity++
	c.UpdatedAt = time.Now().UTC()
	s.collections[id] = c
	return c.Clone(), nil
}

func (s *Store) DecrementSold(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return storage.ErrNotFound
	}
	if c.SoldQuantity <= 0 {
		return storage.ErrConditionFailed
	}
	c.SoldQuantity--
	c.UpdatedAt = time.Now().UTC()
	s.collections[id] = c
	return nil
}

func (s *Store) IncrementOpened(_ context.Context, id string, itemIndex int) (collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return collection.Collection{}, storage.ErrNotFound
	}
	if itemIndex < 0 || itemIndex >= len(c.Items) {
		return collection.Collection{}, storage.ErrConditionFailed
	}
	if c.OpenLimitReached() || c.Items[itemIndex].RemainingQuantity <= 0 {
		return collection.Collection{}, storage.ErrConditionFailed
	}
	c = c.Clone()
	c.Items[itemIndex].RemainingQuantity--
	c.OpenedCount++
	c.UpdatedAt = time.Now().UTC()
	s.collections[id] = c
	return c.Clone(), nil
}

func (s *Store) DecrementOpened(_ context.Context, id string, itemIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return storage.ErrNotFound
	}
	if itemIndex < 0 || itemIndex >= len(c.Items) || c.OpenedCount <= 0 {
		return storage.ErrConditionFailed
	}
	if c.Items[itemIndex].RemainingQuantity >= c.Items[itemIndex].Quantity {
		return storage.ErrConditionFailed
	}
	c = c.Clone()
	c.Items[itemIndex].RemainingQuantity++
	c.OpenedCount--
	c.UpdatedAt = time.Now().UTC()
	s.collections[id] = c
	return nil
}

func (s *Store) AdvanceSequence(_ context.Context, id string, n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if n <= 0 {
		return 0, fmt.Errorf("advance sequence: n must be positive, got %d", n)
	}
	first := c.LastSeq + 1
	c.LastSeq += n
	s.collections[id] = c
	return first, nil
}

func (s *Store) SetCollectionStatus(_ context.Context, id string, status collection.Status, cascade []edition.Edition) (collection.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return collection.Collection{}, storage.ErrNotFound
	}

	now := time.Now().UTC()
	staged, err := s.stageEditionsLocked(id, cascade, now, "cascade")
	if err != nil {
		return collection.Collection{}, err
	}
	if err := s.faultLocked("set_collection_status"); err != nil {
		return collection.Collection{}, err
	}

	for _, e := range staged {
		s.editions[id][e.SubID] = e
	}
	c.Status = status
	c.UpdatedAt = now
	s.collections[id] = c
	return c.Clone(), nil
}

// stageEditionsLocked validates and prepares writes without applying them.
func (s *Store) stageEditionsLocked(collectionID string, updates []edition.Edition, now time.Time, op string) ([]edition.Edition, error) {
	staged := make([]edition.Edition, 0, len(updates))
	for _, e := range updates {
		if e.CollectionID != "" && e.CollectionID != collectionID {
			return nil, fmt.Errorf("edition %s belongs to collection %s", e.SubID, e.CollectionID)
		}
		current, ok := s.editions[collectionID][e.SubID]
		if !ok {
			return nil, storage.ErrNotFound
		}
		if current.Version != e.Version || len(e.History) < len(current.History) {
			return nil, storage.ErrConditionFailed
		}
		if err := s.faultLocked(op); err != nil {
			return nil, err
		}
		next := e.Clone()
		next.ID = current.ID
		next.CollectionID = collectionID
		next.CreatedAt = current.CreatedAt
		next.Version = current.Version + 1
		next.UpdatedAt = now
		staged = append(staged, next)
	}
	return staged, nil
}

// EditionStore implementation -------------------------------------------------

func (s *Store) InsertEditions(_ context.Context, editions []edition.Edition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range editions {
		if _, ok := s.collections[e.CollectionID]; !ok {
			return storage.ErrNotFound
		}
		if _, exists := s.editions[e.CollectionID][e.SubID]; exists {
			return storage.ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	for _, e := range editions {
		e = e.Clone()
		if e.ID == "" {
			e.ID = s.nextIDLocked()
		}
		e.CreatedAt, e.UpdatedAt = now, now
		if s.editions[e.CollectionID] == nil {
			s.editions[e.CollectionID] = make(map[string]edition.Edition)
		}
		s.editions[e.CollectionID][e.SubID] = e
	}
	return nil
}

func (s *Store) GetEdition(_ context.Context, collectionID, subID string) (edition.Edition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.editions[collectionID][subID]
	if !ok {
		return edition.Edition{}, storage.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *Store) ListEditions(_ context.Context, collectionID string) ([]edition.Edition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.editions[collectionID]
	out := make([]edition.Edition, 0, len(byID))
	for _, e := range byID {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *Store) UpdateEditions(_ context.Context, editions []edition.Edition) ([]edition.Edition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var staged []edition.Edition
	for _, e := range editions {
		one, err := s.stageEditionsLocked(e.CollectionID, []edition.Edition{e}, now, "update_editions")
		if err != nil {
			return nil, err
		}
		staged = append(staged, one...)
	}
	for _, e := range staged {
		s.editions[e.CollectionID][e.SubID] = e
	}
	out := make([]edition.Edition, len(staged))
	for i, e := range staged {
		out[i] = e.Clone()
	}
	return out, nil
}

// TransferStore implementation ------------------------------------------------

func (s *Store) CommitTransfer(_ context.Context, e edition.Edition, rec *trade.Record) (edition.Edition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	staged, err := s.stageEditionsLocked(e.CollectionID, []edition.Edition{e}, now, "commit_transfer")
	if err != nil {
		return edition.Edition{}, err
	}
	next := staged[0]
	s.editions[next.CollectionID][next.SubID] = next
	if rec != nil {
		r := *rec
		if r.ID == "" {
			r.ID = s.nextIDLocked()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		s.trades = append(s.trades, r)
	}
	return next.Clone(), nil
}

// BoxStore implementation -----------------------------------------------------

func (s *Store) CreateInstance(_ context.Context, inst mysterybox.Instance) (mysterybox.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst.ID == "" {
		inst.ID = s.nextIDLocked()
	} else if _, exists := s.instances[inst.ID]; exists {
		return mysterybox.Instance{}, storage.ErrAlreadyExists
	}
	now := time.Now().UTC()
	if inst.PurchasedAt.IsZero() {
		inst.PurchasedAt = now
	}
	inst.UpdatedAt = now
	s.instances[inst.ID] = inst
	return inst, nil
}

func (s *Store) GetInstance(_ context.Context, id string) (mysterybox.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return mysterybox.Instance{}, storage.ErrNotFound
	}
	return inst, nil
}

func (s *Store) ListInstancesByOwner(_ context.Context, owner string) ([]mysterybox.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []mysterybox.Instance
	for _, inst := range s.instances {
		if inst.Owner == owner {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.Before(out[j].PurchasedAt) })
	return out, nil
}

func (s *Store) TransitionInstance(_ context.Context, inst mysterybox.Instance, from mysterybox.State) (mysterybox.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instances[inst.ID]
	if !ok {
		return mysterybox.Instance{}, storage.ErrNotFound
	}
	if current.State != from {
		return mysterybox.Instance{}, storage.ErrConditionFailed
	}
	inst.UpdatedAt = time.Now().UTC()
	s.instances[inst.ID] = inst
	return inst, nil
}

func (s *Store) ListStaleClaims(_ context.Context, before time.Time) ([]mysterybox.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []mysterybox.Instance
	for _, inst := range s.instances {
		if inst.State == mysterybox.StateOpening && inst.ClaimedAt.Before(before) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// TradeStore implementation ---------------------------------------------------

func (s *Store) CreateTrade(_ context.Context, rec trade.Record) (trade.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = s.nextIDLocked()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.trades = append(s.trades, rec)
	return rec, nil
}

func (s *Store) ListTradesByBuyer(_ context.Context, buyer string) ([]trade.Record, error) {
	return s.filterTrades(func(r trade.Record) bool { return r.Buyer == buyer }), nil
}

func (s *Store) ListTradesBySeller(_ context.Context, seller string) ([]trade.Record, error) {
	return s.filterTrades(func(r trade.Record) bool { return r.Seller == seller }), nil
}

func (s *Store) FindTradeByReference(_ context.Context, reference string) (trade.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.trades) - 1; i >= 0; i-- {
		if reference != "" && s.trades[i].Reference == reference {
			return s.trades[i], nil
		}
	}
	return trade.Record{}, storage.ErrNotFound
}

// filterTrades returns matches newest first.
func (s *Store) filterTrades(keep func(trade.Record) bool) []trade.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []trade.Record
	for i := len(s.trades) - 1; i >= 0; i-- {
		if keep(s.trades[i]) {
			out = append(out, s.trades[i])
		}
	}
	return out
}

// ReservationStore implementation ---------------------------------------------

func (s *Store) SaveReservation(_ context.Context, r reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reservations[r.Token]; exists {
		return storage.ErrAlreadyExists
	}
	s.reservations[r.Token] = r
	return nil
}

func (s *Store) DeleteReservation(_ context.Context, token string) (reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[token]
	if !ok {
		return reservation.Reservation{}, storage.ErrNotFound
	}
	delete(s.reservations, token)
	return r, nil
}

func (s *Store) ListExpiredReservations(_ context.Context, now time.Time) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []reservation.Reservation
	for _, r := range s.reservations {
		if r.Expired(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}
