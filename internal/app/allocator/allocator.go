// Package allocator implements roulette-wheel selection over weighted pool
// items. It holds no inventory state; callers pass a snapshot and the ledger
// enforces the decrement.
package allocator

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// Candidate is one selectable outcome.
type Candidate struct {
	Weight    int
	Remaining int
}

// CandidatesFromPool converts pool items in declaration order.
func CandidatesFromPool(items []collection.PoolItem) []Candidate {
	out := make([]Candidate, len(items))
	for i, it := range items {
		out[i] = Candidate{Weight: it.Weight, Remaining: it.RemainingQuantity}
	}
	return out
}

// Allocator draws weighted selections from a seeded source.
type Allocator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an allocator. A zero seed derives one from the clock.
func New(seed uint64) *Allocator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Allocator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Select returns the index of the chosen candidate. Candidates with no
// remaining quantity or no weight are excluded before the total is computed.
func (a *Allocator) Select(candidates []Candidate) (int, error) {
	eligible := make([]int, 0, len(candidates))
	total := 0
	for i, c := range candidates {
		if c.Remaining <= 0 || c.Weight <= 0 {
			continue
		}
		eligible = append(eligible, i)
		total += c.Weight
	}
	if len(eligible) == 0 {
		return -1, apperrors.ExhaustedPool("")
	}

	a.mu.Lock()
	r := a.rng.Float64() * float64(total)
	a.mu.Unlock()

	for _, idx := range eligible {
		r -= float64(candidates[idx].Weight)
		if r < 0 {
			return idx, nil
		}
	}
	// float drift can leave r at exactly zero after the last subtraction.
	return eligible[len(eligible)-1], nil
}

// SelectPoolItem runs Select over a pool snapshot.
func (a *Allocator) SelectPoolItem(items []collection.PoolItem) (int, error) {
	return a.Select(CandidatesFromPool(items))
}
