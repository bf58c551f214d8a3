// Package redisstore keeps pending ledger reservations in Redis so that
// several processes can share one sweeper view.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/storage"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "edition_layer:"

// Config describes the Redis connection.
type Config struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// Store implements storage.ReservationStore. Each reservation is a JSON
// value under its own key; a sorted set scored by deadline indexes them
// for the sweeper.
type Store struct {
	client client
	prefix string
}

var _ storage.ReservationStore = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	c := newGoRedisClient(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return newStore(c, cfg.KeyPrefix), nil
}

func newStore(c client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: c, prefix: prefix}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

type record struct {
	Token        string    `json:"token"`
	CollectionID string    `json:"collection_id"`
	Kind         string    `json:"kind"`
	ItemIndex    int       `json:"item_index"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *Store) key(token string) string { return s.prefix + "reservation:" + token }
func (s *Store) indexKey() string        { return s.prefix + "reservations:by_deadline" }

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

func (s *Store) SaveReservation(ctx context.Context, r reservation.Reservation) error {
	payload, err := json.Marshal(record{
		Token:        r.Token,
		CollectionID: r.CollectionID,
		Kind:         string(r.Kind),
		ItemIndex:    r.ItemIndex,
		CreatedAt:    r.CreatedAt.UTC(),
		ExpiresAt:    r.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode reservation: %w", err)
	}
	ok, err := s.client.SetNXIndexed(ctx, s.key(r.Token), payload, s.indexKey(), score(r.ExpiresAt), r.Token)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrAlreadyExists
	}
	return nil
}

// DeleteReservation reads then deletes the key. Only the caller whose DEL
// removed the key wins; everyone else sees ErrNotFound.
func (s *Store) DeleteReservation(ctx context.Context, token string) (reservation.Reservation, error) {
	r, err := s.load(ctx, token)
	if err != nil {
		return reservation.Reservation{}, err
	}
	n, err := s.client.Del(ctx, s.key(token))
	if err != nil {
		return reservation.Reservation{}, err
	}
	if n == 0 {
		return reservation.Reservation{}, storage.ErrNotFound
	}
	if err := s.client.ZRem(ctx, s.indexKey(), token); err != nil {
		return reservation.Reservation{}, err
	}
	return r, nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, now time.Time) ([]reservation.Reservation, error) {
	tokens, err := s.client.ZRangeByScore(ctx, s.indexKey(), score(now))
	if err != nil {
		return nil, err
	}
	out := make([]reservation.Reservation, 0, len(tokens))
	for _, token := range tokens {
		r, err := s.load(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			// index entry outlived its key
			_ = s.client.ZRem(ctx, s.indexKey(), token)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) load(ctx context.Context, token string) (reservation.Reservation, error) {
	raw, err := s.client.Get(ctx, s.key(token))
	if err != nil {
		return reservation.Reservation{}, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return reservation.Reservation{}, fmt.Errorf("decode reservation %s: %w", token, err)
	}
	return reservation.Reservation{
		Token:        rec.Token,
		CollectionID: rec.CollectionID,
		Kind:         reservation.Kind(rec.Kind),
		ItemIndex:    rec.ItemIndex,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}
