package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/mysterybox"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/domain/trade"
	"github.com/mintline/edition_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Counter
// updates are single conditional statements; multi-row writes run in one
// transaction.
type Store struct {
	db *sqlx.DB
}

var _ storage.CollectionStore = (*Store)(nil)
var _ storage.EditionStore = (*Store)(nil)
var _ storage.TransferStore = (*Store)(nil)
var _ storage.BoxStore = (*Store)(nil)
var _ storage.TradeStore = (*Store)(nil)
var _ storage.ReservationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Wrap adapts a plain database/sql handle opened with the lib/pq driver.
func Wrap(db *sql.DB) *Store {
	return New(sqlx.NewDb(db, "postgres"))
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- CollectionStore --------------------------------------------------------

func (s *Store) CreateCollection(ctx context.Context, c collection.Collection, editions []edition.Edition) (collection.Collection, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO collections (`+collectionColumns+`)
			VALUES (:id, :kind, :name, :description, :image_url, :author, :price, :owner,
				:total_quantity, :sold_quantity, :opened_count, :open_limit, :status, :last_seq, :created_at, :updated_at)
		`, toCollectionRow(c)); err != nil {
			return mapWriteErr(err)
		}
		for i, item := range c.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pool_items (`+poolItemColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, c.ID, i, item.CollectionID, item.Weight, item.Quantity, item.RemainingQuantity); err != nil {
				return mapWriteErr(err)
			}
		}
		for _, e := range editions {
			e.CollectionID = c.ID
			if err := insertEdition(ctx, tx, e, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return collection.Collection{}, err
	}
	return c.Clone(), nil
}

func (s *Store) GetCollection(ctx context.Context, id string) (collection.Collection, error) {
	return getCollection(ctx, s.db, id)
}

func getCollection(ctx context.Context, q sqlx.QueryerContext, id string) (collection.Collection, error) {
	var row collectionRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT `+collectionColumns+` FROM collections WHERE id = $1`, id); err != nil {
		return collection.Collection{}, mapReadErr(err)
	}
	var items []poolItemRow
	if err := sqlx.SelectContext(ctx, q, &items, `
		SELECT `+poolItemColumns+` FROM pool_items WHERE collection_id = $1 ORDER BY position
	`, id); err != nil {
		return collection.Collection{}, err
	}
	return row.model(items), nil
}

func (s *Store) ListCollections(ctx context.Context) ([]collection.Collection, error) {
	var rows []collectionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+collectionColumns+` FROM collections ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	var items []poolItemRow
	if err := s.db.SelectContext(ctx, &items, `
		SELECT `+poolItemColumns+` FROM pool_items ORDER BY collection_id, position
	`); err != nil {
		return nil, err
	}
	byCollection := make(map[string][]poolItemRow)
	for _, item := range items {
		byCollection[item.CollectionID] = append(byCollection[item.CollectionID], item)
	}

	out := make([]collection.Collection, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model(byCollection[row.ID]))
	}
	return out, nil
}

func (s *Store) IncrementSold(ctx context.Context, id string) (collection.Collection, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET sold_quantity = sold_quantity + 1, updated_at = $2
		WHERE id = $1 AND sold_quantity < total_quantity
	`, id, time.Now().UTC())
	if err != nil {
		return collection.Collection{}, err
	}
	if err := requireAffected(ctx, s.db, res, "collections", id); err != nil {
		return collection.Collection{}, err
	}
	return s.GetCollection(ctx, id)
}

func (s *Store) DecrementSold(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET sold_quantity = sold_quantity - 1, updated_at = $2
		WHERE id = $1 AND sold_quantity > 0
	`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireAffected(ctx, s.db, res, "collections", id)
}

func (s *Store) IncrementOpened(ctx context.Context, id string, itemIndex int) (collection.Collection, error) {
	var out collection.Collection
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE collections SET opened_count = opened_count + 1, updated_at = $2
			WHERE id = $1 AND (open_limit = 0 OR opened_count < open_limit)
		`, id, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := requireAffected(ctx, tx, res, "collections", id); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE pool_items SET remaining_quantity = remaining_quantity - 1
			WHERE collection_id = $1 AND position = $2 AND remaining_quantity > 0
		`, id, itemIndex)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return storage.ErrConditionFailed
		}
		out, err = getCollection(ctx, tx, id)
		return err
	})
	if err != nil {
		return collection.Collection{}, err
	}
	return out, nil
}

func (s *Store) DecrementOpened(ctx context.Context, id string, itemIndex int) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE collections SET opened_count = opened_count - 1, updated_at = $2
			WHERE id = $1 AND opened_count > 0
		`, id, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := requireAffected(ctx, tx, res, "collections", id); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE pool_items SET remaining_quantity = remaining_quantity + 1
			WHERE collection_id = $1 AND position = $2 AND remaining_quantity < quantity
		`, id, itemIndex)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return storage.ErrConditionFailed
		}
		return nil
	})
}

func (s *Store) AdvanceSequence(ctx context.Context, id string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("advance sequence: n must be positive, got %d", n)
	}
	var last int
	err := s.db.QueryRowxContext(ctx, `
		UPDATE collections SET last_seq = last_seq + $2 WHERE id = $1 RETURNING last_seq
	`, id, n).Scan(&last)
	if err != nil {
		return 0, mapReadErr(err)
	}
	return last - n + 1, nil
}

func (s *Store) SetCollectionStatus(ctx context.Context, id string, status collection.Status, cascade []edition.Edition) (collection.Collection, error) {
	var out collection.Collection
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE collections SET status = $2, updated_at = $3 WHERE id = $1
		`, id, int(status), now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return storage.ErrNotFound
		}
		for _, e := range cascade {
			if _, err := updateEdition(ctx, tx, id, e, now); err != nil {
				return err
			}
		}
		out, err = getCollection(ctx, tx, id)
		return err
	})
	if err != nil {
		return collection.Collection{}, err
	}
	return out, nil
}

// --- EditionStore -----------------------------------------------------------

func (s *Store) InsertEditions(ctx context.Context, editions []edition.Edition) error {
	if len(editions) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range editions {
			if err := insertEdition(ctx, tx, e, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertEdition(ctx context.Context, tx *sqlx.Tx, e edition.Edition, now time.Time) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt, e.UpdatedAt = now, now
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO editions (`+editionColumns+`)
		VALUES (:id, :collection_id, :seq, :sub_id, :shop_id, :status, :price, :owner, :blockchain_id,
			:version, :created_at, :updated_at)
	`, toEditionRow(e)); err != nil {
		return mapWriteErr(err)
	}
	return appendHistory(ctx, tx, e.ID, e.History, 0)
}

// appendHistory inserts entries[from:]; stored entries are never rewritten.
func appendHistory(ctx context.Context, tx *sqlx.Tx, editionID string, entries []edition.HistoryEntry, from int) error {
	for i := from; i < len(entries); i++ {
		h := entries[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO edition_history (edition_id, position, ts, from_owner, to_owner, price, tx_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, editionID, i, h.Timestamp.UTC(), h.From, h.To, h.Price, string(h.Type)); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

func (s *Store) GetEdition(ctx context.Context, collectionID, subID string) (edition.Edition, error) {
	var row editionRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT `+editionColumns+` FROM editions WHERE collection_id = $1 AND sub_id = $2
	`, collectionID, subID); err != nil {
		return edition.Edition{}, mapReadErr(err)
	}
	var history []historyRow
	if err := s.db.SelectContext(ctx, &history, `
		SELECT edition_id, position, ts, from_owner, to_owner, price, tx_type
		FROM edition_history WHERE edition_id = $1 ORDER BY position
	`, row.ID); err != nil {
		return edition.Edition{}, err
	}
	return row.model(history), nil
}

func (s *Store) ListEditions(ctx context.Context, collectionID string) ([]edition.Edition, error) {
	var rows []editionRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+editionColumns+` FROM editions WHERE collection_id = $1 ORDER BY seq
	`, collectionID); err != nil {
		return nil, err
	}
	var history []historyRow
	if err := s.db.SelectContext(ctx, &history, `
		SELECT h.edition_id, h.position, h.ts, h.from_owner, h.to_owner, h.price, h.tx_type
		FROM edition_history h JOIN editions e ON e.id = h.edition_id
		WHERE e.collection_id = $1 ORDER BY h.edition_id, h.position
	`, collectionID); err != nil {
		return nil, err
	}
	byEdition := make(map[string][]historyRow)
	for _, h := range history {
		byEdition[h.EditionID] = append(byEdition[h.EditionID], h)
	}

	out := make([]edition.Edition, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model(byEdition[row.ID]))
	}
	return out, nil
}

func (s *Store) UpdateEditions(ctx context.Context, editions []edition.Edition) ([]edition.Edition, error) {
	out := make([]edition.Edition, 0, len(editions))
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, e := range editions {
			next, err := updateEdition(ctx, tx, e.CollectionID, e, now)
			if err != nil {
				return err
			}
			out = append(out, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// updateEdition writes e if the stored version still matches e.Version and
// appends the history entries the row does not have yet.
func updateEdition(ctx context.Context, tx *sqlx.Tx, collectionID string, e edition.Edition, now time.Time) (edition.Edition, error) {
	if e.CollectionID != "" && e.CollectionID != collectionID {
		return edition.Edition{}, fmt.Errorf("edition %s belongs to collection %s", e.SubID, e.CollectionID)
	}

	var (
		id        string
		createdAt time.Time
	)
	err := tx.QueryRowxContext(ctx, `
		UPDATE editions SET shop_id = $3, status = $4, price = $5, owner = $6, blockchain_id = $7,
			version = version + 1, updated_at = $8
		WHERE collection_id = $1 AND sub_id = $2 AND version = $9
		RETURNING id, created_at
	`, collectionID, e.SubID, e.ShopID, int(e.Status), e.Price, e.Owner, e.BlockchainID, now, e.Version).Scan(&id, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowxContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM editions WHERE collection_id = $1 AND sub_id = $2)
		`, collectionID, e.SubID).Scan(&exists); err != nil {
			return edition.Edition{}, err
		}
		if !exists {
			return edition.Edition{}, storage.ErrNotFound
		}
		return edition.Edition{}, storage.ErrConditionFailed
	}
	if err != nil {
		return edition.Edition{}, err
	}

	var stored int
	if err := tx.GetContext(ctx, &stored, `SELECT COUNT(*) FROM edition_history WHERE edition_id = $1`, id); err != nil {
		return edition.Edition{}, err
	}
	if len(e.History) < stored {
		return edition.Edition{}, storage.ErrConditionFailed
	}
	if err := appendHistory(ctx, tx, id, e.History, stored); err != nil {
		return edition.Edition{}, err
	}

	next := e.Clone()
	next.ID = id
	next.CollectionID = collectionID
	next.CreatedAt = createdAt.UTC()
	next.Version = e.Version + 1
	next.UpdatedAt = now
	return next, nil
}

// --- TransferStore ----------------------------------------------------------

func (s *Store) CommitTransfer(ctx context.Context, e edition.Edition, rec *trade.Record) (edition.Edition, error) {
	var out edition.Edition
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		next, err := updateEdition(ctx, tx, e.CollectionID, e, now)
		if err != nil {
			return err
		}
		if rec != nil {
			if _, err := insertTrade(ctx, tx, *rec, now); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return edition.Edition{}, err
	}
	return out, nil
}

// --- BoxStore ---------------------------------------------------------------

func (s *Store) CreateInstance(ctx context.Context, inst mysterybox.Instance) (mysterybox.Instance, error) {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if inst.PurchasedAt.IsZero() {
		inst.PurchasedAt = now
	}
	inst.UpdatedAt = now

	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO box_instances (`+instanceColumns+`)
		VALUES (:id, :collection_id, :seq, :sub_id, :owner, :price, :state, :claimed_at,
			:nft_received, :edition_received, :purchased_at, :opened_at, :updated_at)
	`, toInstanceRow(inst)); err != nil {
		return mysterybox.Instance{}, mapWriteErr(err)
	}
	return inst, nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (mysterybox.Instance, error) {
	var row instanceRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+instanceColumns+` FROM box_instances WHERE id = $1`, id); err != nil {
		return mysterybox.Instance{}, mapReadErr(err)
	}
	return row.model(), nil
}

func (s *Store) ListInstancesByOwner(ctx context.Context, owner string) ([]mysterybox.Instance, error) {
	return s.selectInstances(ctx, `
		SELECT `+instanceColumns+` FROM box_instances WHERE owner = $1 ORDER BY purchased_at, id
	`, owner)
}

func (s *Store) TransitionInstance(ctx context.Context, inst mysterybox.Instance, from mysterybox.State) (mysterybox.Instance, error) {
	inst.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE box_instances
		SET owner = $3, price = $4, state = $5, claimed_at = $6, nft_received = $7,
			edition_received = $8, opened_at = $9, updated_at = $10
		WHERE id = $1 AND state = $2
	`, inst.ID, int(from), inst.Owner, inst.Price, int(inst.State), toNullTime(inst.ClaimedAt),
		inst.NFTReceived, inst.EditionReceived, toNullTime(inst.OpenedAt), inst.UpdatedAt)
	if err != nil {
		return mysterybox.Instance{}, err
	}
	if err := requireAffected(ctx, s.db, res, "box_instances", inst.ID); err != nil {
		return mysterybox.Instance{}, err
	}
	return inst, nil
}

func (s *Store) ListStaleClaims(ctx context.Context, before time.Time) ([]mysterybox.Instance, error) {
	return s.selectInstances(ctx, `
		SELECT `+instanceColumns+` FROM box_instances
		WHERE state = $1 AND claimed_at < $2 ORDER BY claimed_at
	`, int(mysterybox.StateOpening), before.UTC())
}

func (s *Store) selectInstances(ctx context.Context, query string, args ...any) ([]mysterybox.Instance, error) {
	var rows []instanceRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]mysterybox.Instance, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// --- TradeStore -------------------------------------------------------------

func (s *Store) CreateTrade(ctx context.Context, rec trade.Record) (trade.Record, error) {
	return insertTrade(ctx, s.db, rec, time.Now().UTC())
}

func insertTrade(ctx context.Context, e sqlx.ExtContext, rec trade.Record, now time.Time) (trade.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if _, err := sqlx.NamedExecContext(ctx, e, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (:id, :collection_id, :sub_id, :seller, :buyer, :price, :tx_type, :reference, :created_at)
	`, toTradeRow(rec)); err != nil {
		return trade.Record{}, mapWriteErr(err)
	}
	return rec, nil
}

func (s *Store) ListTradesByBuyer(ctx context.Context, buyer string) ([]trade.Record, error) {
	return s.selectTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE buyer = $1 ORDER BY created_at DESC, id DESC
	`, buyer)
}

func (s *Store) ListTradesBySeller(ctx context.Context, seller string) ([]trade.Record, error) {
	return s.selectTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE seller = $1 ORDER BY created_at DESC, id DESC
	`, seller)
}

func (s *Store) FindTradeByReference(ctx context.Context, reference string) (trade.Record, error) {
	if reference == "" {
		return trade.Record{}, storage.ErrNotFound
	}
	var row tradeRow
	if err := s.db.GetContext(ctx, &row, `
		SELECT `+tradeColumns+` FROM trades WHERE reference = $1 ORDER BY created_at DESC LIMIT 1
	`, reference); err != nil {
		return trade.Record{}, mapReadErr(err)
	}
	return row.model(), nil
}

func (s *Store) selectTrades(ctx context.Context, query string, args ...any) ([]trade.Record, error) {
	var rows []tradeRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]trade.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// --- ReservationStore -------------------------------------------------------

func (s *Store) SaveReservation(ctx context.Context, r reservation.Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.Token, r.CollectionID, string(r.Kind), r.ItemIndex, r.CreatedAt.UTC(), r.ExpiresAt.UTC())
	return mapWriteErr(err)
}

func (s *Store) DeleteReservation(ctx context.Context, token string) (reservation.Reservation, error) {
	var row reservationRow
	if err := s.db.GetContext(ctx, &row, `
		DELETE FROM reservations WHERE token = $1 RETURNING `+reservationColumns, token); err != nil {
		return reservation.Reservation{}, mapReadErr(err)
	}
	return row.model(), nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, now time.Time) ([]reservation.Reservation, error) {
	var rows []reservationRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+reservationColumns+` FROM reservations WHERE expires_at <= $1 ORDER BY expires_at
	`, now.UTC()); err != nil {
		return nil, err
	}
	out := make([]reservation.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// --- helpers ----------------------------------------------------------------

// requireAffected turns a conditional update that matched nothing into
// ErrNotFound or ErrConditionFailed depending on whether the row exists.
func requireAffected(ctx context.Context, q sqlx.QueryerContext, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id); err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConditionFailed
}

func mapReadErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return storage.ErrAlreadyExists
		case "23503":
			return storage.ErrNotFound
		case "23514":
			return storage.ErrConditionFailed
		}
	}
	return err
}
