package postgres

import (
	"database/sql"
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/mysterybox"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/domain/trade"
)

const collectionColumns = `id, kind, name, description, image_url, author, price, owner,
	total_quantity, sold_quantity, opened_count, open_limit, status, last_seq, created_at, updated_at`

type collectionRow struct {
	ID            string    `db:"id"`
	Kind          int       `db:"kind"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	ImageURL      string    `db:"image_url"`
	Author        string    `db:"author"`
	Price         string    `db:"price"`
	Owner         string    `db:"owner"`
	TotalQuantity int       `db:"total_quantity"`
	SoldQuantity  int       `db:"sold_quantity"`
	OpenedCount   int       `db:"opened_count"`
	OpenLimit     int       `db:"open_limit"`
	Status        int       `db:"status"`
	LastSeq       int       `db:"last_seq"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func toCollectionRow(c collection.Collection) collectionRow {
	return collectionRow{
		ID:            c.ID,
		Kind:          int(c.Kind),
		Name:          c.Name,
		Description:   c.Description,
		ImageURL:      c.ImageURL,
		Author:        c.Author,
		Price:         c.Price,
		Owner:         c.Owner,
		TotalQuantity: c.TotalQuantity,
		SoldQuantity:  c.SoldQuantity,
		OpenedCount:   c.OpenedCount,
		OpenLimit:     c.OpenLimit,
		Status:        int(c.Status),
		LastSeq:       c.LastSeq,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (r collectionRow) model(items []poolItemRow) collection.Collection {
	c := collection.Collection{
		ID:            r.ID,
		Kind:          collection.Kind(r.Kind),
		Name:          r.Name,
		Description:   r.Description,
		ImageURL:      r.ImageURL,
		Author:        r.Author,
		Price:         r.Price,
		Owner:         r.Owner,
		TotalQuantity: r.TotalQuantity,
		SoldQuantity:  r.SoldQuantity,
		OpenedCount:   r.OpenedCount,
		OpenLimit:     r.OpenLimit,
		Status:        collection.Status(r.Status),
		LastSeq:       r.LastSeq,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	for _, item := range items {
		c.Items = append(c.Items, collection.PoolItem{
			CollectionID:      item.TargetCollectionID,
			Weight:            item.Weight,
			Quantity:          item.Quantity,
			RemainingQuantity: item.RemainingQuantity,
		})
	}
	return c
}

const poolItemColumns = `collection_id, position, target_collection_id, weight, quantity, remaining_quantity`

type poolItemRow struct {
	CollectionID       string `db:"collection_id"`
	Position           int    `db:"position"`
	TargetCollectionID string `db:"target_collection_id"`
	Weight             int    `db:"weight"`
	Quantity           int    `db:"quantity"`
	RemainingQuantity  int    `db:"remaining_quantity"`
}

const editionColumns = `id, collection_id, seq, sub_id, shop_id, status, price, owner, blockchain_id,
	version, created_at, updated_at`

type editionRow struct {
	ID           string    `db:"id"`
	CollectionID string    `db:"collection_id"`
	Seq          int       `db:"seq"`
	SubID        string    `db:"sub_id"`
	ShopID       string    `db:"shop_id"`
	Status       int       `db:"status"`
	Price        string    `db:"price"`
	Owner        string    `db:"owner"`
	BlockchainID string    `db:"blockchain_id"`
	Version      int64     `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toEditionRow(e edition.Edition) editionRow {
	return editionRow{
		ID:           e.ID,
		CollectionID: e.CollectionID,
		Seq:          e.Seq,
		SubID:        e.SubID,
		ShopID:       e.ShopID,
		Status:       int(e.Status),
		Price:        e.Price,
		Owner:        e.Owner,
		BlockchainID: e.BlockchainID,
		Version:      e.Version,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func (r editionRow) model(history []historyRow) edition.Edition {
	e := edition.Edition{
		ID:           r.ID,
		CollectionID: r.CollectionID,
		Seq:          r.Seq,
		SubID:        r.SubID,
		ShopID:       r.ShopID,
		Status:       edition.Status(r.Status),
		Price:        r.Price,
		Owner:        r.Owner,
		BlockchainID: r.BlockchainID,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	for _, h := range history {
		e.History = append(e.History, edition.HistoryEntry{
			Timestamp: h.Timestamp.UTC(),
			From:      h.FromOwner,
			To:        h.ToOwner,
			Price:     h.Price,
			Type:      edition.TxType(h.TxType),
		})
	}
	return e
}

type historyRow struct {
	EditionID string    `db:"edition_id"`
	Position  int       `db:"position"`
	Timestamp time.Time `db:"ts"`
	FromOwner string    `db:"from_owner"`
	ToOwner   string    `db:"to_owner"`
	Price     string    `db:"price"`
	TxType    string    `db:"tx_type"`
}

const instanceColumns = `id, collection_id, seq, sub_id, owner, price, state, claimed_at,
	nft_received, edition_received, purchased_at, opened_at, updated_at`

type instanceRow struct {
	ID              string       `db:"id"`
	CollectionID    string       `db:"collection_id"`
	Seq             int          `db:"seq"`
	SubID           string       `db:"sub_id"`
	Owner           string       `db:"owner"`
	Price           string       `db:"price"`
	State           int          `db:"state"`
	ClaimedAt       sql.NullTime `db:"claimed_at"`
	NFTReceived     string       `db:"nft_received"`
	EditionReceived string       `db:"edition_received"`
	PurchasedAt     time.Time    `db:"purchased_at"`
	OpenedAt        sql.NullTime `db:"opened_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func toInstanceRow(inst mysterybox.Instance) instanceRow {
	return instanceRow{
		ID:              inst.ID,
		CollectionID:    inst.CollectionID,
		Seq:             inst.Seq,
		SubID:           inst.SubID,
		Owner:           inst.Owner,
		Price:           inst.Price,
		State:           int(inst.State),
		ClaimedAt:       toNullTime(inst.ClaimedAt),
		NFTReceived:     inst.NFTReceived,
		EditionReceived: inst.EditionReceived,
		PurchasedAt:     inst.PurchasedAt,
		OpenedAt:        toNullTime(inst.OpenedAt),
		UpdatedAt:       inst.UpdatedAt,
	}
}

func (r instanceRow) model() mysterybox.Instance {
	return mysterybox.Instance{
		ID:              r.ID,
		CollectionID:    r.CollectionID,
		Seq:             r.Seq,
		SubID:           r.SubID,
		Owner:           r.Owner,
		Price:           r.Price,
		State:           mysterybox.State(r.State),
		ClaimedAt:       fromNullTime(r.ClaimedAt),
		NFTReceived:     r.NFTReceived,
		EditionReceived: r.EditionReceived,
		PurchasedAt:     r.PurchasedAt.UTC(),
		OpenedAt:        fromNullTime(r.OpenedAt),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

const tradeColumns = `id, collection_id, sub_id, seller, buyer, price, tx_type, reference, created_at`

type tradeRow struct {
	ID           string    `db:"id"`
	CollectionID string    `db:"collection_id"`
	SubID        string    `db:"sub_id"`
	Seller       string    `db:"seller"`
	Buyer        string    `db:"buyer"`
	Price        string    `db:"price"`
	TxType       string    `db:"tx_type"`
	Reference    string    `db:"reference"`
	CreatedAt    time.Time `db:"created_at"`
}

func toTradeRow(rec trade.Record) tradeRow {
	return tradeRow{
		ID:           rec.ID,
		CollectionID: rec.CollectionID,
		SubID:        rec.SubID,
		Seller:       rec.Seller,
		Buyer:        rec.Buyer,
		Price:        rec.Price,
		TxType:       string(rec.Type),
		Reference:    rec.Reference,
		CreatedAt:    rec.CreatedAt,
	}
}

func (r tradeRow) model() trade.Record {
	return trade.Record{
		ID:           r.ID,
		CollectionID: r.CollectionID,
		SubID:        r.SubID,
		Seller:       r.Seller,
		Buyer:        r.Buyer,
		Price:        r.Price,
		Type:         edition.TxType(r.TxType),
		Reference:    r.Reference,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

const reservationColumns = `token, collection_id, kind, item_index, created_at, expires_at`

type reservationRow struct {
	Token        string    `db:"token"`
	CollectionID string    `db:"collection_id"`
	Kind         string    `db:"kind"`
	ItemIndex    int       `db:"item_index"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

func (r reservationRow) model() reservation.Reservation {
	return reservation.Reservation{
		Token:        r.Token,
		CollectionID: r.CollectionID,
		Kind:         reservation.Kind(r.Kind),
		ItemIndex:    r.ItemIndex,
		CreatedAt:    r.CreatedAt.UTC(),
		ExpiresAt:    r.ExpiresAt.UTC(),
	}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
