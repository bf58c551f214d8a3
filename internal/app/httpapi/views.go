package httpapi

import (
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/mysterybox"
	"github.com/mintline/edition_layer/internal/app/domain/trade"
	"github.com/mintline/edition_layer/internal/app/lifecycle"
	"github.com/mintline/edition_layer/internal/app/services/allocation"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// Labels are derived on every read and never stored.

type poolItemView struct {
	CollectionID      string `json:"collection_id"`
	Weight            int    `json:"weight"`
	Quantity          int    `json:"quantity"`
	RemainingQuantity int    `json:"remaining_quantity"`
}

type collectionView struct {
	ID            string         `json:"id"`
	Kind          int            `json:"kind"`
	TypeLabel     string         `json:"type_label"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	Author        string         `json:"author,omitempty"`
	Price         string         `json:"price"`
	Owner         string         `json:"owner"`
	TotalQuantity int            `json:"total_quantity"`
	SoldQuantity  int            `json:"sold_quantity"`
	Remaining     int            `json:"remaining"`
	OpenedCount   int            `json:"opened_count,omitempty"`
	OpenLimit     int            `json:"open_limit,omitempty"`
	Status        int            `json:"status"`
	StatusLabel   string         `json:"status_label"`
	Items         []poolItemView `json:"items,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func newCollectionView(c collection.Collection) collectionView {
	v := collectionView{
		ID:            c.ID,
		Kind:          int(c.Kind),
		TypeLabel:     lifecycle.KindLabel(c.Kind),
		Name:          c.Name,
		Description:   c.Description,
		ImageURL:      c.ImageURL,
		Author:        c.Author,
		Price:         c.Price,
		Owner:         c.Owner,
		TotalQuantity: c.TotalQuantity,
		SoldQuantity:  c.SoldQuantity,
		Remaining:     c.Remaining(),
		OpenedCount:   c.OpenedCount,
		OpenLimit:     c.OpenLimit,
		Status:        int(c.Status),
		StatusLabel:   lifecycle.CollectionLabel(c.Status),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	for _, it := range c.Items {
		v.Items = append(v.Items, poolItemView(it))
	}
	return v
}

type historyView struct {
	Timestamp time.Time `json:"timestamp"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Price     string    `json:"price,omitempty"`
	Type      string    `json:"type"`
}

type editionView struct {
	ID           string        `json:"id"`
	CollectionID string        `json:"collection_id"`
	SubID        string        `json:"sub_id"`
	ShopID       string        `json:"shop_id,omitempty"`
	Status       int           `json:"status"`
	StatusLabel  string        `json:"status_label"`
	Price        string        `json:"price,omitempty"`
	Owner        string        `json:"owner"`
	BlockchainID string        `json:"blockchain_id,omitempty"`
	History      []historyView `json:"history"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func newEditionView(e edition.Edition) editionView {
	v := editionView{
		ID:           e.ID,
		CollectionID: e.CollectionID,
		SubID:        e.SubID,
		ShopID:       e.ShopID,
		Status:       int(e.Status),
		StatusLabel:  lifecycle.EditionLabel(e.Status),
		Price:        e.Price,
		Owner:        e.Owner,
		BlockchainID: e.BlockchainID,
		History:      make([]historyView, 0, len(e.History)),
		UpdatedAt:    e.UpdatedAt,
	}
	for _, h := range e.History {
		v.History = append(v.History, historyView{
			Timestamp: h.Timestamp,
			From:      h.From,
			To:        h.To,
			Price:     h.Price,
			Type:      string(h.Type),
		})
	}
	return v
}

func newEditionViews(in []edition.Edition) []editionView {
	out := make([]editionView, 0, len(in))
	for _, e := range in {
		out = append(out, newEditionView(e))
	}
	return out
}

type instanceView struct {
	ID              string     `json:"id"`
	CollectionID    string     `json:"collection_id"`
	SubID           string     `json:"sub_id"`
	Owner           string     `json:"owner"`
	Price           string     `json:"price"`
	State           string     `json:"state"`
	NFTReceived     string     `json:"nft_received,omitempty"`
	EditionReceived string     `json:"edition_received,omitempty"`
	PurchasedAt     time.Time  `json:"purchased_at"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
}

func newInstanceView(inst mysterybox.Instance) instanceView {
	v := instanceView{
		ID:              inst.ID,
		CollectionID:    inst.CollectionID,
		SubID:           inst.SubID,
		Owner:           inst.Owner,
		Price:           inst.Price,
		State:           lifecycle.LabelFor(lifecycle.EntityBoxInstanceState, int(inst.State)),
		NFTReceived:     inst.NFTReceived,
		EditionReceived: inst.EditionReceived,
		PurchasedAt:     inst.PurchasedAt,
	}
	if !inst.OpenedAt.IsZero() {
		opened := inst.OpenedAt
		v.OpenedAt = &opened
	}
	return v
}

type openResultView struct {
	Instance   instanceView   `json:"instance"`
	Collection collectionView `json:"collection"`
	Edition    editionView    `json:"edition"`
}

type tradeView struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	SubID        string    `json:"sub_id"`
	Seller       string    `json:"seller"`
	Buyer        string    `json:"buyer"`
	Price        string    `json:"price"`
	Type         string    `json:"type"`
	CreatedAt    time.Time `json:"created_at"`
}

func newTradeViews(in []trade.Record) []tradeView {
	out := make([]tradeView, 0, len(in))
	for _, r := range in {
		out = append(out, tradeView{
			ID:           r.ID,
			CollectionID: r.CollectionID,
			SubID:        r.SubID,
			Seller:       r.Seller,
			Buyer:        r.Buyer,
			Price:        r.Price,
			Type:         string(r.Type),
			CreatedAt:    r.CreatedAt,
		})
	}
	return out
}

type airdropFailureView struct {
	Recipient string `json:"recipient"`
	SubID     string `json:"sub_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type airdropDeliveryView struct {
	Recipient string      `json:"recipient"`
	Edition   editionView `json:"edition"`
}

type airdropView struct {
	CollectionID string                `json:"collection_id"`
	Delivered    []airdropDeliveryView `json:"delivered"`
	Failed       []airdropFailureView  `json:"failed"`
}

func newAirdropView(r allocation.AirdropReport) airdropView {
	v := airdropView{
		CollectionID: r.CollectionID,
		Delivered:    make([]airdropDeliveryView, 0, len(r.Delivered)),
		Failed:       make([]airdropFailureView, 0, len(r.Failed)),
	}
	for _, d := range r.Delivered {
		v.Delivered = append(v.Delivered, airdropDeliveryView{Recipient: d.Recipient, Edition: newEditionView(d.Edition)})
	}
	for _, f := range r.Failed {
		fv := airdropFailureView{Recipient: f.Recipient, SubID: f.SubID, Code: string(apperrors.CodeInternal), Message: "transfer failed"}
		if svcErr := apperrors.GetServiceError(f.Err); svcErr != nil {
			fv.Code, fv.Message = string(svcErr.Code), svcErr.Message
		}
		v.Failed = append(v.Failed, fv)
	}
	return v
}
