package allocation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

const (
	maxEditionsPerCollection = 10000
	maxSynthesizeBatch       = 1000
	maxAirdropBatch          = 1000
)

// PoolItemInput declares one weighted outcome of a new mystery box.
type PoolItemInput struct {
	CollectionID string `json:"collection_id" yaml:"collection_id"`
	Weight       int    `json:"weight" yaml:"weight"`
	Quantity     int    `json:"quantity" yaml:"quantity"`
}

// CreateCollectionRequest creates an NFT collection or a mystery box.
type CreateCollectionRequest struct {
	Kind          collection.Kind `json:"kind" yaml:"kind"`
	Name          string          `json:"name" yaml:"name"`
	Description   string          `json:"description" yaml:"description"`
	ImageURL      string          `json:"image_url" yaml:"image_url"`
	Author        string          `json:"author" yaml:"author"`
	Price         string          `json:"price" yaml:"price"`
	Owner         string          `json:"owner,omitempty" yaml:"owner"`
	TotalQuantity int             `json:"total_quantity" yaml:"total_quantity"`
	OpenLimit     int             `json:"open_limit" yaml:"open_limit"`
	Items         []PoolItemInput `json:"items,omitempty" yaml:"items"`
}

func (r *CreateCollectionRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return apperrors.Validation("name is required")
	}
	if !r.Kind.Valid() {
		return apperrors.Validation("kind must be 1 (NFT) or 2 (mystery box)")
	}
	if err := validatePrice(r.Price, "price"); err != nil {
		return err
	}
	if r.TotalQuantity <= 0 {
		return apperrors.Validation("total_quantity must be positive")
	}
	if r.Kind == collection.KindNFT {
		if r.TotalQuantity > maxEditionsPerCollection {
			return apperrors.Validation(fmt.Sprintf("total_quantity must not exceed %d", maxEditionsPerCollection))
		}
		if len(r.Items) > 0 || r.OpenLimit != 0 {
			return apperrors.Validation("items and open_limit apply to mystery boxes only")
		}
		return nil
	}

	if r.OpenLimit < 0 {
		return apperrors.Validation("open_limit must not be negative")
	}
	if len(r.Items) == 0 {
		return apperrors.Validation("a mystery box needs at least one item")
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.CollectionID) == "" {
			return apperrors.Validation(fmt.Sprintf("items[%d].collection_id is required", i))
		}
		if it.Weight < 1 {
			return apperrors.Validation(fmt.Sprintf("items[%d].weight must be at least 1", i))
		}
		if it.Quantity < 1 {
			return apperrors.Validation(fmt.Sprintf("items[%d].quantity must be at least 1", i))
		}
	}
	return nil
}

// SetStatusRequest changes a collection's status.
type SetStatusRequest struct {
	CollectionID string            `json:"-"`
	Status       collection.Status `json:"status"`
}

func (r SetStatusRequest) Validate() error {
	if !r.Status.Valid() {
		return apperrors.Validation("unknown collection status")
	}
	return nil
}

// PublishRequest publishes editions for primary sale. With no SubIDs every
// unlisted or locked edition is published.
type PublishRequest struct {
	CollectionID string   `json:"-"`
	SubIDs       []string `json:"sub_ids,omitempty"`
	Price        string   `json:"price,omitempty"`
}

func (r PublishRequest) Validate() error {
	if r.Price == "" {
		return nil
	}
	return validatePrice(r.Price, "price")
}

// ConsignRequest lists an owned edition for sale.
type ConsignRequest struct {
	CollectionID string `json:"-"`
	SubID        string `json:"-"`
	Price        string `json:"price"`
}

func (r ConsignRequest) Validate() error {
	if strings.TrimSpace(r.Price) == "" {
		return apperrors.Validation("price is required")
	}
	return validatePrice(r.Price, "price")
}

// PurchaseRequest buys one listed edition.
type PurchaseRequest struct {
	CollectionID string `json:"-"`
	SubID        string `json:"-"`
}

// TransferRequest moves an edition administratively.
type TransferRequest struct {
	CollectionID string         `json:"-"`
	SubID        string         `json:"-"`
	To           string         `json:"to"`
	Status       edition.Status `json:"status,omitempty"`
}

func (r *TransferRequest) Validate() error {
	r.To = strings.TrimSpace(r.To)
	if r.To == "" {
		return apperrors.Validation("to is required")
	}
	if r.Status == 0 {
		r.Status = edition.StatusSold
	}
	if !r.Status.Valid() {
		return apperrors.Validation("unknown edition status")
	}
	return nil
}

// PurchaseBoxRequest buys one unopened mystery box.
type PurchaseBoxRequest struct {
	CollectionID string `json:"-"`
}

// OpenBoxRequest opens an owned box instance.
type OpenBoxRequest struct {
	InstanceID string `json:"-"`
}

// AirdropRequest sends one edition to each recipient. SubIDs, when given,
// pairs editions with recipients by position.
type AirdropRequest struct {
	CollectionID string   `json:"-"`
	Recipients   []string `json:"recipients"`
	SubIDs       []string `json:"sub_ids,omitempty"`
}

func (r *AirdropRequest) Validate() error {
	if len(r.Recipients) == 0 {
		return apperrors.Validation("recipients are required")
	}
	if len(r.Recipients) > maxAirdropBatch {
		return apperrors.Validation(fmt.Sprintf("at most %d recipients per airdrop", maxAirdropBatch))
	}
	for i, rcpt := range r.Recipients {
		r.Recipients[i] = strings.TrimSpace(rcpt)
		if r.Recipients[i] == "" {
			return apperrors.Validation(fmt.Sprintf("recipients[%d] is empty", i))
		}
	}
	if len(r.SubIDs) > 0 && len(r.SubIDs) != len(r.Recipients) {
		return apperrors.Validation("sub_ids must pair one to one with recipients")
	}
	seen := make(map[string]struct{}, len(r.SubIDs))
	for _, id := range r.SubIDs {
		if _, dup := seen[id]; dup {
			return apperrors.Validation("sub_ids contains duplicates")
		}
		seen[id] = struct{}{}
	}
	return nil
}

// SynthesizeRequest mints new editions into an existing collection.
type SynthesizeRequest struct {
	CollectionID string `json:"-"`
	Count        int    `json:"count"`
	Owner        string `json:"owner,omitempty"`
	Price        string `json:"price,omitempty"`
}

func (r SynthesizeRequest) Validate() error {
	if r.Count < 1 || r.Count > maxSynthesizeBatch {
		return apperrors.Validation(fmt.Sprintf("count must be between 1 and %d", maxSynthesizeBatch))
	}
	if r.Price == "" {
		return nil
	}
	return validatePrice(r.Price, "price")
}

func validatePrice(raw, field string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return apperrors.Validation(field + " must be a non-negative decimal")
	}
	return nil
}
