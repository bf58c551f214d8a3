package collection

import "time"

// Kind distinguishes plain NFT collections from mystery boxes.
type Kind int

const (
	KindNFT        Kind = 1
	KindMysteryBox Kind = 2
)

func (k Kind) Valid() bool { return k == KindNFT || k == KindMysteryBox }

// Status is the sales state of a collection.
type Status int

const (
	StatusDraft         Status = 1
	StatusPublished     Status = 2
	StatusSoldOut       Status = 3
	StatusDelisted      Status = 4
	StatusFlashSale     Status = 5
	StatusPresale       Status = 6
	StatusHot           Status = 7
	StatusAlmostSoldOut Status = 8
)

func (s Status) Valid() bool { return s >= StatusDraft && s <= StatusAlmostSoldOut }

// Purchasable reports whether primary sales are open in this status.
func (s Status) Purchasable() bool {
	switch s {
	case StatusPublished, StatusFlashSale, StatusPresale, StatusHot, StatusAlmostSoldOut:
		return true
	}
	return false
}

// Listed reports whether any sale, primary or secondary, may happen.
func (s Status) Listed() bool {
	return s != StatusDelisted
}

// PoolItem is one weighted outcome of a mystery box.
type PoolItem struct {
	// CollectionID references the NFT collection awarded by this item.
	CollectionID      string
	Weight            int
	Quantity          int
	RemainingQuantity int
}

// Collection is a sellable product definition: either an NFT series with
// numbered editions or a mystery box with a weighted pool.
type Collection struct {
	ID            string
	Kind          Kind
	Name          string
	Description   string
	ImageURL      string
	Author        string
	Price         string
	Owner         string
	TotalQuantity int
	SoldQuantity  int
	OpenedCount   int
	// OpenLimit caps successful opens; zero means unlimited.
	OpenLimit int
	Status    Status
	Items     []PoolItem
	// LastSeq is the highest edition or instance sequence handed out.
	LastSeq   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy.
func (c Collection) Clone() Collection {
	cp := c
	if c.Items != nil {
		cp.Items = append([]PoolItem(nil), c.Items...)
	}
	return cp
}

// Remaining returns unsold supply.
func (c Collection) Remaining() int {
	if c.SoldQuantity >= c.TotalQuantity {
		return 0
	}
	return c.TotalQuantity - c.SoldQuantity
}

// OpenLimitReached reports whether no further opens are allowed.
func (c Collection) OpenLimitReached() bool {
	return c.OpenLimit > 0 && c.OpenedCount >= c.OpenLimit
}
