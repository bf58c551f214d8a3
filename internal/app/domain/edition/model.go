package edition

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a single edition.
type Status int

const (
	StatusUnlisted    Status = 1
	StatusConsigned   Status = 2
	StatusLocked      Status = 3
	StatusSold        Status = 4
	StatusPublished   Status = 5
	StatusAirdropped  Status = 6
	StatusSynthesized Status = 7
)

// Valid reports whether s is one of the known status codes.
func (s Status) Valid() bool {
	return s >= StatusUnlisted && s <= StatusSynthesized
}

// TxType classifies a history entry.
type TxType string

const (
	TxPurchase TxType = "purchase"
	TxBoxOpen  TxType = "box_open"
	TxAirdrop  TxType = "airdrop"
	TxTransfer TxType = "transfer"
)

// PeerToPeer reports whether buyer and seller must differ for this type.
func (t TxType) PeerToPeer() bool {
	return t == TxPurchase
}

// HistoryEntry records one ownership change. Entries are never modified.
type HistoryEntry struct {
	Timestamp time.Time
	From      string
	To        string
	Price     string
	Type      TxType
}

// Edition is one numbered instance of an NFT collection.
type Edition struct {
	ID           string
	CollectionID string
	Seq          int
	SubID        string
	ShopID       string
	Status       Status
	// Price is the listing price as a decimal string; empty when not listed.
	Price        string
	Owner        string
	BlockchainID string
	History      []HistoryEntry
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FormatSubID renders a sequence number as a zero padded edition id.
func FormatSubID(seq int) string {
	return fmt.Sprintf("%03d", seq)
}

// Clone returns a deep copy.
func (e Edition) Clone() Edition {
	cp := e
	if e.History != nil {
		cp.History = append([]HistoryEntry(nil), e.History...)
	}
	return cp
}

// LastEntry returns the most recent history entry.
func (e Edition) LastEntry() (HistoryEntry, bool) {
	if len(e.History) == 0 {
		return HistoryEntry{}, false
	}
	return e.History[len(e.History)-1], true
}
