package trade

import (
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/edition"
)

// Record is one completed transfer kept for purchase and sales listings.
type Record struct {
	ID           string
	CollectionID string
	SubID        string
	Seller       string
	Buyer        string
	Price        string
	Type         edition.TxType
	// Reference links the trade to the object that caused it, e.g. a box instance id.
	Reference string
	CreatedAt time.Time
}

// TypeBoxPurchase marks the sale of an unopened mystery box. It never appears
// in edition history.
const TypeBoxPurchase edition.TxType = "box_purchase"
