// Package lifecycle holds the edition status machine, display labels for
// every status vocabulary and the collection to edition status cascade.
package lifecycle

import (
	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/mysterybox"
)

// EntityKind selects a label vocabulary.
type EntityKind string

const (
	EntityEdition          EntityKind = "edition"
	EntityCollection       EntityKind = "collection"
	EntityCollectionType   EntityKind = "collection_type"
	EntityBoxInstanceState EntityKind = "box_instance"
)

// UnknownLabel is returned for codes outside a vocabulary.
const UnknownLabel = "unknown"

var labels = map[EntityKind]map[int]string{
	EntityEdition: {
		int(edition.StatusUnlisted):    "unlisted",
		int(edition.StatusConsigned):   "consigned",
		int(edition.StatusLocked):      "locked",
		int(edition.StatusSold):        "sold",
		int(edition.StatusPublished):   "published",
		int(edition.StatusAirdropped):  "airdropped",
		int(edition.StatusSynthesized): "synthesized",
	},
	EntityCollection: {
		int(collection.StatusDraft):         "draft",
		int(collection.StatusPublished):     "published",
		int(collection.StatusSoldOut):       "sold out",
		int(collection.StatusDelisted):      "delisted",
		int(collection.StatusFlashSale):     "flash sale",
		int(collection.StatusPresale):       "presale",
		int(collection.StatusHot):           "hot",
		int(collection.StatusAlmostSoldOut): "almost sold out",
	},
	EntityCollectionType: {
		int(collection.KindNFT):        "NFT",
		int(collection.KindMysteryBox): "Mystery Box",
	},
	EntityBoxInstanceState: {
		int(mysterybox.StateUnopened): "unopened",
		int(mysterybox.StateOpening):  "opening",
		int(mysterybox.StateOpened):   "opened",
	},
}

// LabelFor returns the display label for a status code, or UnknownLabel.
func LabelFor(kind EntityKind, code int) string {
	if l, ok := labels[kind][code]; ok {
		return l
	}
	return UnknownLabel
}

// EditionLabel is a shorthand for LabelFor(EntityEdition, ...).
func EditionLabel(s edition.Status) string { return LabelFor(EntityEdition, int(s)) }

// CollectionLabel is a shorthand for LabelFor(EntityCollection, ...).
func CollectionLabel(s collection.Status) string { return LabelFor(EntityCollection, int(s)) }

// KindLabel is a shorthand for LabelFor(EntityCollectionType, ...).
func KindLabel(k collection.Kind) string { return LabelFor(EntityCollectionType, int(k)) }

var transitions = map[edition.Status][]edition.Status{
	edition.StatusUnlisted: {
		edition.StatusConsigned, edition.StatusPublished, edition.StatusSold,
		edition.StatusAirdropped, edition.StatusSynthesized,
	},
	edition.StatusLocked: {
		edition.StatusConsigned, edition.StatusPublished, edition.StatusSold,
		edition.StatusAirdropped, edition.StatusSynthesized,
	},
	edition.StatusConsigned: {edition.StatusSold, edition.StatusAirdropped},
	edition.StatusPublished: {edition.StatusSold, edition.StatusAirdropped},
	// sold, airdropped and synthesized are terminal.
}

// CanTransition reports whether an edition may move from one status to another.
// Unknown codes never transition.
func CanTransition(from, to edition.Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CascadeTarget returns the status an edition takes when its collection moves
// to target, and whether the edition changes at all.
//
// Publishing a collection publishes every unlisted or locked edition. Moving
// back to draft or delisted locks every published edition. Other collection
// statuses leave editions untouched.
func CascadeTarget(target collection.Status, current edition.Status) (edition.Status, bool) {
	switch target {
	case collection.StatusPublished:
		if current == edition.StatusUnlisted || current == edition.StatusLocked {
			return edition.StatusPublished, true
		}
	case collection.StatusDraft, collection.StatusDelisted:
		if current == edition.StatusPublished {
			return edition.StatusLocked, true
		}
	}
	return current, false
}

// PlanCascade returns copies of the editions whose status changes when the
// collection moves to target. Inputs are not modified.
func PlanCascade(target collection.Status, editions []edition.Edition) []edition.Edition {
	var changed []edition.Edition
	for _, e := range editions {
		next, ok := CascadeTarget(target, e.Status)
		if !ok {
			continue
		}
		cp := e.Clone()
		cp.Status = next
		changed = append(changed, cp)
	}
	return changed
}
