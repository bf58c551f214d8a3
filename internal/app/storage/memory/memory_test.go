package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/domain/reservation"
	"github.com/mintline/edition_layer/internal/app/storage"
)

func seedCollection(t *testing.T, store *Store, n int) collection.Collection {
	t.Helper()
	var editions []edition.Edition
	for i := 1; i <= n; i++ {
		editions = append(editions, edition.Edition{
			Seq: i, SubID: edition.FormatSubID(i), Status: edition.StatusUnlisted, Owner: "creator",
		})
	}
	c, err := store.CreateCollection(context.Background(), collection.Collection{
		Kind: collection.KindNFT, Name: "Genesis", Owner: "creator",
		TotalQuantity: n, Status: collection.StatusDraft, LastSeq: n,
	}, editions)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return c
}

func TestIncrementSoldStopsAtTotal(t *testing.T) {
	store := New()
	ctx := context.Background()
	c := seedCollection(t, store, 2)

	for i := 0; i < 2; i++ {
		if _, err := store.IncrementSold(ctx, c.ID); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if _, err := store.IncrementSold(ctx, c.ID); !errors.Is(err, storage.ErrConditionFailed) {
		t.Fatalf("expected condition failure, got %v", err)
	}
	if err := store.DecrementSold(ctx, c.ID); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	got, _ := store.GetCollection(ctx, c.ID)
	if got.SoldQuantity != 1 {
		t.Fatalf("sold = %d, want 1", got.SoldQuantity)
	}
}

func TestIncrementOpenedHonoursLimitAndPool(t *testing.T) {
	store := New()
	ctx := context.Background()
	box, err := store.CreateCollection(ctx, collection.Collection{
		Kind: collection.KindMysteryBox, TotalQuantity: 10, OpenLimit: 2,
		Items: []collection.PoolItem{
			{CollectionID: "a", Weight: 1, Quantity: 1, RemainingQuantity: 1},
			{CollectionID: "b", Weight: 1, Quantity: 5, RemainingQuantity: 5},
		},
	}, nil)
	if err != nil {
		t.Fatalf("create box: %v", err)
	}

	if _, err := store.IncrementOpened(ctx, box.ID, 0); err != nil {
		t.Fatalf("open item 0: %v", err)
	}
	if _, err := store.IncrementOpened(ctx, box.ID, 0); !errors.Is(err, storage.ErrConditionFailed) {
		t.Fatalf("item 0 should be exhausted, got %v", err)
	}
	if _, err := store.IncrementOpened(ctx, box.ID, 1); err != nil {
		t.Fatalf("open item 1: %v", err)
	}
	if _, err := store.IncrementOpened(ctx, box.ID, 1); !errors.Is(err, storage.ErrConditionFailed) {
		t.Fatalf("open limit should block, got %v", err)
	}

	if err := store.DecrementOpened(ctx, box.ID, 1); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	got, _ := store.GetCollection(ctx, box.ID)
	if got.OpenedCount != 1 || got.Items[1].RemainingQuantity != 5 {
		t.Fatalf("unexpected counters: opened=%d remaining=%d", got.OpenedCount, got.Items[1].RemainingQuantity)
	}
}

func TestSetCollectionStatusFaultLeavesNothingChanged(t *testing.T) {
	store := New()
	ctx := context.Background()
	c := seedCollection(t, store, 3)
	editions, _ := store.ListEditions(ctx, c.ID)

	cascade := make([]edition.Edition, len(editions))
	for i, e := range editions {
		e.Status = edition.StatusPublished
		cascade[i] = e
	}

	calls := 0
	store.SetFault(func(op string) error {
		if op != "cascade" {
			return nil
		}
		calls++
		if calls == 3 {
			return errors.New("disk full")
		}
		return nil
	})
	if _, err := store.SetCollectionStatus(ctx, c.ID, collection.StatusPublished, cascade); err == nil {
		t.Fatal("expected injected failure")
	}
	store.SetFault(nil)

	got, _ := store.GetCollection(ctx, c.ID)
	if got.Status != collection.StatusDraft {
		t.Fatalf("collection status changed to %d", got.Status)
	}
	after, _ := store.ListEditions(ctx, c.ID)
	for _, e := range after {
		if e.Status != edition.StatusUnlisted || e.Version != 0 {
			t.Fatalf("edition %s changed: status=%d version=%d", e.SubID, e.Status, e.Version)
		}
	}

	if _, err := store.SetCollectionStatus(ctx, c.ID, collection.StatusPublished, cascade); err != nil {
		t.Fatalf("retry without fault: %v", err)
	}
	after, _ = store.ListEditions(ctx, c.ID)
	for _, e := range after {
		if e.Status != edition.StatusPublished || e.Version != 1 {
			t.Fatalf("edition %s not cascaded: status=%d version=%d", e.SubID, e.Status, e.Version)
		}
	}
}

func TestUpdateEditionsRejectsStaleVersion(t *testing.T) {
	store := New()
	ctx := context.Background()
	c := seedCollection(t, store, 1)
	e, _ := store.GetEdition(ctx, c.ID, "001")

	e.Status = edition.StatusConsigned
	if _, err := store.UpdateEditions(ctx, []edition.Edition{e}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := store.UpdateEditions(ctx, []edition.Edition{e}); !errors.Is(err, storage.ErrConditionFailed) {
		t.Fatalf("expected stale version failure, got %v", err)
	}
}

func TestDeleteReservationSingleWinner(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()
	r := reservation.Reservation{Token: "t1", CollectionID: "c", Kind: reservation.KindSupply, ItemIndex: -1, ExpiresAt: now.Add(-time.Second)}
	if err := store.SaveReservation(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}

	expired, _ := store.ListExpiredReservations(ctx, now)
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired reservation, got %d", len(expired))
	}
	if _, err := store.DeleteReservation(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.DeleteReservation(ctx, "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
}
