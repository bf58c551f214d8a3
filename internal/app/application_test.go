package app

import (
	"context"
	"testing"
	"time"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/services/allocation"
)

func TestApplicationWiresMemoryStores(t *testing.T) {
	application, err := New(Stores{}, Options{ReservationTTL: time.Minute, SweepSchedule: "@every 1h", AllocatorSeed: 7}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	names := application.Services()
	if len(names) != 2 || names[0] != "inventory-ledger" || names[1] != "allocation-sweeper" {
		t.Fatalf("unexpected services %v", names)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer application.Stop(ctx)

	admin := allocation.Caller{ID: "admin", Role: allocation.RoleAdmin}
	c, err := application.Allocation.CreateCollection(ctx, admin, allocation.CreateCollectionRequest{
		Kind:          collection.KindNFT,
		Name:          "wired",
		Price:         "1",
		TotalQuantity: 3,
	})
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	editions, err := application.Allocation.ListEditions(ctx, c.ID, false)
	if err != nil {
		t.Fatalf("list editions: %v", err)
	}
	if len(editions) != 3 {
		t.Fatalf("expected 3 editions, got %d", len(editions))
	}
	if application.Ledger.TTL() != time.Minute {
		t.Fatalf("ttl not applied: %v", application.Ledger.TTL())
	}
}

func TestApplicationAttachRejectsDuplicateNames(t *testing.T) {
	application, err := New(Stores{}, Options{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Attach(application.Sweeper); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
