package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/mintline/edition_layer/internal/app"
	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/config"
)

const testCatalog = `
collections:
  - key: genesis
    kind: nft
    name: Genesis
    price: "12.5"
    total_quantity: 4
    status: published
  - key: starter-box
    kind: mystery_box
    name: Starter Box
    price: "3"
    owner: studio
    total_quantity: 2
    open_limit: 2
    status: flash_sale
    items:
      - collection: genesis
        weight: 1
        quantity: 2
`

func newSeedApp(t *testing.T) *app.Application {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{ReservationTTL: time.Minute, SweepSchedule: "@every 1h", AllocatorSeed: 3}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, application.Start(ctx))
	t.Cleanup(func() { _ = application.Stop(ctx) })
	return application
}

func TestSeedCatalogCreatesCollections(t *testing.T) {
	cat, err := config.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	application := newSeedApp(t)
	ctx := context.Background()

	var out bytes.Buffer
	ids, err := seedCatalog(ctx, application.Allocation, cat, "creator", &out)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Contains(t, out.String(), "2/2")

	nft, err := application.Allocation.GetCollection(ctx, ids["genesis"])
	require.NoError(t, err)
	assert.Equal(t, collection.KindNFT, nft.Kind)
	assert.Equal(t, "creator", nft.Owner)
	assert.Equal(t, collection.StatusPublished, nft.Status)

	editions, err := application.Allocation.ListEditions(ctx, nft.ID, true)
	require.NoError(t, err)
	assert.Len(t, editions, 4)

	box, err := application.Allocation.GetCollection(ctx, ids["starter-box"])
	require.NoError(t, err)
	assert.Equal(t, collection.KindMysteryBox, box.Kind)
	assert.Equal(t, "studio", box.Owner)
	assert.Equal(t, collection.StatusFlashSale, box.Status)
	require.Len(t, box.Items, 1)
	assert.Equal(t, nft.ID, box.Items[0].CollectionID)
}

func TestSeedCatalogRequiresOwner(t *testing.T) {
	cat, err := config.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)
	application := newSeedApp(t)

	ids, err := seedCatalog(context.Background(), application.Allocation, cat, "", &bytes.Buffer{})
	require.Error(t, err)
	assert.Empty(t, ids)
}

func TestParseCollectionStatus(t *testing.T) {
	cases := map[string]collection.Status{
		"draft":           collection.StatusDraft,
		"Published":       collection.StatusPublished,
		"sold_out":        collection.StatusSoldOut,
		"almost sold out": collection.StatusAlmostSoldOut,
	}
	for raw, want := range cases {
		got, err := parseCollectionStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := parseCollectionStatus("archived")
	assert.Error(t, err)
}
