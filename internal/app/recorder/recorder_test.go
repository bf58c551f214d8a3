package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/storage/memory"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

func setup(t *testing.T, status edition.Status) (*Recorder, *memory.Store, string) {
	t.Helper()
	store := memory.New()
	c, err := store.CreateCollection(context.Background(), collection.Collection{
		Kind: collection.KindNFT, Owner: "alice", TotalQuantity: 1,
	}, []edition.Edition{{Seq: 1, SubID: "001", Owner: "alice", Status: status, Price: "10"}})
	require.NoError(t, err)
	return New(store, store, nil), store, c.ID
}

func TestTransferAppendsHistoryAndTrade(t *testing.T) {
	rec, store, cid := setup(t, edition.StatusConsigned)
	ctx := context.Background()

	got, err := rec.Transfer(ctx, Transfer{
		CollectionID: cid, SubID: "001", From: "alice", To: "bob",
		Price: "10", NewStatus: edition.StatusSold, Type: edition.TxPurchase,
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Owner)
	assert.Equal(t, edition.StatusSold, got.Status)
	assert.Empty(t, got.Price)
	require.Len(t, got.History, 1)
	assert.Equal(t, edition.HistoryEntry{
		Timestamp: got.History[0].Timestamp, From: "alice", To: "bob", Price: "10", Type: edition.TxPurchase,
	}, got.History[0])

	bought, err := store.ListTradesByBuyer(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bought, 1)
	assert.Equal(t, "alice", bought[0].Seller)
}

func TestTransferRejectsSelfPurchase(t *testing.T) {
	rec, store, cid := setup(t, edition.StatusConsigned)
	_, err := rec.Transfer(context.Background(), Transfer{
		CollectionID: cid, SubID: "001", From: "alice", To: "alice",
		NewStatus: edition.StatusSold, Type: edition.TxPurchase,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSelfTransaction))

	e, _ := store.GetEdition(context.Background(), cid, "001")
	assert.Equal(t, "alice", e.Owner)
	assert.Empty(t, e.History)
}

func TestTransferOwnershipMismatch(t *testing.T) {
	rec, _, cid := setup(t, edition.StatusPublished)
	_, err := rec.Transfer(context.Background(), Transfer{
		CollectionID: cid, SubID: "001", From: "mallory", To: "bob",
		NewStatus: edition.StatusSold, Type: edition.TxPurchase,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOwnershipMismatch))
}

func TestTransferInvalidTransitionLeavesEdition(t *testing.T) {
	rec, store, cid := setup(t, edition.StatusSold)
	ctx := context.Background()
	before, _ := store.GetEdition(ctx, cid, "001")

	_, err := rec.Transfer(ctx, Transfer{
		CollectionID: cid, SubID: "001", From: "alice", To: "bob",
		NewStatus: edition.StatusConsigned, Type: edition.TxTransfer,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))

	after, _ := store.GetEdition(ctx, cid, "001")
	assert.Equal(t, before, after)
}

func TestTransferHistoryIsMonotonic(t *testing.T) {
	rec, store, cid := setup(t, edition.StatusUnlisted)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	rec.now = func() time.Time { return future }
	_, err := rec.Transfer(ctx, Transfer{
		CollectionID: cid, SubID: "001", From: "alice", To: "alice",
		NewStatus: edition.StatusPublished, Type: edition.TxTransfer,
	})
	require.NoError(t, err)

	rec.now = func() time.Time { return future.Add(-time.Minute) }
	got, err := rec.Transfer(ctx, Transfer{
		CollectionID: cid, SubID: "001", From: "alice", To: "carol",
		Price: "0", NewStatus: edition.StatusAirdropped, Type: edition.TxAirdrop,
	})
	require.NoError(t, err)
	require.Len(t, got.History, 2)
	assert.False(t, got.History[1].Timestamp.Before(got.History[0].Timestamp))

	stored, _ := store.GetEdition(ctx, cid, "001")
	assert.Equal(t, got.History, stored.History)
}

func TestTransferNotFound(t *testing.T) {
	rec, _, cid := setup(t, edition.StatusPublished)
	_, err := rec.Transfer(context.Background(), Transfer{
		CollectionID: cid, SubID: "999", From: "alice", To: "bob",
		NewStatus: edition.StatusSold, Type: edition.TxPurchase,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
