package migrations

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSourceIsOrdered(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, ident, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "inventory", ident)

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	for _, table := range []string{"collections", "pool_items", "editions", "edition_history", "box_instances", "trades", "reservations"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

func TestEmbeddedDownDropsEverything(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	down, _, err := src.ReadDown(1)
	require.NoError(t, err)
	defer down.Close()

	body, err := io.ReadAll(down)
	require.NoError(t, err)
	assert.Equal(t, 7, strings.Count(string(body), "DROP TABLE IF EXISTS"))
}
