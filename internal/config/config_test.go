package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Ledger.ReservationTTL)
	assert.Equal(t, "@every 30s", cfg.Ledger.SweepSchedule)
	assert.False(t, cfg.UsePostgres())
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT=9090\nLEDGER_RESERVATION_TTL=45s\nCORS_ALLOWED_ORIGINS=https://a.example, https://b.example\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("LEDGER_RESERVATION_TTL")
		os.Unsetenv("CORS_ALLOWED_ORIGINS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Ledger.ReservationTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.Origins())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Ledger.ReservationTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RateLimit.Burst = 0
	assert.Error(t, cfg.Validate())
}

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(`
collections:
  - key: dragons
    kind: nft
    name: Dragons
    price: "10"
    owner: creator
    total_quantity: 5
    status: published
  - key: dragon-box
    kind: mystery_box
    name: Dragon Box
    price: "3"
    owner: creator
    total_quantity: 5
    open_limit: 5
    items:
      - collection: dragons
        weight: 70
        quantity: 5
`))
	require.NoError(t, err)
	require.Len(t, cat.Collections, 2)
	assert.Equal(t, "published", cat.Collections[0].Status)
	assert.Equal(t, 70, cat.Collections[1].Items[0].Weight)
}

func TestCatalogRejectsForwardReference(t *testing.T) {
	_, err := ParseCatalog([]byte(`
collections:
  - key: box
    kind: mystery_box
    name: Box
    items:
      - collection: later
        weight: 1
        quantity: 1
  - key: later
    kind: nft
    name: Later
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "later")
}
