package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContextCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	log := New("ledger", LoggingConfig{Level: "debug", Format: "json", Output: &buf})

	ctx := WithRole(WithUserID(WithTraceID(context.Background(), "trace-1"), "user-7"), "owner")
	log.WithContext(ctx).Info("reserved")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ledger", line["module"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "user-7", line["user_id"])
	assert.Equal(t, "owner", line["role"])
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New("http", LoggingConfig{Level: "info", Output: &buf})

	log.LogRequest(context.Background(), http.MethodPost, "/boxes/1/purchase", http.StatusConflict, 3*time.Millisecond)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warning", line["level"])
	assert.EqualValues(t, http.StatusConflict, line["status"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	log := New("x", LoggingConfig{Level: "loud"})
	assert.Equal(t, "info", log.GetLevel().String())
	assert.Equal(t, "x", log.Named("x").Module())
}
