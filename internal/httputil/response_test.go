package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mintline/edition_layer/internal/errors"
)

func TestWriteErrorUsesServiceErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperrors.OutOfStock("c1"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OUT_OF_STOCK", body.Error.Code)
	assert.Equal(t, "c1", body.Error.Details["collection_id"])
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	svcErr := WriteError(rec, errors.New("dial tcp: refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "refused")
	assert.Equal(t, apperrors.CodeInternal, svcErr.Code)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	var v struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(httptest.NewRecorder(), req, &v)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}
