package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/", canonicalPath("/"))
	assert.Equal(t, "/collections", canonicalPath("/collections"))
	assert.Equal(t, "/collections/:id", canonicalPath("/collections/abc/editions/001/purchase"))
	assert.Equal(t, "/boxes/:id", canonicalPath("/boxes/instances/9/open"))
	assert.Equal(t, "/me/purchases", canonicalPath("/me/purchases"))
	assert.Equal(t, "/healthz", canonicalPath("/healthz"))
}

func TestRecordReservationCounts(t *testing.T) {
	before := testutil.ToFloat64(reservations.WithLabelValues("supply", "reserved"))
	RecordReservation("supply", "reserved")
	assert.Equal(t, before+1, testutil.ToFloat64(reservations.WithLabelValues("supply", "reserved")))
}

func TestInstrumentHandlerRecordsStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	before := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/boxes/:id", "409"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/boxes/b1/purchase", strings.NewReader("{}")))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/boxes/:id", "409")))
}
