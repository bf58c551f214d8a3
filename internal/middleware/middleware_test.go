package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mintline/edition_layer/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Trace", logger.TraceID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, testLogger())
	h := rl.Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/collections/1", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	// another client keeps its own bucket
	req := httptest.NewRequest(http.MethodGet, "/collections/1", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client status = %d", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.example.com", "https://*.mintline.io"})
	h := m.Handler(okHandler())

	cases := map[string]bool{
		"https://app.example.com":  true,
		"https://shop.mintline.io": true,
		"https://evil.example.com": false,
		"https://mintline.io.evil": false,
	}
	for origin, allowed := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin") == origin
		if got != allowed {
			t.Errorf("origin %s: allowed = %v, want %v", origin, got, allowed)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
}

func TestTracingMiddlewarePropagatesTraceID(t *testing.T) {
	h := NewTracingMiddleware(testLogger()).Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "trace-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(TraceHeader) != "trace-abc" || rec.Header().Get("X-Seen-Trace") != "trace-abc" {
		t.Fatalf("trace id not propagated: %v", rec.Header())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(TraceHeader) == "" {
		t.Fatal("expected generated trace id")
	}
}
