package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mintline/edition_layer/pkg/logger"
)

var testSecret = []byte("test-secret")

func testLogger() *logger.Logger {
	return logger.New("test", logger.LoggingConfig{Level: "error", Output: io.Discard})
}

func generateTestToken(t *testing.T, secret []byte, userID, role string, ttl time.Duration) string {
	t.Helper()
	token, err := SignToken(secret, "", userID, role, ttl)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", GetUserID(r.Context()))
		w.Header().Set("X-Role", GetUserRole(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewAuthMiddleware(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), []string{"/healthz", "/metrics"})
	if m == nil {
		t.Fatal("NewAuthMiddleware() returned nil")
	}
	if len(m.skipPaths) != 2 || !m.skipPaths["/healthz"] {
		t.Errorf("skipPaths = %v", m.skipPaths)
	}
}

func TestAuthMiddleware_Handler_SkipPaths(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), []string{"/healthz"})
	rec := httptest.NewRecorder()
	m.Handler(echoCaller()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddleware_Handler_MissingAuthHeader(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), nil)
	rec := httptest.NewRecorder()
	m.Handler(echoCaller()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me/boxes", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_Handler_InvalidAuthHeaderFormat(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), nil)
	for _, header := range []string{"Token abc", "Bearer", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/me/boxes", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		m.Handler(echoCaller()).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}

func TestAuthMiddleware_Handler_ValidToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), nil)
	req := httptest.NewRequest(http.MethodGet, "/me/boxes", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, testSecret, "user-1", "owner", time.Hour))
	rec := httptest.NewRecorder()
	m.Handler(echoCaller()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-User"); got != "user-1" {
		t.Errorf("user = %q", got)
	}
	if got := rec.Header().Get("X-Role"); got != "owner" {
		t.Errorf("role = %q", got)
	}
}

func TestAuthMiddleware_Handler_ExpiredToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), nil)
	req := httptest.NewRequest(http.MethodGet, "/me/boxes", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, testSecret, "user-1", "", -time.Hour))
	rec := httptest.NewRecorder()
	m.Handler(echoCaller()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_Handler_WrongSigningKey(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), nil)
	req := httptest.NewRequest(http.MethodGet, "/me/boxes", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, []byte("other"), "user-1", "", time.Hour))
	rec := httptest.NewRecorder()
	m.Handler(echoCaller()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_validateToken_RejectsNoneAlgorithm(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), nil)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.validateToken(raw); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestAuthMiddleware_validateToken_RequiresUserID(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "", testLogger(), nil)
	if _, err := m.validateToken(generateTestToken(t, testSecret, "", "admin", time.Hour)); err == nil {
		t.Fatal("expected empty user_id to be rejected")
	}
}

func TestAuthMiddleware_validateToken_Issuer(t *testing.T) {
	m := NewAuthMiddleware(testSecret, "marketd", testLogger(), nil)
	good, _ := SignToken(testSecret, "marketd", "user-1", "", time.Hour)
	bad, _ := SignToken(testSecret, "someone-else", "user-1", "", time.Hour)

	if _, err := m.validateToken(good); err != nil {
		t.Errorf("matching issuer rejected: %v", err)
	}
	if _, err := m.validateToken(bad); err == nil {
		t.Error("foreign issuer accepted")
	}
}

func TestRequireUserID(t *testing.T) {
	h := RequireUserID(echoCaller())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.WithUserID(context.Background(), "user-1"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}
