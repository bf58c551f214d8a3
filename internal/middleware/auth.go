// Package middleware provides HTTP middleware for the marketplace API
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/mintline/edition_layer/internal/errors"
	"github.com/mintline/edition_layer/internal/httputil"
	"github.com/mintline/edition_layer/pkg/logger"
)

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies HS256 bearer tokens and stores the caller's id and
// role in the request context.
type AuthMiddleware struct {
	secret    []byte
	issuer    string
	logger    *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(secret []byte, issuer string, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		secret:    secret,
		issuer:    issuer,
		logger:    log,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, apperrors.Unauthenticated("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.respondError(w, r, apperrors.Unauthenticated("invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logger.WithUserID(r.Context(), claims.UserID)
		if claims.Role != "" {
			ctx = logger.WithRole(ctx, claims.Role)
		}

		m.logger.WithContext(ctx).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, apperrors.InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperrors.InvalidToken(nil)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, apperrors.InvalidToken(nil).WithDetails("reason", "user_id claim is empty")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := httputil.WriteError(w, err)
	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": svcErr.HTTPStatus,
	}).Warn("authentication failed")
}

// SignToken issues an HS256 token for userID with the given role.
func SignToken(secret []byte, issuer, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logger.UserID(ctx)
}

// GetUserRole extracts user role from context
func GetUserRole(ctx context.Context) string {
	return logger.Role(ctx)
}

// RequireUserID rejects requests that reached it without an authenticated caller.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			httputil.WriteError(w, apperrors.Unauthenticated(""))
			return
		}
		next.ServeHTTP(w, r)
	})
}
