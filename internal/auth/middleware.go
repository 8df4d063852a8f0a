// Package auth validates bearer tokens issued by the identity service and
// exposes the authenticated user id to downstream handlers. Token issuance,
// refresh, and credential storage live outside this application.
package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tidebill/tidebill/internal/platform/httpx"
)

// Middleware authenticates requests using HMAC-signed bearer tokens.
type Middleware struct {
	secret []byte
	logger *slog.Logger
}

// NewMiddleware constructs the auth middleware.
func NewMiddleware(secret string, logger *slog.Logger) *Middleware {
	return &Middleware{secret: []byte(secret), logger: logger}
}

// Require rejects requests without a valid bearer token.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.authenticate(r)
		if err != nil {
			m.logger.Warn("authentication failed", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (int64, error) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return 0, errors.New("missing token")
	}

	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errors.New("missing subject")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.New("malformed subject")
	}
	return userID, nil
}
