package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrUnauthenticated = errors.New("authentication required")
)

// Session exposes the identity of the caller behind a request. Callers
// without credentials are anonymous and report false.
type Session interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

type contextKey struct{}

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// ContextSession reads the user id stored by the middleware
type ContextSession struct{}

func (ContextSession) CurrentUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	return userID, ok && userID != ""
}

// JWTAuthenticator issues and verifies HS256 bearer tokens whose subject is
// the user id.
type JWTAuthenticator struct {
	secret []byte
	now    func() time.Time
}

// NewJWTAuthenticator creates an authenticator for the given signing secret
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// NewToken signs a token for userID valid for ttl
func (a *JWTAuthenticator) NewToken(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseToken verifies a token and returns its subject
func (a *JWTAuthenticator) ParseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Middleware authenticates bearer tokens. Requests without an Authorization
// header pass through anonymously; a malformed or invalid token is rejected
// with 401.
func (a *JWTAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := extractBearerToken(header)
		if !ok {
			writeUnauthorized(w)
			return
		}

		userID, err := a.ParseToken(raw)
		if err != nil {
			slog.Debug("Rejected bearer token", "path", r.URL.Path, "error", err)
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": ErrInvalidToken.Error()})
}
