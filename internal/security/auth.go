package security

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/clawinfra/clawrouter/internal/config"
)

var (
	// ErrMissingToken is returned when no Authorization header is present.
	ErrMissingToken = errors.New("security: missing authorization token")
	// ErrInvalidToken is returned when the JWT is malformed or its signature is invalid.
	ErrInvalidToken = errors.New("security: invalid token")
	// ErrExpiredToken is returned when the JWT has expired.
	ErrExpiredToken = errors.New("security: token expired")
	// ErrBadAdminKey is returned when the presented admin key does not match.
	ErrBadAdminKey = errors.New("security: admin key rejected")
)

// Auth guards the management API. With no admin key hash configured the
// daemon runs open, the local default.
type Auth struct {
	keyHash  string
	secret   []byte
	tokenTTL time.Duration
}

// New builds an Auth from the security config.
func New(cfg config.SecurityConfig) *Auth {
	ttl := time.Duration(cfg.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{
		keyHash:  cfg.AdminKeyHash,
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: ttl,
	}
}

// Enabled reports whether management auth is active.
func (a *Auth) Enabled() bool {
	return a.keyHash != ""
}

// IssueToken verifies the admin key against its bcrypt hash and returns
// a signed bearer token.
func (a *Auth) IssueToken(adminKey string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("security: auth is not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.keyHash), []byte(adminKey)); err != nil {
		return "", ErrBadAdminKey
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and validates a bearer token.
func (a *Auth) ValidateToken(tokenStr string) error {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects requests without a valid Bearer token. A no-op when
// auth is disabled.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, ErrMissingToken.Error(), http.StatusUnauthorized)
			return
		}
		if err := a.ValidateToken(strings.TrimPrefix(header, "Bearer ")); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
