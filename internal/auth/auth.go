// Package auth guards the control surface with a single shared-secret
// bearer token, the same bcrypt-hashed-secret plus JWT session pattern the
// multi-user server used, simplified down to one operator credential.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the payload of a session token minted after a successful
// bearer-token exchange.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Service validates the control surface's shared secret and mints short
// lived session tokens for callers that would rather not resend the raw
// secret on every request.
type Service struct {
	enabled    bool
	tokenHash  []byte
	signingKey []byte
}

// NewService builds a Service. If rawToken is empty, the returned service
// has authentication disabled and Middleware passes every request through.
func NewService(rawToken string) (*Service, error) {
	if rawToken == "" {
		return &Service{enabled: false}, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &Service{
		enabled:    true,
		tokenHash:  hash,
		signingKey: hash,
	}, nil
}

// Enabled reports whether a shared secret was configured.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// IssueSession mints a 1-hour session JWT once the raw shared secret has
// been presented.
func (s *Service) IssueSession(rawToken string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(s.tokenHash, []byte(rawToken)); err != nil {
		return "", errors.New("invalid credential")
	}

	claims := Claims{
		Subject: "control-surface",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

func (s *Service) validateSession(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return errors.New("invalid session token")
	}
	return nil
}

// Middleware requires either the raw shared secret or a session token
// minted by IssueSession in the Authorization header.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			sendError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) == nil {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authedKey, true)))
			return
		}

		if s.validateSession(token) == nil {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authedKey, true)))
			return
		}

		sendError(w, http.StatusUnauthorized, "invalid credential")
	})
}

type contextKey string

const authedKey contextKey = "auth_ok"

func sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": message})
}
