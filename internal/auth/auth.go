package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "acc"
	TokenTypeRefresh = "ref"
)

// Claims are the access-token claims issued by the admin backend.
type Claims struct {
	Display      string   `json:"display"`
	Capabilities []string `json:"cap,omitempty"`
	Type         string   `json:"typ"`
	jwt.RegisteredClaims
}

// ParseUnverified decodes token claims without checking the signature. The
// console never holds the signing key; the backend verifies every request.
func ParseUnverified(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	claims.Capabilities = dedupe(claims.Capabilities)
	return claims, nil
}

func validateClaims(claims *Claims) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.Type != "" && claims.Type != TokenTypeAccess {
		return errors.New("not an access token")
	}
	return nil
}

// ExpiresIn returns the time left before the token expires, or ok=false when
// the token carries no exp claim.
func (c *Claims) ExpiresIn(now time.Time) (time.Duration, bool) {
	if c.ExpiresAt == nil {
		return 0, false
	}
	return c.ExpiresAt.Time.Sub(now), true
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
