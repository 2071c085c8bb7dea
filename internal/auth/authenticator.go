// Package auth validates the bearer JWTs issued by the external identity
// collaborator (spec.md §1 scopes credential issuance out of this core).
// Generalized from the teacher's Authenticator: the same layered-cache
// shape (check memory before doing the expensive thing), with JWT
// signature verification standing in for the teacher's Redis API-key
// lookup as the expensive step.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fleettrack/internal/apperr"
)

// Identity is the session principal recovered from a validated token.
type Identity struct {
	UserID    string
	VehicleID string
	IsAdmin   bool
}

type claims struct {
	UserID    string `json:"user_id"`
	VehicleID string `json:"vehicle_id"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type cacheEntry struct {
	identity  Identity
	expiresAt time.Time
}

// Authenticator verifies bearer tokens against a shared secret, caching
// the decoded identity in memory for cacheTTL to avoid re-parsing and
// re-verifying the same token on every request within a session.
type Authenticator struct {
	secret     []byte
	cacheTTL   time.Duration
	localCache sync.Map
}

func New(secret string, cacheTTL time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), cacheTTL: cacheTTL}
}

// Validate decodes and verifies token, returning AuthRequired with
// CodeTokenExpired when the token parses but has expired, and a generic
// AuthRequired for any other invalidity.
func (a *Authenticator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, apperr.AuthRequired("missing bearer token", "")
	}

	if raw, ok := a.localCache.Load(token); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			id := entry.identity
			return &id, nil
		}
		a.localCache.Delete(token)
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.AuthRequired("token expired", apperr.CodeTokenExpired)
		}
		return nil, apperr.AuthRequired("invalid token", "")
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, apperr.AuthRequired("invalid token", "")
	}

	id := Identity{UserID: c.UserID, VehicleID: c.VehicleID, IsAdmin: c.IsAdmin}
	a.localCache.Store(token, cacheEntry{identity: id, expiresAt: time.Now().Add(a.cacheTTL)})
	return &id, nil
}
