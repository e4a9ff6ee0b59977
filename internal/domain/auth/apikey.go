// Package auth authenticates API keys. Keys are stored as HMAC-SHA256 hashes
// keyed by a server-side pepper, so a leaked table cannot be replayed.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/go-faster/errors"
)

// Scopes understood by the API.
const (
	ScopeWrite = "write"
	ScopeAll   = "*"
)

var (
	// ErrNotFound is returned by repositories when no active key matches.
	ErrNotFound = errors.New("api key not found")
	// ErrUnauthorized is returned when a presented key is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
)

// Key holds the identity and permission data for a stored API key.
type Key struct {
	ID     string
	Hash   string
	Name   string
	Scopes []string
}

// Allows reports whether the key grants scope.
func (k *Key) Allows(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, ScopeAll)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Key, error)
}

// Hash returns the hex HMAC-SHA256 of raw under pepper.
func Hash(pepper []byte, raw string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator validates raw API keys against a Repository.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate resolves raw to a stored key. Any failure, including a store
// error, is reported as ErrUnauthorized wrapped around the cause.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrUnauthorized
	}

	hash := Hash(a.pepper, raw)
	key, err := a.keys.FindByHash(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(ErrUnauthorized, "lookup: %v", err)
	}

	// The repository matched on hash equality; compare again in constant time
	// against what it returned.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(key.Hash)) != 1 {
		return nil, ErrUnauthorized
	}
	return key, nil
}
