// Package auth models operator API keys.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by a Repository when no key has the hash.
var ErrNotFound = errors.New("api key not found")

// Scopes granted to operator keys.
const (
	ScopeOrdersStatus = "orders:status"
	ScopeCouponsWrite = "coupons:write"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	// StoreID restricts the key to one store; empty grants every store.
	StoreID string
	Scopes  []string
}

// HasScope reports whether the key was granted scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// CanManage reports whether the key may act on storeID.
func (k *APIKeyInfo) CanManage(storeID string) bool {
	return k.StoreID == "" || k.StoreID == storeID
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	// Create stores a key; KeyHash must already be set.
	Create(ctx context.Context, key *APIKeyInfo) error
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// APIKeyInfo.KeyHash.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
