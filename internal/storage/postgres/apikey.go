package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/platter/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository looks up operator API keys by HMAC hash.
type APIKeyRepository struct {
	db *DB
}

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, store_id, scopes
FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, store_id, scopes)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (key_hash) DO UPDATE SET
    name = EXCLUDED.name,
    store_id = EXCLUDED.store_id,
    scopes = EXCLUDED.scopes,
    active = TRUE
RETURNING id`
)

func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		k       auth.APIKeyInfo
		storeID *string
	)
	err := r.db.q(ctx).QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(&k.ID, &k.KeyHash, &k.Name, &storeID, &k.Scopes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	k.StoreID = deref(storeID)
	return &k, nil
}

// Create stores the key, replacing the grants of an existing key with the
// same hash.
func (r *APIKeyRepository) Create(ctx context.Context, key *auth.APIKeyInfo) error {
	id := key.ID
	if id == "" {
		id = uuid.New().String()
	}
	scopes := key.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	err := r.db.q(ctx).QueryRow(ctx, upsertAPIKeySQL, id, key.KeyHash, key.Name, nullString(key.StoreID), scopes).Scan(&key.ID)
	if err != nil {
		return fmt.Errorf("upsert api key: %w", err)
	}
	return nil
}
