package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xenking/platter/internal/domain/auth"
)

// APIKeys returns the auth.Repository view of the store.
func (s *Store) APIKeys() auth.Repository { return apikeyRepo{s} }

type apikeyRepo struct{ s *Store }

func (r apikeyRepo) FindByHash(ctx context.Context, hash string) (out *auth.APIKeyInfo, err error) {
	err = r.s.view(ctx, func(st *state) error {
		k, ok := st.apikeys[hash]
		if !ok {
			return auth.ErrNotFound
		}
		out = &k
		return nil
	})
	return out, err
}

func (r apikeyRepo) Create(ctx context.Context, key *auth.APIKeyInfo) error {
	return r.s.view(ctx, func(st *state) error {
		if key.ID == "" {
			key.ID = uuid.New().String()
		}
		st.apikeys[key.KeyHash] = *key
		return nil
	})
}
