package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/auth"
)

// ErrUnauthorized is returned for a missing, unknown or mismatching key.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves operator API keys by their HMAC-SHA256 hash.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given key repository and
// HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate returns the key's grants. The stored hash is compared in
// constant time against the computed one.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}
	computed := auth.HashKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(ctx, computed)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup api key")
	}

	want, err := hex.DecodeString(computed)
	if err != nil {
		return nil, ErrUnauthorized
	}
	got, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}

type operatorHandler func(w http.ResponseWriter, r *http.Request, key *auth.APIKeyInfo)

// operator authenticates the api_key header before calling next.
func (h *Handler) operator(next operatorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := h.auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if errors.Is(err, ErrUnauthorized) {
			writeMessage(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		if err != nil {
			writeError(w, r, "authenticate", err)
			return
		}
		zctx.From(r.Context()).Debug("Operator authenticated",
			zap.String("key_id", key.ID),
			zap.String("key_name", key.Name),
		)
		next(w, r, key)
	}
}

// authorize reports whether key holds scope for storeID, writing 403 if not.
func authorize(w http.ResponseWriter, key *auth.APIKeyInfo, scope, storeID string) bool {
	if !key.HasScope(scope) || !key.CanManage(storeID) {
		writeMessage(w, http.StatusForbidden, "api key not allowed to "+scope+" for this store")
		return false
	}
	return true
}
