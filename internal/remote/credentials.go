package remote

import (
	"fmt"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

// tokenService is the keyring service name bearer tokens are stored under,
// scoped to the generalized remote object store rather than SMB
// credentials specifically.
const tokenService = "anemonesync-object-store-token"

// TokenStore persists the bearer token used to authenticate against the
// remote object store. The token value never touches the database; only a
// reference name does, via the token table's reference_name column.
type TokenStore struct {
	logger *zap.Logger
}

// NewTokenStore builds a keyring-backed token store.
func NewTokenStore(logger *zap.Logger) *TokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenStore{logger: logger.With(zap.String("component", "token-store"))}
}

// Save stores a bearer token under referenceName.
func (t *TokenStore) Save(referenceName, token string) error {
	if referenceName == "" {
		return fmt.Errorf("reference name cannot be empty")
	}
	if err := keyring.Set(tokenService, referenceName, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	t.logger.Info("token saved", zap.String("reference", referenceName))
	return nil
}

// Load retrieves the bearer token stored under referenceName.
func (t *TokenStore) Load(referenceName string) (string, error) {
	token, err := keyring.Get(tokenService, referenceName)
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// Delete removes the token stored under referenceName.
func (t *TokenStore) Delete(referenceName string) error {
	if err := keyring.Delete(tokenService, referenceName); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	t.logger.Info("token deleted", zap.String("reference", referenceName))
	return nil
}
