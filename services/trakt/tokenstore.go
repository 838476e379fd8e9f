package trakt

import (
	"fmt"

	"github.com/bequbed/jellyfin-trakt-sync/models"
)

// CredentialPersister reads and writes the credential blob.
type CredentialPersister interface {
	LoadCredential() (models.Credential, error)
	SaveCredential(models.Credential) error
}

// TokenStore writes every credential change through to the persister.
type TokenStore struct {
	persister CredentialPersister
}

func NewTokenStore(persister CredentialPersister) *TokenStore {
	return &TokenStore{persister: persister}
}

// Load reads the persisted credential.
func (s *TokenStore) Load() (models.Credential, error) {
	cred, err := s.persister.LoadCredential()
	if err != nil {
		return models.Credential{}, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}

// Save persists cred.
func (s *TokenStore) Save(cred models.Credential) error {
	if err := s.persister.SaveCredential(cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
