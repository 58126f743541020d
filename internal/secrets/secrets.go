// Package secrets provides access to the WhatsApp Business credential.
// The production desktop build keeps the credential in an OS keychain;
// this service consumes it as a black box behind the Store interface.
package secrets

import (
	"context"

	"github.com/develper21/kyvro/internal/config"
)

// Credential is a valid bearer credential for the messaging provider.
type Credential struct {
	AccountID     string
	PhoneNumberID string
	AccessToken   string
}

// Store hands out the current credential. A nil credential with a nil
// error means no credential is configured; callers fail fast as
// unauthorized without touching the network.
type Store interface {
	GetCredential(ctx context.Context) (*Credential, error)
}

type configStore struct {
	cfg *config.WhatsAppConfig
}

// NewConfigStore reads the credential from application config.
func NewConfigStore(cfg *config.WhatsAppConfig) Store {
	return &configStore{cfg: cfg}
}

func (s *configStore) GetCredential(_ context.Context) (*Credential, error) {
	if s.cfg.AccessToken == "" || s.cfg.PhoneNumberID == "" {
		return nil, nil
	}
	return &Credential{
		AccountID:     s.cfg.AccountID,
		PhoneNumberID: s.cfg.PhoneNumberID,
		AccessToken:   s.cfg.AccessToken,
	}, nil
}

// StaticStore is a fixed-credential store, used by tests and tooling.
type StaticStore struct {
	Credential *Credential
}

func (s *StaticStore) GetCredential(_ context.Context) (*Credential, error) {
	return s.Credential, nil
}
