// Package secrets stores OKX credentials in the system keyring.
// Supported platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"okxrest/pkg/core"
)

// DefaultService is the keyring service name used when none is given.
const DefaultService = "okxrest"

const (
	userAPIKey     = "api_key"
	userSecretKey  = "secret_key"
	userPassphrase = "passphrase"
)

// ErrNotFound is returned when a credential entry is missing.
var ErrNotFound = errors.New("credential not found in keyring")

// Store reads and writes one credential set under a keyring service.
type Store struct {
	service string
}

// NewStore returns a Store for service, or DefaultService if empty.
func NewStore(service string) *Store {
	if service == "" {
		service = DefaultService
	}
	return &Store{service: service}
}

// Service returns the keyring service name.
func (s *Store) Service() string {
	return s.service
}

// Load returns the stored credentials. All three entries must exist.
func (s *Store) Load() (*core.Credentials, error) {
	var creds core.Credentials

	entries := []struct {
		user string
		dest *string
	}{
		{userAPIKey, &creds.APIKey},
		{userSecretKey, &creds.SecretKey},
		{userPassphrase, &creds.Passphrase},
	}
	for _, e := range entries {
		value, err := keyring.Get(s.service, e.user)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, s.service, e.user)
			}
			return nil, fmt.Errorf("keyring get %s: %w", e.user, err)
		}
		*e.dest = value
	}

	return &creds, nil
}

// Save stores creds, overwriting any previous entries.
func (s *Store) Save(creds *core.Credentials) error {
	if creds == nil || creds.APIKey == "" || creds.SecretKey == "" || creds.Passphrase == "" {
		return core.ErrNoCredentials
	}

	entries := map[string]string{
		userAPIKey:     creds.APIKey,
		userSecretKey:  creds.SecretKey,
		userPassphrase: creds.Passphrase,
	}
	for user, value := range entries {
		if err := keyring.Set(s.service, user, value); err != nil {
			return fmt.Errorf("keyring set %s: %w", user, err)
		}
	}

	return nil
}

// Delete removes the stored credentials. Missing entries are ignored.
func (s *Store) Delete() error {
	for _, user := range []string{userAPIKey, userSecretKey, userPassphrase} {
		if err := keyring.Delete(s.service, user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %s: %w", user, err)
		}
	}
	return nil
}
