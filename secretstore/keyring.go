package secretstore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/key-custody/interfaces"
	"github.com/zalando/go-keyring"
)

// KeyringStore keeps secrets in the operating system's credential store:
// macOS Keychain, the Secret Service on Linux, or Windows Credential Manager.
type KeyringStore struct {
	log *slog.Logger
}

// NewKeyringStore creates a store backed by the OS keyring.
func NewKeyringStore(log *slog.Logger) *KeyringStore {
	return &KeyringStore{log: log}
}

// Get returns the secret or ErrSecretNotFound.
func (k *KeyringStore) Get(service, identity string) (string, error) {
	secret, err := keyring.Get(service, identity)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			k.log.Debug("Keyring entry not found",
				slog.String("service", service),
				slog.String("identity", identity))
			return "", interfaces.ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return secret, nil
}

// Put stores the secret. The keyring replaces an existing entry atomically for
// the single slot; there is no cross-slot transaction.
func (k *KeyringStore) Put(service, identity, secret string) error {
	if err := keyring.Set(service, identity, secret); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// Name returns identifier for logging.
func (k *KeyringStore) Name() string {
	return "keyring"
}
