package seal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"
	"github.com/ruteri/key-custody/interfaces"
)

const (
	// MachineKeyLength is the size of the machine-bound symmetric key.
	MachineKeyLength = 32

	// DefaultServiceID and DefaultIdentityID name the credential store slot.
	DefaultServiceID  = "web3_credentials"
	DefaultIdentityID = "deployer_key"
)

// MachineKey is the symmetric key kept in the host credential store. In process it
// lives in a memguard buffer; it is never exported or embedded in a token.
type MachineKey struct {
	buf *memguard.LockedBuffer
}

// NewMachineKeyFromBytes moves key into protected memory. The source slice is wiped.
func NewMachineKeyFromBytes(key []byte) (*MachineKey, error) {
	if len(key) != MachineKeyLength {
		memguard.WipeBytes(key)
		return nil, fmt.Errorf("machine key must be %d bytes, got %d", MachineKeyLength, len(key))
	}
	return &MachineKey{buf: memguard.NewBufferFromBytes(key)}, nil
}

// GenerateMachineKey creates a fresh random machine key.
func GenerateMachineKey() (*MachineKey, error) {
	key := make([]byte, MachineKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate machine key: %w", err)
	}
	return NewMachineKeyFromBytes(key)
}

// Bytes returns the key material. The slice is only valid until Destroy.
func (k *MachineKey) Bytes() []byte {
	return k.buf.Bytes()
}

// Destroy wipes and releases the key.
func (k *MachineKey) Destroy() {
	if k != nil && k.buf != nil {
		k.buf.Destroy()
	}
}

// encode renders the key the way it is stored: URL-safe base64, the same text form
// Fernet keys use, so the store entry is a plain printable string.
func (k *MachineKey) encode() string {
	return base64.URLEncoding.EncodeToString(k.buf.Bytes())
}

func decodeMachineKey(text string) (*MachineKey, error) {
	key, err := base64.URLEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("machine key entry is not valid base64: %w", err)
	}
	return NewMachineKeyFromBytes(key)
}

// LookupMachineKey returns the machine key stored under (serviceID, identityID).
// It never creates one: a missing or unreadable key means tokens cannot be opened
// on this machine, which is reported as ErrIntegrity.
func LookupMachineKey(store interfaces.SecretStore, serviceID, identityID string) (*MachineKey, error) {
	text, err := store.Get(serviceID, identityID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: no machine key for %s/%s in %s", interfaces.ErrIntegrity, serviceID, identityID, store.Name())
		}
		return nil, fmt.Errorf("%w: machine key unavailable: %v", interfaces.ErrIntegrity, err)
	}

	key, err := decodeMachineKey(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrIntegrity, err)
	}
	return key, nil
}

// GetOrCreateMachineKey looks up the machine key and lazily provisions one on first use.
//
// This is a check-then-set against the store. Two processes provisioning at the same
// moment may both see no key and both write one; the last write wins. Setup re-reads the
// store when it verifies a new token, so the loser fails verification instead of handing
// out a token sealed under the overwritten key.
func GetOrCreateMachineKey(store interfaces.SecretStore, serviceID, identityID string, log *slog.Logger) (*MachineKey, error) {
	text, err := store.Get(serviceID, identityID)
	if err == nil {
		key, err := decodeMachineKey(text)
		if err != nil {
			// Overwriting a corrupt entry would orphan every token sealed with it.
			return nil, fmt.Errorf("%w: %v", interfaces.ErrIntegrity, err)
		}
		return key, nil
	}
	if !errors.Is(err, interfaces.ErrSecretNotFound) {
		return nil, fmt.Errorf("failed to read machine key from %s: %w", store.Name(), err)
	}

	key, err := GenerateMachineKey()
	if err != nil {
		return nil, err
	}

	if err := store.Put(serviceID, identityID, key.encode()); err != nil {
		key.Destroy()
		return nil, fmt.Errorf("failed to store machine key in %s: %w", store.Name(), err)
	}

	log.Info("Created machine key",
		slog.String("store", store.Name()),
		slog.String("service", serviceID),
		slog.String("identity", identityID))

	return key, nil
}
