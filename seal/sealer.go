package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/ruteri/key-custody/interfaces"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	formatVersion byte = 0x01
	sealInfo           = "key-custody/seal/v1"
)

// Sealer encrypts serialized envelopes under the machine key.
// The key is fetched once and kept for the life of the Sealer.
type Sealer struct {
	store      interfaces.SecretStore
	serviceID  string
	identityID string
	log        *slog.Logger

	mu  sync.Mutex
	key *MachineKey
}

// NewSealer creates a sealer bound to the (serviceID, identityID) slot of store.
func NewSealer(store interfaces.SecretStore, serviceID, identityID string, log *slog.Logger) *Sealer {
	if log == nil {
		log = slog.Default()
	}
	return &Sealer{
		store:      store,
		serviceID:  serviceID,
		identityID: identityID,
		log:        log,
	}
}

// NewEphemeralSealer creates a sealer with a random in-memory key that is never
// persisted. Benchmarks use it so diagnostics leave the credential store untouched.
func NewEphemeralSealer() (*Sealer, error) {
	key, err := GenerateMachineKey()
	if err != nil {
		return nil, err
	}
	return &Sealer{log: slog.Default(), key: key}, nil
}

// Seal encrypts plaintext, provisioning the machine key if this machine has none.
// Output layout: version || nonce || XChaCha20-Poly1305 ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	key, err := s.machineKey(true)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = formatVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(out, out[1:], plaintext, out[:1]), nil
}

// Open authenticates and decrypts a sealed blob. Every failure, including a missing
// machine key, is reported as ErrIntegrity.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 || sealed[0] != formatVersion {
		return nil, fmt.Errorf("%w: unknown seal format", interfaces.ErrIntegrity)
	}

	key, err := s.machineKey(false)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: sealed data too short", interfaces.ErrIntegrity)
	}

	nonce := sealed[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, sealed[1+aead.NonceSize():], sealed[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", interfaces.ErrIntegrity)
	}
	return plaintext, nil
}

// Close wipes the cached machine key.
func (s *Sealer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key.Destroy()
	s.key = nil
}

func (s *Sealer) machineKey(create bool) (*MachineKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: sealer has no credential store", interfaces.ErrIntegrity)
	}

	var key *MachineKey
	var err error
	if create {
		key, err = GetOrCreateMachineKey(s.store, s.serviceID, s.identityID, s.log)
	} else {
		key, err = LookupMachineKey(s.store, s.serviceID, s.identityID)
	}
	if err != nil {
		return nil, err
	}

	s.key = key
	return key, nil
}

// newAEAD derives the seal subkey from the machine key so the raw store entry is
// never used directly as a cipher key.
func newAEAD(key *MachineKey) (cipher.AEAD, error) {
	subkey := make([]byte, chacha20poly1305.KeySize)
	defer memguard.WipeBytes(subkey)

	kdf := hkdf.New(sha256.New, key.Bytes(), nil, []byte(sealInfo))
	if _, err := io.ReadFull(kdf, subkey); err != nil {
		return nil, fmt.Errorf("failed to derive seal key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(subkey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return aead, nil
}
