package secretstore

import (
	"sync"

	"github.com/ruteri/key-custody/interfaces"
	"go.uber.org/atomic"
)

// MemoryStore is an in-process SecretStore. It counts calls so tests can assert
// the lazy create-once behavior of the machine key.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]string

	gets atomic.Int64
	puts atomic.Int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

// Get returns the secret or ErrSecretNotFound.
func (m *MemoryStore) Get(service, identity string) (string, error) {
	m.gets.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	secret, ok := m.secrets[slotKey(service, identity)]
	if !ok {
		return "", interfaces.ErrSecretNotFound
	}
	return secret, nil
}

// Put stores the secret, replacing any previous value.
func (m *MemoryStore) Put(service, identity, secret string) error {
	m.puts.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.secrets[slotKey(service, identity)] = secret
	return nil
}

// Delete removes a slot, simulating a cleared or migrated credential store.
func (m *MemoryStore) Delete(service, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.secrets, slotKey(service, identity))
}

// Name returns identifier for logging.
func (m *MemoryStore) Name() string {
	return "memory"
}

// Gets returns the number of Get calls.
func (m *MemoryStore) Gets() int64 {
	return m.gets.Load()
}

// Puts returns the number of Put calls.
func (m *MemoryStore) Puts() int64 {
	return m.puts.Load()
}

func slotKey(service, identity string) string {
	return service + "/" + identity
}
