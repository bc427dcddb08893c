// Package secretstore provides interfaces.SecretStore implementations for the
// machine key: the OS keyring, an owner-only file for headless hosts, and an
// in-memory store for tests.
package secretstore

import (
	"fmt"
	"log/slog"

	"github.com/ruteri/key-custody/interfaces"
)

const (
	KindKeyring = "keyring"
	KindFile    = "file"
	KindMemory  = "memory"
)

// New creates a SecretStore of the given kind. path is only used by the file store.
func New(kind, path string, log *slog.Logger) (interfaces.SecretStore, error) {
	switch kind {
	case KindKeyring, "":
		return NewKeyringStore(log), nil
	case KindFile:
		return NewFileStore(path, log)
	case KindMemory:
		log.Warn("Using in-memory credential store, machine key will not survive this process")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported credential store %q", kind)
	}
}
