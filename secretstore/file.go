package secretstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/key-custody/interfaces"
)

// FileStore keeps secrets in a JSON file readable only by the owner. It is the
// fallback for headless hosts without a keyring daemon, and is only as strong as
// the file permissions of the account running it.
type FileStore struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The file is created on
// first Put.
func NewFileStore(path string, log *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("empty credential file path")
	}

	if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o077 != 0 {
		log.Warn("Credential file is accessible by other users",
			slog.String("path", path),
			slog.String("mode", info.Mode().Perm().String()))
	}

	return &FileStore{path: path, log: log}, nil
}

// Get returns the secret or ErrSecretNotFound.
func (f *FileStore) Get(service, identity string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.read()
	if err != nil {
		return "", err
	}

	secret, ok := secrets[slotKey(service, identity)]
	if !ok {
		return "", interfaces.ErrSecretNotFound
	}
	return secret, nil
}

// Put stores the secret, rewriting the file through a temporary file and rename.
func (f *FileStore) Put(service, identity, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.read()
	if err != nil {
		return err
	}
	secrets[slotKey(service, identity)] = secret

	data, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary credential file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict credential file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}

	f.log.Debug("Stored secret in credential file",
		slog.String("path", f.path),
		slog.String("service", service),
		slog.String("identity", identity))

	return nil
}

// Name returns identifier for logging.
func (f *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(f.path))
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	secrets := make(map[string]string)
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return secrets, nil
}
