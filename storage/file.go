package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/key-custody/interfaces"
)

// FileBackend stores each token as a single-line file named after the token
// inside a base directory.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file token store rooted at baseDir, creating the
// directory with owner-only permissions if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads the token stored under name.
// Returns ErrTokenNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, name string) (interfaces.CustodyToken, error) {
	if err := interfaces.ValidateTokenName(name); err != nil {
		return "", err
	}

	filePath := filepath.Join(b.baseDir, name)
	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", interfaces.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	token, err := interfaces.NewCustodyToken(string(data))
	if err != nil {
		return "", fmt.Errorf("%w: %s is empty", interfaces.ErrTokenNotFound, filePath)
	}

	b.log.Debug("Fetched token from file",
		slog.String("path", filePath),
		slog.Int("size", len(token)))

	return token, nil
}

// Store writes the token to a temporary file and renames it into place, so a
// reader never observes a partially written token.
func (b *FileBackend) Store(ctx context.Context, name string, token interfaces.CustodyToken) error {
	if err := interfaces.ValidateTokenName(name); err != nil {
		return err
	}

	filePath := filepath.Join(b.baseDir, name)
	if err := writeFileAtomic(filePath, []byte(strings.TrimSpace(string(token))+"\n")); err != nil {
		return err
	}

	b.log.Debug("Stored token in file", slog.String("path", filePath))
	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
