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
	"sync"

	"github.com/joho/godotenv"
	"github.com/ruteri/key-custody/interfaces"
)

// DotenvBackend keeps tokens as KEY=value lines of a .env file, the form
// deployment scripts load ENCRYPTED_PRIVATE_KEY from. Other lines of the file are
// left untouched on Store.
type DotenvBackend struct {
	path        string
	log         *slog.Logger
	locationURI string

	mu sync.Mutex
}

// NewDotenvBackend creates a dotenv token store for the file at path. The file
// is created on first Store.
func NewDotenvBackend(path string, log *slog.Logger) (*DotenvBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty dotenv path", interfaces.ErrInvalidLocationURI)
	}

	return &DotenvBackend{
		path:        path,
		log:         log,
		locationURI: fmt.Sprintf("env://%s", path),
	}, nil
}

// Fetch returns the value of name in the dotenv file.
func (b *DotenvBackend) Fetch(ctx context.Context, name string) (interfaces.CustodyToken, error) {
	if err := interfaces.ValidateTokenName(name); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	values, err := b.read()
	if err != nil {
		return "", err
	}

	value, ok := values[name]
	if !ok || value == "" {
		b.log.Debug("Token not found in dotenv file",
			slog.String("path", b.path),
			slog.String("name", name))
		return "", interfaces.ErrTokenNotFound
	}

	b.log.Debug("Fetched token from dotenv file",
		slog.String("path", b.path),
		slog.String("name", name))
	return interfaces.NewCustodyToken(value)
}

// Store sets name in the dotenv file. Only the lines assigning name are rewritten;
// every other line, including comments and ${VAR} references, is kept byte for byte.
func (b *DotenvBackend) Store(ctx context.Context, name string, token interfaces.CustodyToken) error {
	if err := interfaces.ValidateTokenName(name); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := os.ReadFile(b.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read dotenv file: %w", err)
	}

	content := setDotenvLine(existing, name, fmt.Sprintf("%s=%s", name, token))

	// The result must still parse, or consumers would lose every entry.
	if _, err := godotenv.Unmarshal(string(content)); err != nil {
		return fmt.Errorf("failed to render dotenv file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := writeFileAtomic(b.path, content); err != nil {
		return err
	}

	b.log.Debug("Stored token in dotenv file",
		slog.String("path", b.path),
		slog.String("name", name))
	return nil
}

// Available reports whether the file's directory exists.
func (b *DotenvBackend) Available(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Dir(b.path)); err != nil {
		b.log.Debug("Dotenv backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *DotenvBackend) Name() string {
	return fmt.Sprintf("env-%s", filepath.Base(b.path))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *DotenvBackend) LocationURI() string {
	return b.locationURI
}

func (b *DotenvBackend) read() (map[string]string, error) {
	values, err := godotenv.Read(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dotenv file: %w", err)
	}
	return values, nil
}

// setDotenvLine replaces every assignment of name in content with line, or appends
// line when name is not assigned yet.
func setDotenvLine(content []byte, name, line string) []byte {
	lines := strings.SplitAfter(string(content), "\n")

	var out strings.Builder
	replaced := false
	for _, l := range lines {
		if l == "" {
			continue
		}
		if assignsKey(l, name) {
			out.WriteString(line)
			if strings.HasSuffix(l, "\n") {
				out.WriteString("\n")
			}
			replaced = true
			continue
		}
		out.WriteString(l)
	}

	if !replaced {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteString("\n")
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	return []byte(out.String())
}

// assignsKey reports whether a dotenv line is an assignment to name, accepting the
// optional export prefix and the KEY: value form godotenv also reads.
func assignsKey(line, name string) bool {
	l := strings.TrimSpace(line)
	l = strings.TrimPrefix(l, "export ")
	l = strings.TrimLeft(l, " \t")
	if !strings.HasPrefix(l, name) {
		return false
	}
	rest := strings.TrimLeft(l[len(name):], " \t")
	return strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, ":")
}
