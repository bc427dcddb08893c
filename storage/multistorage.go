package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/key-custody/interfaces"
)

// MultiTokenStore implements interfaces.TokenStore over several backends: Store
// publishes to every available backend and Fetch falls back through them in order.
type MultiTokenStore struct {
	backends []interfaces.TokenStore
	log      *slog.Logger
}

// NewMultiTokenStore creates a new multi token store with fallback.
func NewMultiTokenStore(backends []interfaces.TokenStore, logger *slog.Logger) *MultiTokenStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiTokenStore{
		backends: backends,
		log:      logger,
	}
}

// Fetch returns the token from the first available backend that has it.
// ErrTokenNotFound is returned only if no backend failed for another reason.
func (m *MultiTokenStore) Fetch(ctx context.Context, name string) (interfaces.CustodyToken, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("name", name))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		token, err := backend.Fetch(ctx, name)
		if err == nil {
			m.log.Debug("Fetched token",
				slog.String("backend_name", backend.Name()),
				slog.String("name", name),
				slog.Duration("duration", time.Since(start)))
			return token, nil
		}

		if errors.Is(err, interfaces.ErrTokenNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("name", name),
			"err", err)
	}

	if notFound > 0 && notFound == len(errs) {
		return "", interfaces.ErrTokenNotFound
	}

	m.log.Error("All backends failed to fetch token",
		slog.String("name", name),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return "", fmt.Errorf("all backends failed to fetch %s: %w", name, errors.Join(errs...))
}

// Store saves the token to all available backends. It succeeds if at least one
// backend accepted the token.
func (m *MultiTokenStore) Store(ctx context.Context, name string, token interfaces.CustodyToken) error {
	start := time.Now()
	var errs []error
	stored := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		if err := backend.Store(ctx, name, token); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}

		stored++
		m.log.Info("Stored token",
			slog.String("backend_name", backend.Name()),
			slog.String("name", name),
			slog.Duration("duration", time.Since(start)))
	}

	if stored == 0 {
		m.log.Error("All backends failed to store token",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		if len(errs) == 0 {
			return interfaces.ErrBackendUnavailable
		}
		return fmt.Errorf("all backends failed to store token: %w", errors.Join(errs...))
	}

	return nil
}

// Available checks if any backend is available.
func (m *MultiTokenStore) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiTokenStore) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined location URI of all backends.
func (m *MultiTokenStore) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
