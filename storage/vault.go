package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/key-custody/interfaces"
)

// vaultTokenField is the key inside each KV v2 secret that holds the token.
const vaultTokenField = "token"

// VaultBackend stores tokens in a HashiCorp Vault KV v2 secrets engine, one secret
// per token name under dataPath.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault token store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "deployer")
//   - authToken: Vault token; when empty VAULT_TOKEN is used
//   - log: Structured logger for operational insights
func NewVaultBackend(address, mountPath, dataPath, authToken string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	if config.Error != nil {
		return nil, fmt.Errorf("failed to read Vault environment: %w", config.Error)
	}
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if authToken != "" {
		client.SetToken(authToken)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")
	if mountPath == "" {
		return nil, fmt.Errorf("%w: missing Vault mount path", interfaces.ErrInvalidLocationURI)
	}

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

// Fetch reads the latest version of the token secret.
func (b *VaultBackend) Fetch(ctx context.Context, name string) (interfaces.CustodyToken, error) {
	if err := interfaces.ValidateTokenName(name); err != nil {
		return "", err
	}

	start := time.Now()
	secretPath := b.secretPath(name)

	secret, err := b.client.KVv2(b.mountPath).Get(ctx, secretPath)
	if errors.Is(err, api.ErrSecretNotFound) {
		b.log.Debug("Token not found in Vault",
			slog.String("mount", b.mountPath),
			slog.String("path", secretPath))
		return "", interfaces.ErrTokenNotFound
	}
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("mount", b.mountPath),
			slog.String("path", secretPath),
			"err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	value, ok := secret.Data[vaultTokenField].(string)
	if !ok {
		return "", fmt.Errorf("%w: secret %s has no %q field", interfaces.ErrTokenNotFound, secretPath, vaultTokenField)
	}

	b.log.Debug("Fetched token from Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))

	return interfaces.NewCustodyToken(value)
}

// Store writes the token as a new version of its secret.
func (b *VaultBackend) Store(ctx context.Context, name string, token interfaces.CustodyToken) error {
	if err := interfaces.ValidateTokenName(name); err != nil {
		return err
	}

	start := time.Now()
	secretPath := b.secretPath(name)

	_, err := b.client.KVv2(b.mountPath).Put(ctx, secretPath, map[string]interface{}{
		vaultTokenField: token.String(),
	})
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("mount", b.mountPath),
			slog.String("path", secretPath),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Info("Stored token in Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(name string) string {
	if b.dataPath == "" {
		return name
	}
	return b.dataPath + "/" + name
}
