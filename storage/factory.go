package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/key-custody/interfaces"
)

// TokenStoreFactory creates token stores from location URIs and manages
// multi-backend configurations for redundant publishing.
type TokenStoreFactory struct {
	log *slog.Logger
}

// NewTokenStoreFactory creates a new factory instance that can create token stores.
func NewTokenStoreFactory(logger *slog.Logger) *TokenStoreFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStoreFactory{log: logger}
}

// TokenStoreFor creates a token store from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - One file per token in a local directory
//   - env:// - A KEY=value entry in a dotenv file
//   - s3:// - Amazon S3 or compatible object storage
//   - vault:// - HashiCorp Vault KV v2
func (sf *TokenStoreFactory) TokenStoreFor(location interfaces.StorageBackendLocation) (interfaces.TokenStore, error) {
	switch {
	case location.IsFile():
		return sf.createFileBackend(location)
	case location.IsEnv():
		return sf.createDotenvBackend(location)
	case location.IsS3():
		return sf.createS3Backend(location)
	case location.IsVault():
		return sf.createVaultBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi token store from a list of location URIs.
// Locations that fail to produce a backend are logged and skipped.
// Returns an error if no valid backends could be created from the provided URIs.
func (sf *TokenStoreFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.TokenStore, error) {
	backends := make([]interfaces.TokenStore, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.TokenStoreFor(location)
		if err != nil {
			sf.log.Warn("Failed to create token store",
				"err", err,
				slog.String("locationURI", location.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid token stores created")
	}
	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiTokenStore(backends, sf.log), nil
}

// ParseLocations parses each URI into a StorageBackendLocation.
func ParseLocations(uris []string) ([]interfaces.StorageBackendLocation, error) {
	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	return locations, nil
}

// createFileBackend creates a file system token store.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *TokenStoreFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.TokenStore, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", location.String()))

	path, err := localPath(location)
	if err != nil {
		return nil, err
	}
	return NewFileBackend(path, sf.log)
}

// createDotenvBackend creates a dotenv token store.
// URI format: env:///absolute/path/.env or env://./.env
func (sf *TokenStoreFactory) createDotenvBackend(location interfaces.StorageBackendLocation) (interfaces.TokenStore, error) {
	sf.log.Debug("Creating dotenv backend", slog.String("uri", location.String()))

	path, err := localPath(location)
	if err != nil {
		return nil, err
	}
	return NewDotenvBackend(path, sf.log)
}

// createS3Backend creates an S3 or S3-compatible token store.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
// Without embedded credentials the SDK's default credential chain is used.
func (sf *TokenStoreFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.TokenStore, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", location.Host))

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	accessKey, secretKey, err := userInfo(location)
	if err != nil {
		return nil, err
	}
	if accessKey != "" {
		sf.log.Debug("Using embedded S3 credentials")
	}

	return NewS3Backend(location.Host, strings.TrimPrefix(location.Path, "/"), region,
		location.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// createVaultBackend creates a Vault KV v2 token store.
// URI format: vault://[TOKEN@]vault.example.com:8200/mount/path?tls=false
// The first path segment is the KV mount, the rest is the path inside it.
// Without an embedded token VAULT_TOKEN is used.
func (sf *TokenStoreFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.TokenStore, error) {
	sf.log.Debug("Creating Vault backend", slog.String("host", location.Host))

	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing Vault host in %s", interfaces.ErrInvalidLocationURI, location.Scheme)
	}

	scheme := "https"
	if location.Query.Has("tls") && !location.GetParamBool("tls") {
		scheme = "http"
	}

	mount, dataPath, _ := strings.Cut(strings.Trim(location.Path, "/"), "/")

	authToken, _, err := userInfo(location)
	if err != nil {
		return nil, err
	}

	return NewVaultBackend(scheme+"://"+location.Host, mount, dataPath, authToken, sf.log)
}

// localPath resolves file:// and env:// URIs, where a host part such as "."
// in file://./dir is the first path segment.
func localPath(location interfaces.StorageBackendLocation) (string, error) {
	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return "", fmt.Errorf("%w: empty path in %s URI", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
	return path, nil
}

func userInfo(location interfaces.StorageBackendLocation) (string, string, error) {
	if location.Auth == "" {
		return "", "", nil
	}

	u, err := url.Parse(location.Raw)
	if err != nil || u.User == nil {
		return "", "", fmt.Errorf("%w: malformed credentials", interfaces.ErrInvalidLocationURI)
	}
	password, _ := u.User.Password()
	return u.User.Username(), password, nil
}
