package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// DefaultTokenName is the configuration key consumers read the token from.
const DefaultTokenName = "ENCRYPTED_PRIVATE_KEY"

var tokenNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]{0,127}$`)

// ValidateTokenName checks that a token name is usable as an environment variable,
// a file name and an object key alike.
func ValidateTokenName(name string) error {
	if !tokenNameRegex.MatchString(name) {
		return fmt.Errorf("invalid token name %q", name)
	}
	return nil
}

// StorageBackendLocation represents URI for a token storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	// Validate scheme is supported
	scheme := parsed.Scheme
	switch scheme {
	case "file", "env", "s3", "vault":
		// Valid scheme
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, scheme)
	}

	// Parse authentication info if present
	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// IsFile checks if this is a file system storage location.
func (loc StorageBackendLocation) IsFile() bool {
	return loc.Scheme == "file"
}

// IsEnv checks if this is a dotenv file location.
func (loc StorageBackendLocation) IsEnv() bool {
	return loc.Scheme == "env"
}

// IsS3 checks if this is an S3 storage location.
func (loc StorageBackendLocation) IsS3() bool {
	return loc.Scheme == "s3"
}

// IsVault checks if this is a Vault storage location.
func (loc StorageBackendLocation) IsVault() bool {
	return loc.Scheme == "vault"
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

var (
	// ErrTokenNotFound is returned when the requested token cannot be found in the storage backend.
	ErrTokenNotFound = errors.New("token not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// TokenStore persists custody tokens under a name. Tokens are useless without both the
// password and the machine key, so any of these backends may hold them.
type TokenStore interface {
	// Fetch retrieves a token by name.
	Fetch(ctx context.Context, name string) (CustodyToken, error)

	// Store saves a token under name, replacing any previous value.
	Store(ctx context.Context, name string, token CustodyToken) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// TokenStoreFactory creates token stores.
type TokenStoreFactory interface {
	// TokenStoreFor creates backend from URI.
	// Supports file://, env://, s3://, vault://
	TokenStoreFor(location StorageBackendLocation) (TokenStore, error)

	// CreateMultiBackend creates aggregated token store.
	CreateMultiBackend(locations []StorageBackendLocation) (TokenStore, error)
}
