// Package interfaces defines the core interfaces and types for the key custody system.
// It provides the contract between different components without implementation details.
package interfaces

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/awnumar/memguard"
)

// RawSecret is a raw secp256k1 private key held in process memory.
// It is owned by the caller that requested it and must be wiped once signing is done.
type RawSecret []byte

// RawSecretLength is the size in bytes of a secp256k1 private key.
const RawSecretLength = 32

// NewRawSecretFromBytes copies source into a new RawSecret after validating its length.
func NewRawSecretFromBytes(source []byte) (RawSecret, error) {
	if len(source) != RawSecretLength {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInput, RawSecretLength, len(source))
	}

	secret := make(RawSecret, RawSecretLength)
	copy(secret, source)
	return secret, nil
}

// Bytes returns the underlying key bytes.
func (s RawSecret) Bytes() []byte {
	return s
}

// Wipe overwrites the secret in place.
func (s RawSecret) Wipe() {
	memguard.WipeBytes(s)
}

// String never reveals key material, so a RawSecret is safe to pass to a formatter by accident.
func (s RawSecret) String() string {
	return fmt.Sprintf("RawSecret(%d bytes)", len(s))
}

// CostProfile is the scrypt work-factor exponent: N = 2^CostProfile.
type CostProfile int

const (
	// MinCostProfile is the lowest accepted exponent. Only useful for tests.
	MinCostProfile CostProfile = 4
	// MaxCostProfile bounds memory use (128 * r * N bytes) to something a workstation survives.
	MaxCostProfile CostProfile = 30
	// DefaultCostProfile matches go-ethereum's StandardScryptN.
	DefaultCostProfile CostProfile = 18
)

// NewCostProfileFromN converts a scrypt N parameter back to its exponent.
// N must be a power of two within the accepted range.
func NewCostProfileFromN(n int) (CostProfile, error) {
	if n <= 1 || n&(n-1) != 0 {
		return 0, fmt.Errorf("scrypt N must be a power of two greater than 1, got %d", n)
	}

	cost := CostProfile(bits.TrailingZeros(uint(n)))
	if err := cost.Validate(); err != nil {
		return 0, err
	}
	return cost, nil
}

// N returns the scrypt CPU/memory cost parameter.
func (c CostProfile) N() int {
	return 1 << uint(c)
}

// Validate checks that the exponent is within the accepted range.
func (c CostProfile) Validate() error {
	if c < MinCostProfile || c > MaxCostProfile {
		return fmt.Errorf("%w: cost exponent %d out of range [%d, %d]", ErrInput, int(c), int(MinCostProfile), int(MaxCostProfile))
	}
	return nil
}

// String returns the profile as a power of two, e.g. "2^18".
func (c CostProfile) String() string {
	return fmt.Sprintf("2^%d", int(c))
}

// CustodyToken is the opaque, text-encoded artifact produced by setup.
// It is the only datum that leaves the custody subsystem.
type CustodyToken string

// NewCustodyToken trims surrounding whitespace, as tokens are usually pasted from
// configuration files or environment variables.
func NewCustodyToken(raw string) (CustodyToken, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return "", errors.New("empty custody token")
	}
	return CustodyToken(clean), nil
}

// String returns the token text.
func (t CustodyToken) String() string {
	return string(t)
}

// SecretStore is the host's secure credential store. Entries are addressed by
// (service, identity) pairs, mirroring OS keychains.
type SecretStore interface {
	// Get returns the stored secret or ErrSecretNotFound.
	Get(service, identity string) (string, error)

	// Put creates or replaces the secret under (service, identity).
	Put(service, identity, secret string) error

	// Name returns identifier for logging.
	Name() string
}

// SecretInput reads secret material from the operator without echoing it.
type SecretInput interface {
	// ReadSecret displays prompt and returns what the operator typed.
	// The caller owns the returned slice and should wipe it after use.
	ReadSecret(prompt string) ([]byte, error)
}
