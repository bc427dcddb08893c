// Package interfaces defines core interfaces and types for the key custody
// system, separating interface definitions from implementations.
//
// # Custody Types
//
//   - RawSecret: a 32-byte secp256k1 private key, ephemeral and wiped after use
//   - CostProfile: the scrypt work-factor exponent embedded in every envelope
//   - CustodyToken: the base58 text artifact stored in configuration
//
// # Ports
//
// SecretStore: the host secure credential store holding the machine key, addressed
// by (service, identity). Injected so tests can substitute an in-memory double.
//
// SecretInput: reads passwords and phrases from the operator without echoing them.
//
// TokenStore: persists finished custody tokens in files, dotenv files, S3 or Vault.
//
// # Errors
//
// ErrInput, ErrMismatch, ErrIntegrity, ErrAuthentication and ErrVerification form the
// error taxonomy. Implementations wrap them with fmt.Errorf("%w: ...") and callers
// classify failures with errors.Is.
package interfaces
