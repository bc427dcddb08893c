package interfaces

import "errors"

// Error taxonomy of the custody subsystem. Every failure is terminal to the
// operation that raised it; nothing here is retried.
var (
	// ErrInput is returned for malformed hex keys, unparseable mnemonics and empty passwords.
	ErrInput = errors.New("invalid secret input")

	// ErrMismatch is returned when the password confirmation differs from the first entry.
	ErrMismatch = errors.New("passwords do not match")

	// ErrIntegrity is returned when the machine-bound seal cannot be opened: the machine key
	// is unavailable, the token was not produced by this scheme, or it was tampered with.
	ErrIntegrity = errors.New("custody token failed integrity check")

	// ErrAuthentication is returned when the password envelope cannot be decrypted.
	// A wrong password and a corrupted envelope are intentionally indistinguishable.
	ErrAuthentication = errors.New("could not decrypt key with given password")

	// ErrVerification is returned when a freshly produced token cannot be reopened.
	// The candidate token must be discarded.
	ErrVerification = errors.New("custody token self-verification failed")

	// ErrSecretNotFound is returned by a SecretStore when no entry exists.
	ErrSecretNotFound = errors.New("secret not found in credential store")
)
