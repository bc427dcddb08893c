package main

import (
	"errors"

	"github.com/ruteri/key-custody/interfaces"
	"github.com/ruteri/key-custody/prompt"
)

// Process exit status per failure kind.
const (
	exitFailure        = 1
	exitInput          = 2
	exitMismatch       = 3
	exitIntegrity      = 4
	exitAuthentication = 5
	exitVerification   = 6
)

// exitCode maps an error to the process exit status. Verification is checked first
// because it wraps the load failure that caused it.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, interfaces.ErrVerification):
		return exitVerification
	case errors.Is(err, interfaces.ErrInput), errors.Is(err, interfaces.ErrInvalidLocationURI), errors.Is(err, prompt.ErrNoTerminal):
		return exitInput
	case errors.Is(err, interfaces.ErrMismatch):
		return exitMismatch
	case errors.Is(err, interfaces.ErrIntegrity):
		return exitIntegrity
	case errors.Is(err, interfaces.ErrAuthentication):
		return exitAuthentication
	default:
		return exitFailure
	}
}

// explain returns the operator-facing message for err.
func explain(err error) string {
	switch exitCode(err) {
	case exitVerification:
		return "Setup aborted, the new token could not be verified: " + err.Error()
	case exitMismatch:
		return "Passwords do not match"
	case exitIntegrity:
		return "Token cannot be opened on this machine: " + err.Error()
	case exitAuthentication:
		return "Could not decrypt key with given password"
	default:
		return err.Error()
	}
}
