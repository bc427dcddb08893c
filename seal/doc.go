// Package seal implements the machine-bound layer of key custody.
//
// A MachineKey is 32 random bytes stored in the host's secure credential store
// (an interfaces.SecretStore) under a (service, identity) slot. It is created lazily
// the first time something is sealed and never leaves the machine.
//
// A Sealer encrypts serialized envelopes with XChaCha20-Poly1305 under a subkey
// derived from the machine key with HKDF-SHA256:
//
//	version(1) || nonce(24) || ciphertext || tag(16)
//
// The version byte is authenticated as associated data. Open reports every failure
// (no key on this machine, foreign or tampered input) as interfaces.ErrIntegrity, and
// never provisions a key. Encode and Decode turn sealed bytes into single-line base58
// text suitable for configuration files and environment variables.
package seal
