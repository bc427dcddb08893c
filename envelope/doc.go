// Package envelope implements the password-derived layer of key custody.
//
// An Envelope is a private key encrypted under a password using the Web3 Secret
// Storage v3 format from go-ethereum's keystore: scrypt turns the password and a
// random salt into a 32-byte key, the first half encrypts the private key with
// AES-128-CTR and the second half feeds a Keccak-256 MAC over the ciphertext.
//
// The scrypt cost is the brute-force deterrent. It is chosen per envelope through an
// interfaces.CostProfile and recorded inside the envelope, so Decrypt never assumes a
// global default:
//
//	env, err := envelope.Encrypt(secret, password, interfaces.DefaultCostProfile)
//	...
//	cost, _ := env.Cost() // report before the slow step
//	secret, err := envelope.Decrypt(env, password)
//
// Decrypt verifies the MAC before releasing any bytes and reports every failure as
// interfaces.ErrAuthentication.
package envelope
