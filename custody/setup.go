package custody

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/key-custody/envelope"
	"github.com/ruteri/key-custody/interfaces"
	"github.com/ruteri/key-custody/seal"
)

// SetupState is a step of the interactive setup.
type SetupState int

const (
	AwaitSecret SetupState = iota
	ConfirmIdentity
	AwaitPasswordConfirm
	Encrypting
	SelfVerifying
	Done
	Failed
)

// String returns state name.
func (s SetupState) String() string {
	switch s {
	case AwaitSecret:
		return "await-secret"
	case ConfirmIdentity:
		return "confirm-identity"
	case AwaitPasswordConfirm:
		return "await-password-confirm"
	case Encrypting:
		return "encrypting"
	case SelfVerifying:
		return "self-verifying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	promptSecret   = "Enter your secret (private key in hex OR mnemonic phrase): "
	promptPassword = "Enter a strong password for encryption: "
	promptConfirm  = "Confirm password: "
	promptVerify   = "Verifying decryption - enter your password: "
)

// setupRun carries the secret material of one setup attempt. Everything in it is
// wiped when the attempt ends, whatever the outcome.
type setupRun struct {
	c        *Custodian
	state    SetupState
	secret   interfaces.RawSecret
	address  common.Address
	password []byte
	token    interfaces.CustodyToken
}

// Setup runs the interactive flow: read the secret, show its address, read the
// password twice, encrypt, and reopen the result before returning it. A token is
// only returned if it was just shown to open under the same password and machine key.
func (c *Custodian) Setup() (interfaces.CustodyToken, error) {
	return c.run(&setupRun{c: c, state: AwaitSecret})
}

// SetupWithSecret is the non-interactive part of Setup for a secret and password the
// caller already holds. Neither argument is modified.
func (c *Custodian) SetupWithSecret(secret interfaces.RawSecret, password []byte) (interfaces.CustodyToken, error) {
	if len(password) == 0 {
		return "", fmt.Errorf("%w: empty password", interfaces.ErrInput)
	}

	owned, err := interfaces.NewRawSecretFromBytes(secret)
	if err != nil {
		return "", err
	}

	address, err := AddressOf(owned)
	if err != nil {
		owned.Wipe()
		return "", err
	}

	return c.run(&setupRun{
		c:        c,
		state:    Encrypting,
		secret:   owned,
		address:  address,
		password: bytes.Clone(password),
	})
}

func (c *Custodian) run(r *setupRun) (interfaces.CustodyToken, error) {
	defer r.wipe()

	for {
		from := r.state

		var err error
		switch r.state {
		case AwaitSecret:
			err = r.awaitSecret()
		case ConfirmIdentity:
			err = r.confirmIdentity()
		case AwaitPasswordConfirm:
			err = r.awaitPasswordConfirm()
		case Encrypting:
			err = r.encrypt()
		case SelfVerifying:
			err = r.selfVerify()
		case Done:
			return r.token, nil
		default:
			return "", fmt.Errorf("invalid setup state %d", int(r.state))
		}

		if err != nil {
			r.token = ""
			r.transition(from, Failed)
			c.log.Debug("Setup failed", slog.String("state", from.String()), "err", err)
			return "", err
		}
		r.transition(from, r.state)
	}
}

func (r *setupRun) transition(from, to SetupState) {
	r.state = to
	r.c.log.Debug("Setup state transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	if r.c.observer != nil {
		r.c.observer(from, to)
	}
}

func (r *setupRun) awaitSecret() error {
	input, err := r.c.input.ReadSecret(promptSecret)
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}
	defer memguard.WipeBytes(input)

	r.secret, err = ParseSecret(input, r.c.cfg.DerivationPath)
	if err != nil {
		return err
	}

	r.state = ConfirmIdentity
	return nil
}

func (r *setupRun) confirmIdentity() error {
	address, err := AddressOf(r.secret)
	if err != nil {
		return err
	}
	r.address = address

	fmt.Fprintf(r.c.out, "\nAccount address: %s\n", address.Hex())
	r.state = AwaitPasswordConfirm
	return nil
}

func (r *setupRun) awaitPasswordConfirm() error {
	password, err := r.c.input.ReadSecret(promptPassword)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return fmt.Errorf("%w: empty password", interfaces.ErrInput)
	}

	confirm, err := r.c.input.ReadSecret(promptConfirm)
	if err != nil {
		memguard.WipeBytes(password)
		return fmt.Errorf("failed to read password confirmation: %w", err)
	}
	defer memguard.WipeBytes(confirm)

	if subtle.ConstantTimeCompare(password, confirm) != 1 {
		memguard.WipeBytes(password)
		return interfaces.ErrMismatch
	}

	r.password = password
	r.state = Encrypting
	return nil
}

func (r *setupRun) encrypt() error {
	fmt.Fprintf(r.c.out, "\nEncrypting with %s scrypt cost...\n", r.c.cfg.Cost)
	start := time.Now()

	env, err := envelope.Encrypt(r.secret, r.password, r.c.cfg.Cost)
	if err != nil {
		return err
	}

	sealed, err := r.c.sealer.Seal(env.Marshal())
	if err != nil {
		return err
	}

	r.token = seal.Encode(sealed)
	fmt.Fprintf(r.c.out, "Encryption took %.2f seconds\n", time.Since(start).Seconds())

	r.state = SelfVerifying
	return nil
}

func (r *setupRun) selfVerify() error {
	password := r.password
	if r.c.cfg.ReenterOnVerify {
		reentered, err := r.c.input.ReadSecret(promptVerify)
		if err != nil {
			return fmt.Errorf("%w: failed to read password: %v", interfaces.ErrVerification, err)
		}
		defer memguard.WipeBytes(reentered)
		password = reentered
	}

	// Reopen through a fresh read of the credential store, not the key cached while
	// sealing, so a slot overwritten by a concurrent first setup is caught here.
	verifier := seal.NewSealer(r.c.store, r.c.cfg.ServiceID, r.c.cfg.IdentityID, r.c.log)
	defer verifier.Close()

	recovered, err := r.c.load(verifier, r.token, password)
	if err != nil {
		fmt.Fprintln(r.c.out, "\nDecryption verification failed. Please ensure you remember your password!")
		return fmt.Errorf("%w: %w", interfaces.ErrVerification, err)
	}
	defer recovered.Wipe()

	address, err := AddressOf(recovered)
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrVerification, err)
	}
	if address != r.address {
		return fmt.Errorf("%w: recovered address %s does not match %s", interfaces.ErrVerification, address.Hex(), r.address.Hex())
	}

	fmt.Fprintf(r.c.out, "Decrypted account address: %s\n", address.Hex())
	fmt.Fprintln(r.c.out, "\nDecryption successful! Your key is secure.")

	r.state = Done
	return nil
}

func (r *setupRun) wipe() {
	if r.secret != nil {
		r.secret.Wipe()
	}
	if r.password != nil {
		memguard.WipeBytes(r.password)
	}
}
