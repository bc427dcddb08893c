package custody

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/key-custody/envelope"
	"github.com/ruteri/key-custody/interfaces"
	"github.com/ruteri/key-custody/seal"
)

// Config holds the tunable parameters of a Custodian.
type Config struct {
	// ServiceID and IdentityID name the credential store slot of the machine key.
	ServiceID  string
	IdentityID string

	// Cost is the scrypt exponent used for new envelopes.
	Cost interfaces.CostProfile

	// DerivationPath is used when the operator enters a mnemonic.
	DerivationPath accounts.DerivationPath

	// ReenterOnVerify asks for the password a third time during self-verification,
	// proving the operator can reproduce it and not just type it twice.
	ReenterOnVerify bool
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ServiceID:      seal.DefaultServiceID,
		IdentityID:     seal.DefaultIdentityID,
		Cost:           interfaces.DefaultCostProfile,
		DerivationPath: accounts.DefaultBaseDerivationPath,
	}
}

// Custodian composes the password envelope and the machine seal into setup and load.
type Custodian struct {
	cfg      Config
	store    interfaces.SecretStore
	sealer   *seal.Sealer
	input    interfaces.SecretInput
	out      io.Writer
	log      *slog.Logger
	observer func(from, to SetupState)
}

// New creates a Custodian. store holds the machine key, input supplies secrets and
// passwords, and out receives operator-facing messages (addresses, timings).
func New(cfg Config, store interfaces.SecretStore, input interfaces.SecretInput, out io.Writer, log *slog.Logger) (*Custodian, error) {
	if err := cfg.Cost.Validate(); err != nil {
		return nil, err
	}
	if cfg.ServiceID == "" || cfg.IdentityID == "" {
		return nil, errors.New("credential store service and identity must be set")
	}
	if cfg.DerivationPath == nil {
		cfg.DerivationPath = accounts.DefaultBaseDerivationPath
	}
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = slog.Default()
	}

	return &Custodian{
		cfg:    cfg,
		store:  store,
		sealer: seal.NewSealer(store, cfg.ServiceID, cfg.IdentityID, log),
		input:  input,
		out:    out,
		log:    log,
	}, nil
}

// WithStateObserver creates a copy of the Custodian that reports every setup
// state transition to fn.
func (c *Custodian) WithStateObserver(fn func(from, to SetupState)) *Custodian {
	clone := *c
	clone.observer = fn
	return &clone
}

// Close wipes the cached machine key.
func (c *Custodian) Close() {
	c.sealer.Close()
}

// Load reverses setup: decode, open the machine seal, then decrypt the password
// envelope. Any stage failure aborts the call and no partial secret is returned.
func (c *Custodian) Load(token interfaces.CustodyToken, password []byte) (interfaces.RawSecret, error) {
	return c.load(c.sealer, token, password)
}

func (c *Custodian) load(sealer *seal.Sealer, token interfaces.CustodyToken, password []byte) (interfaces.RawSecret, error) {
	env, err := openEnvelope(sealer, token, c.log)
	if err != nil {
		return nil, err
	}

	if cost, err := env.Cost(); err == nil {
		fmt.Fprintf(c.out, "Detected %s scrypt cost in the encrypted key\n", cost)
	}

	start := time.Now()
	secret, err := envelope.Decrypt(env, password)
	if err != nil {
		c.log.Debug("Envelope decryption failed", "err", err)
		return nil, err
	}
	fmt.Fprintf(c.out, "Decryption took %.2f seconds\n", time.Since(start).Seconds())

	c.log.Debug("Loaded key", slog.String("address", env.Address().Hex()))
	return secret, nil
}

// Unlock loads the key and converts it into a signing key. The raw bytes are wiped
// before returning; the caller owns the returned key.
func (c *Custodian) Unlock(token interfaces.CustodyToken, password []byte) (*ecdsa.PrivateKey, common.Address, error) {
	secret, err := c.Load(token, password)
	if err != nil {
		return nil, common.Address{}, err
	}
	defer secret.Wipe()

	privateKey, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: %v", interfaces.ErrAuthentication, err)
	}
	return privateKey, crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

// TokenInfo is what can be learned from a token on its own machine without the password.
type TokenInfo struct {
	Address common.Address
	KDF     string
	Cost    interfaces.CostProfile
}

// Inspect opens the machine seal and reports the envelope's public metadata.
func (c *Custodian) Inspect(token interfaces.CustodyToken) (TokenInfo, error) {
	env, err := openEnvelope(c.sealer, token, c.log)
	if err != nil {
		return TokenInfo{}, err
	}

	info := TokenInfo{Address: env.Address(), KDF: env.KDF()}
	if cost, err := env.Cost(); err == nil {
		info.Cost = cost
	}
	return info, nil
}

func openEnvelope(sealer *seal.Sealer, token interfaces.CustodyToken, log *slog.Logger) (*envelope.Envelope, error) {
	sealed, err := seal.Decode(token)
	if err != nil {
		return nil, err
	}

	data, err := sealer.Open(sealed)
	if err != nil {
		log.Debug("Failed to open machine seal", "err", err)
		return nil, err
	}
	defer memguard.WipeBytes(data)

	return envelope.Parse(data)
}

// ZeroKey clears the scalar of a private key obtained from Unlock.
func ZeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	zeroKeyBits(k.D.Bits())
}

func zeroKeyBits(b []big.Word) {
	for i := range b {
		b[i] = 0
	}
}
