package envelope

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/ruteri/key-custody/interfaces"
)

const (
	// Version is the Web3 Secret Storage version written and accepted.
	Version = 3

	// ScryptP is the parallelization factor. Cost is tuned through N only.
	ScryptP = keystore.StandardScryptP

	kdfScrypt = "scrypt"
	kdfPBKDF2 = "pbkdf2"
)

// Envelope is a password-encrypted private key in Web3 Secret Storage v3 format.
// It is self-describing: salt, IV, cost and MAC travel with the ciphertext.
type Envelope struct {
	raw    []byte
	header envelopeHeader
}

type envelopeHeader struct {
	Version int                 `json:"version"`
	ID      string              `json:"id"`
	Address string              `json:"address"`
	Crypto  keystore.CryptoJSON `json:"crypto"`
}

// Encrypt seals secret under password with scrypt at the given cost.
// Every call draws a fresh salt and IV, so encrypting the same key twice never
// produces the same bytes.
func Encrypt(secret interfaces.RawSecret, password []byte, cost interfaces.CostProfile) (*Envelope, error) {
	if err := cost.Validate(); err != nil {
		return nil, err
	}

	privateKey, err := crypto.ToECDSA(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInput, err)
	}
	defer zeroKey(privateKey)

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate envelope id: %w", err)
	}

	key := &keystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}

	// keystore takes the password as a string, so one immutable copy is unavoidable here.
	data, err := keystore.EncryptKey(key, string(password), cost.N(), ScryptP)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}

	return Parse(data)
}

// Decrypt re-derives the key from password using the envelope's own parameters.
// The MAC is verified before anything is decrypted; any failure is reported as
// ErrAuthentication without distinguishing a wrong password from corruption.
func Decrypt(env *Envelope, password []byte) (interfaces.RawSecret, error) {
	key, err := keystore.DecryptKey(env.raw, string(password))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAuthentication, err)
	}
	defer zeroKey(key.PrivateKey)

	if crypto.PubkeyToAddress(key.PrivateKey.PublicKey) != env.Address() {
		return nil, fmt.Errorf("%w: envelope address does not match decrypted key", interfaces.ErrAuthentication)
	}

	return interfaces.RawSecret(crypto.FromECDSA(key.PrivateKey)), nil
}

// Parse validates a serialized envelope. Malformed input is reported as
// ErrAuthentication since it can only come from a corrupted envelope.
func Parse(data []byte) (*Envelope, error) {
	var header envelopeHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", interfaces.ErrAuthentication, err)
	}

	if header.Version != Version {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", interfaces.ErrAuthentication, header.Version)
	}

	if !common.IsHexAddress(header.Address) {
		return nil, fmt.Errorf("%w: invalid envelope address", interfaces.ErrAuthentication)
	}

	if err := validateKDFParams(header.Crypto); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAuthentication, err)
	}

	raw := make([]byte, len(data))
	copy(raw, data)
	return &Envelope{raw: raw, header: header}, nil
}

// Marshal returns the serialized envelope.
func (e *Envelope) Marshal() []byte {
	out := make([]byte, len(e.raw))
	copy(out, e.raw)
	return out
}

// Address returns the account address recorded in the envelope.
func (e *Envelope) Address() common.Address {
	return common.HexToAddress(e.header.Address)
}

// KDF returns the key-derivation algorithm name.
func (e *Envelope) KDF() string {
	return e.header.Crypto.KDF
}

// Cost returns the embedded scrypt cost so it can be reported before the slow step.
// Envelopes imported from other tools may use pbkdf2, which has no cost profile.
func (e *Envelope) Cost() (interfaces.CostProfile, error) {
	if e.header.Crypto.KDF != kdfScrypt {
		return 0, fmt.Errorf("envelope uses %s, not scrypt", e.header.Crypto.KDF)
	}

	n, err := intParam(e.header.Crypto.KDFParams, "n")
	if err != nil {
		return 0, err
	}
	return interfaces.NewCostProfileFromN(n)
}

// validateKDFParams rejects parameters that would make decryption pathologically expensive.
func validateKDFParams(c keystore.CryptoJSON) error {
	switch c.KDF {
	case kdfScrypt:
		n, err := intParam(c.KDFParams, "n")
		if err != nil {
			return err
		}
		if _, err := interfaces.NewCostProfileFromN(n); err != nil {
			return err
		}

		r, err := intParam(c.KDFParams, "r")
		if err != nil {
			return err
		}
		p, err := intParam(c.KDFParams, "p")
		if err != nil {
			return err
		}
		if r < 1 || r > 32 || p < 1 || p > 16 {
			return fmt.Errorf("scrypt parameters out of range: r=%d p=%d", r, p)
		}
	case kdfPBKDF2:
		c, err := intParam(c.KDFParams, "c")
		if err != nil {
			return err
		}
		if c < 1 || c > 1<<24 {
			return fmt.Errorf("pbkdf2 iteration count out of range: %d", c)
		}
	default:
		return fmt.Errorf("unsupported kdf %q", c.KDF)
	}

	dkLen, err := intParam(c.KDFParams, "dklen")
	if err != nil {
		return err
	}
	if dkLen != 32 {
		return fmt.Errorf("unsupported derived key length %d", dkLen)
	}
	return nil
}

func intParam(params map[string]interface{}, name string) (int, error) {
	value, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("missing kdf parameter %q", name)
	}

	f, ok := value.(float64)
	if !ok || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("invalid kdf parameter %q", name)
	}
	return int(f), nil
}

func zeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	b := k.D.Bits()
	for i := range b {
		b[i] = 0
	}
}
