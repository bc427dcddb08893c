package custody

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/awnumar/memguard"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/key-custody/interfaces"
	"github.com/tyler-smith/go-bip39"
)

// ParseSecret turns operator input into a private key. Input containing whitespace
// is treated as a BIP-39 mnemonic and derived along path; anything else is a hex
// private key with an optional 0x prefix.
//
// Errors never echo the input back.
func ParseSecret(input []byte, path accounts.DerivationPath) (interfaces.RawSecret, error) {
	text := strings.TrimSpace(string(input))
	if text == "" {
		return nil, fmt.Errorf("%w: empty secret", interfaces.ErrInput)
	}

	if strings.IndexFunc(text, unicode.IsSpace) >= 0 {
		return secretFromMnemonic(text, path)
	}
	return secretFromHex(text)
}

func secretFromHex(text string) (interfaces.RawSecret, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")

	raw, err := hex.DecodeString(clean)
	if err != nil {
		// hex errors quote the offending byte, so the cause is dropped.
		return nil, fmt.Errorf("%w: private key is not valid hex", interfaces.ErrInput)
	}
	defer memguard.WipeBytes(raw)

	secret, err := interfaces.NewRawSecretFromBytes(raw)
	if err != nil {
		return nil, err
	}

	if _, err := crypto.ToECDSA(secret); err != nil {
		secret.Wipe()
		return nil, fmt.Errorf("%w: not a valid secp256k1 private key", interfaces.ErrInput)
	}
	return secret, nil
}

func secretFromMnemonic(text string, path accounts.DerivationPath) (interfaces.RawSecret, error) {
	mnemonic := strings.Join(strings.Fields(strings.ToLower(text)), " ")

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable mnemonic phrase", interfaces.ErrInput)
	}
	defer memguard.WipeBytes(seed)

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot derive master key from mnemonic", interfaces.ErrInput)
	}
	for _, index := range path {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot derive %s from mnemonic", interfaces.ErrInput, path)
		}
	}

	privateKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot derive private key from mnemonic", interfaces.ErrInput)
	}

	raw := privateKey.Serialize()
	defer memguard.WipeBytes(raw)
	privateKey.Zero()

	return interfaces.NewRawSecretFromBytes(raw)
}

// AddressOf returns the account address controlled by secret.
func AddressOf(secret interfaces.RawSecret) (common.Address, error) {
	privateKey, err := crypto.ToECDSA(secret)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: not a valid secp256k1 private key", interfaces.ErrInput)
	}
	defer zeroKeyBits(privateKey.D.Bits())

	return crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

// ParseDerivationPath parses an HD path such as m/44'/60'/0'/0/0.
func ParseDerivationPath(path string) (accounts.DerivationPath, error) {
	if path == "" {
		return accounts.DefaultBaseDerivationPath, nil
	}
	parsed, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid derivation path: %v", interfaces.ErrInput, err)
	}
	return parsed, nil
}
