package envelope

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/key-custody/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCost = interfaces.CostProfile(10)

func testSecret(t *testing.T) interfaces.RawSecret {
	key, err := crypto.GenerateKey()
	require.NoError(t, err, "Failed to generate test key")
	return interfaces.RawSecret(crypto.FromECDSA(key))
}

func TestEnvelope_RoundTrip(t *testing.T) {
	secret := testSecret(t)
	password := []byte("correct horse")

	env, err := Encrypt(secret, password, testCost)
	require.NoError(t, err, "Encrypt should succeed")

	privateKey, err := crypto.ToECDSA(secret)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(privateKey.PublicKey), env.Address(), "Envelope should record the key address")

	decrypted, err := Decrypt(env, password)
	require.NoError(t, err, "Decrypt should succeed with the right password")
	assert.Equal(t, secret, decrypted, "Decrypted key should match the original")
}

func TestEnvelope_WrongPassword(t *testing.T) {
	env, err := Encrypt(testSecret(t), []byte("correct horse"), testCost)
	require.NoError(t, err)

	decrypted, err := Decrypt(env, []byte("wrong"))
	assert.ErrorIs(t, err, interfaces.ErrAuthentication, "Wrong password should fail authentication")
	assert.Nil(t, decrypted, "No bytes should be released on failure")
}

func TestEnvelope_NonDeterministic(t *testing.T) {
	secret := testSecret(t)
	password := []byte("password")

	first, err := Encrypt(secret, password, testCost)
	require.NoError(t, err)
	second, err := Encrypt(secret, password, testCost)
	require.NoError(t, err)

	assert.NotEqual(t, first.Marshal(), second.Marshal(), "Fresh salt and IV should make every envelope unique")
}

func TestEnvelope_Cost(t *testing.T) {
	env, err := Encrypt(testSecret(t), []byte("password"), testCost)
	require.NoError(t, err)

	cost, err := env.Cost()
	require.NoError(t, err)
	assert.Equal(t, testCost, cost, "Envelope should report the cost it was created with")
	assert.Equal(t, "scrypt", env.KDF())
}

func TestEnvelope_InvalidInputs(t *testing.T) {
	tests := []struct {
		name   string
		secret interfaces.RawSecret
		cost   interfaces.CostProfile
	}{
		{
			name:   "zero key",
			secret: make(interfaces.RawSecret, 32),
			cost:   testCost,
		},
		{
			name:   "short key",
			secret: interfaces.RawSecret{1, 2, 3},
			cost:   testCost,
		},
		{
			name:   "cost too low",
			secret: testSecret(t),
			cost:   interfaces.MinCostProfile - 1,
		},
		{
			name:   "cost too high",
			secret: testSecret(t),
			cost:   interfaces.MaxCostProfile + 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encrypt(tt.secret, []byte("password"), tt.cost)
			assert.ErrorIs(t, err, interfaces.ErrInput)
		})
	}
}

func TestEnvelope_CorruptedMAC(t *testing.T) {
	env, err := Encrypt(testSecret(t), []byte("password"), testCost)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Marshal(), &doc))
	cryptoSection := doc["crypto"].(map[string]interface{})
	mac := []byte(cryptoSection["mac"].(string))
	if mac[0] == '0' {
		mac[0] = '1'
	} else {
		mac[0] = '0'
	}
	cryptoSection["mac"] = string(mac)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	corrupted, err := Parse(data)
	require.NoError(t, err, "Structure is still valid")

	_, err = Decrypt(corrupted, []byte("password"))
	assert.ErrorIs(t, err, interfaces.ErrAuthentication, "A corrupted MAC is indistinguishable from a wrong password")
}

func TestEnvelope_SwappedAddress(t *testing.T) {
	env, err := Encrypt(testSecret(t), []byte("password"), testCost)
	require.NoError(t, err)

	other := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data := bytes.Replace(env.Marshal(),
		[]byte(`"address":"`+env.header.Address+`"`),
		[]byte(`"address":"`+other.Hex()[2:]+`"`), 1)

	swapped, err := Parse(data)
	require.NoError(t, err)

	_, err = Decrypt(swapped, []byte("password"))
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "not json"},
		{name: "wrong version", data: `{"version":1,"address":"0000000000000000000000000000000000000001","crypto":{}}`},
		{name: "bad address", data: `{"version":3,"address":"xyz","crypto":{"kdf":"scrypt"}}`},
		{name: "unknown kdf", data: `{"version":3,"address":"0000000000000000000000000000000000000001","crypto":{"kdf":"argon2","kdfparams":{}}}`},
		{name: "huge n", data: `{"version":3,"address":"0000000000000000000000000000000000000001","crypto":{"kdf":"scrypt","kdfparams":{"n":4294967296,"r":8,"p":1,"dklen":32}}}`},
		{name: "n not power of two", data: `{"version":3,"address":"0000000000000000000000000000000000000001","crypto":{"kdf":"scrypt","kdfparams":{"n":1000,"r":8,"p":1,"dklen":32}}}`},
		{name: "wrong dklen", data: `{"version":3,"address":"0000000000000000000000000000000000000001","crypto":{"kdf":"scrypt","kdfparams":{"n":1024,"r":8,"p":1,"dklen":16}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.ErrorIs(t, err, interfaces.ErrAuthentication)
		})
	}
}
