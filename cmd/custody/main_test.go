package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flashbots/go-utils/signature"
	"github.com/ruteri/key-custody/custody"
	"github.com/ruteri/key-custody/interfaces"
	"github.com/ruteri/key-custody/prompt"
	"github.com/ruteri/key-custody/secretstore"
	"github.com/ruteri/key-custody/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oneKeyAddress = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{errors.New("boom"), exitFailure},
		{fmt.Errorf("%w: bad hex", interfaces.ErrInput), exitInput},
		{interfaces.ErrInvalidLocationURI, exitInput},
		{prompt.ErrNoTerminal, exitInput},
		{interfaces.ErrMismatch, exitMismatch},
		{fmt.Errorf("%w: wrong machine", interfaces.ErrIntegrity), exitIntegrity},
		{interfaces.ErrAuthentication, exitAuthentication},
		{fmt.Errorf("%w: %w", interfaces.ErrVerification, interfaces.ErrAuthentication), exitVerification},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, exitCode(tt.err), "error: %v", tt.err)
	}

	assert.Equal(t, "Could not decrypt key with given password", explain(interfaces.ErrAuthentication))
}

// provision creates a token for the key 0x00..01 on a file-backed machine key.
func provision(t *testing.T) (storePath string, token interfaces.CustodyToken) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	storePath = filepath.Join(t.TempDir(), "machine-key.json")
	store, err := secretstore.NewFileStore(storePath, log)
	require.NoError(t, err)

	cfg := custody.DefaultConfig()
	cfg.Cost = 4
	c, err := custody.New(cfg, store, prompt.NewScripted(), io.Discard, log)
	require.NoError(t, err)
	defer c.Close()

	secret, err := custody.ParseSecret([]byte("0x"+strings.Repeat("00", 31)+"01"), nil)
	require.NoError(t, err)

	token, err = c.SetupWithSecret(secret, []byte("pw"))
	require.NoError(t, err)
	return storePath, token
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWithInput(t, nil, args...)
}

func runWithInput(t *testing.T, input interfaces.SecretInput, args ...string) (string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	app := newApp(stdout, io.Discard, input)
	err := app.Run(append([]string{"custody"}, args...))
	return stdout.String(), err
}

func TestCommands(t *testing.T) {
	storePath, token := provision(t)
	storeArgs := []string{"--secret-store", "file", "--secret-store-path", storePath}
	t.Setenv("CUSTODY_PASSWORD", "pw")
	t.Setenv(interfaces.DefaultTokenName, "")

	t.Run("address", func(t *testing.T) {
		out, err := run(t, append([]string{"address", "--token", string(token)}, storeArgs...)...)
		require.NoError(t, err)
		assert.Equal(t, oneKeyAddress+"\n", out)
	})

	t.Run("sign", func(t *testing.T) {
		out, err := run(t, append([]string{"sign", "--token", string(token), "--message", "hello"}, storeArgs...)...)
		require.NoError(t, err)

		sig, err := hexutil.Decode(strings.TrimSpace(out))
		require.NoError(t, err)
		require.Len(t, sig, crypto.SignatureLength)
		sig[crypto.RecoveryIDOffset] -= 27

		pub, err := crypto.SigToPub(accounts.TextHash([]byte("hello")), sig)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(oneKeyAddress), crypto.PubkeyToAddress(*pub))
	})

	t.Run("sign flashbots header", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","method":"eth_sendBundle","params":[],"id":1}`
		out, err := run(t, append([]string{"sign", "--token", string(token), "--message", body, "--flashbots-header"}, storeArgs...)...)
		require.NoError(t, err)

		signer, err := signature.Verify(strings.TrimSpace(out), []byte(body))
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(oneKeyAddress), signer)
	})

	t.Run("inspect", func(t *testing.T) {
		out, err := run(t, append([]string{"inspect", "--token", string(token)}, storeArgs...)...)
		require.NoError(t, err)
		assert.Contains(t, out, "address: "+oneKeyAddress)
		assert.Contains(t, out, "cost: 4 (N=16)")
	})

	t.Run("token from source", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), ".env")
		backend, err := storage.NewDotenvBackend(envPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
		require.NoError(t, err)
		require.NoError(t, backend.Store(context.Background(), interfaces.DefaultTokenName, token))

		out, err := run(t, append([]string{"load", "--source", "env://" + envPath}, storeArgs...)...)
		require.NoError(t, err)
		assert.Equal(t, oneKeyAddress+"\n", out)
	})

	t.Run("config file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "custody.yaml")
		config := fmt.Sprintf("secret-store: file\nsecret-store-path: %s\n", storePath)
		require.NoError(t, os.WriteFile(configPath, []byte(config), 0600))

		out, err := run(t, "--config", configPath, "address", "--token", string(token))
		require.NoError(t, err)
		assert.Equal(t, oneKeyAddress+"\n", out)
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Setenv("CUSTODY_PASSWORD", "nope")
		_, err := run(t, append([]string{"address", "--token", string(token)}, storeArgs...)...)
		assert.Equal(t, exitAuthentication, exitCode(err))
	})

	t.Run("corrupt token", func(t *testing.T) {
		_, err := run(t, append([]string{"address", "--token", "0OIl"}, storeArgs...)...)
		assert.Equal(t, exitIntegrity, exitCode(err))
	})

	t.Run("other machine", func(t *testing.T) {
		otherStore := filepath.Join(t.TempDir(), "other.json")
		_, err := run(t, "inspect", "--token", string(token), "--secret-store", "file", "--secret-store-path", otherStore)
		assert.Equal(t, exitIntegrity, exitCode(err))
	})

	t.Run("no token", func(t *testing.T) {
		_, err := run(t, append([]string{"address"}, storeArgs...)...)
		assert.Equal(t, exitInput, exitCode(err))
	})
}

func TestBenchmarkCommand(t *testing.T) {
	out, err := run(t, "benchmark", "--from", "4", "--to", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "total")
	assert.Equal(t, 3, strings.Count(out, "\n"), "Header plus one row per cost")

	_, err = run(t, "benchmark", "--from", "9", "--to", "8")
	assert.Equal(t, exitInput, exitCode(err))
}

func TestSetupCommand(t *testing.T) {
	oneKeyHex := "0x" + strings.Repeat("00", 31) + "01"
	storePath := filepath.Join(t.TempDir(), "machine-key.json")
	storeArgs := []string{"--secret-store", "file", "--secret-store-path", storePath}
	t.Setenv("CUSTODY_PASSWORD", "pw")
	t.Setenv(interfaces.DefaultTokenName, "")

	setup := func(t *testing.T, extra ...string) (*prompt.Scripted, string, error) {
		t.Helper()
		input := prompt.NewScripted(oneKeyHex, "pw", "pw", "pw")
		args := append(append([]string{"setup", "--cost", "4"}, storeArgs...), extra...)
		out, err := runWithInput(t, input, args...)
		return input, out, err
	}

	t.Run("publish to file and dotenv", func(t *testing.T) {
		dir := t.TempDir()
		tokensDir := filepath.Join(dir, "tokens")
		envPath := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(envPath, []byte("RPC_URL=http://localhost:8545\n"), 0600))

		input, out, err := setup(t, "--output", "file://"+tokensDir, "--output", "env://"+envPath, "--name", "DEPLOYER")
		require.NoError(t, err)
		assert.Equal(t, 0, input.Remaining(), "Setup reads the secret, the password twice and the verification password")

		require.True(t, strings.HasPrefix(out, "DEPLOYER="), "stdout: %q", out)
		token := interfaces.CustodyToken(strings.TrimSpace(strings.TrimPrefix(out, "DEPLOYER=")))

		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		fileBackend, err := storage.NewFileBackend(tokensDir, log)
		require.NoError(t, err)
		dotenvBackend, err := storage.NewDotenvBackend(envPath, log)
		require.NoError(t, err)

		for _, backend := range []interfaces.TokenStore{fileBackend, dotenvBackend} {
			published, err := backend.Fetch(context.Background(), "DEPLOYER")
			require.NoError(t, err, backend.Name())
			assert.Equal(t, token, published, backend.Name())
		}

		content, err := os.ReadFile(envPath)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(content), "RPC_URL=http://localhost:8545\n"))

		addr, err := run(t, append([]string{"address", "--source", "env://" + envPath, "--name", "DEPLOYER"}, storeArgs...)...)
		require.NoError(t, err)
		assert.Equal(t, oneKeyAddress+"\n", addr)
	})

	t.Run("unpublished token is still printed", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0600))

		_, out, err := setup(t, "--output", "file://"+filepath.Join(blocker, "tokens"))
		require.Error(t, err)

		token := strings.TrimSpace(out)
		require.NotEmpty(t, token)
		addr, err := run(t, append([]string{"address", "--token", token}, storeArgs...)...)
		require.NoError(t, err)
		assert.Equal(t, oneKeyAddress+"\n", addr)
	})

	t.Run("invalid token name", func(t *testing.T) {
		_, out, err := setup(t, "--output", "file://"+t.TempDir(), "--name", "bad name")
		assert.Equal(t, exitInput, exitCode(err))
		assert.NotEmpty(t, strings.TrimSpace(out))
	})

	t.Run("zero cost is rejected", func(t *testing.T) {
		input := prompt.NewScripted(oneKeyHex, "pw", "pw", "pw")
		_, err := runWithInput(t, input, append([]string{"setup", "--cost", "0"}, storeArgs...)...)
		assert.Equal(t, exitInput, exitCode(err))
		assert.Equal(t, 4, input.Remaining(), "Nothing is read before the cost is validated")
	})
}
