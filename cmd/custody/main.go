package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flashbots/go-utils/signature"
	"github.com/ruteri/key-custody/cmd/flags"
	"github.com/ruteri/key-custody/common"
	"github.com/ruteri/key-custody/custody"
	"github.com/ruteri/key-custody/interfaces"
	"github.com/ruteri/key-custody/prompt"
	"github.com/ruteri/key-custody/storage"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// tokenStoreTimeout bounds publishing to and fetching from remote token stores.
const tokenStoreTimeout = 30 * time.Second

var flagReenter = altsrc.NewBoolFlag(&cli.BoolFlag{
	Name:  "reenter-password",
	Value: true,
	Usage: "ask for the password a third time to verify the new token",
})

var flagMessage = &cli.StringFlag{
	Name:     "message",
	Required: true,
	Usage:    "message to sign",
}

var flagFlashbots = &cli.BoolFlag{
	Name:  "flashbots-header",
	Usage: "print an X-Flashbots-Signature header value for the message instead of a personal_sign signature",
}

var flagFrom = &cli.IntFlag{
	Name:  "from",
	Value: 14,
	Usage: "lowest cost exponent to time",
}

var flagTo = &cli.IntFlag{
	Name:  "to",
	Value: 22,
	Usage: "highest cost exponent to time",
}

func main() {
	memguard.CatchInterrupt()

	app := newApp(os.Stdout, os.Stderr, nil)
	app.ExitErrHandler = func(cCtx *cli.Context, err error) {
		if err == nil {
			return
		}
		fmt.Fprintln(cCtx.App.ErrWriter, "Error:", explain(err))
		memguard.SafeExit(exitCode(err))
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		memguard.SafeExit(exitFailure)
	}
	memguard.Purge()
}

// newApp builds the CLI. setupInput supplies the secret and passwords for setup;
// nil reads them from the terminal.
func newApp(stdout, stderr io.Writer, setupInput interfaces.SecretInput) *cli.App {
	setupFlags := withStoreFlags(flags.CostFlag, flags.HDPathFlag, flagReenter, flags.OutputFlag, flags.TokenNameFlag)
	loadFlags := withStoreFlags(flags.TokenFlag, flags.SourceFlag, flags.TokenNameFlag, flags.PasswordEnvFlag)
	signFlags := append(append([]cli.Flag{}, loadFlags...), flagMessage, flagFlashbots)
	inspectFlags := withStoreFlags(flags.TokenFlag, flags.SourceFlag, flags.TokenNameFlag)

	return &cli.App{
		Name:      "custody",
		Usage:     "Keep an Ethereum signing key on this machine under a password and a machine-bound key",
		Version:   common.Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:   "setup",
				Usage:  "Encrypt a private key or mnemonic into a custody token",
				Flags:  setupFlags,
				Before: flags.InitConfigFile(setupFlags),
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					path, err := custody.ParseDerivationPath(cCtx.String(flags.HDPathFlag.Name))
					if err != nil {
						return err
					}

					input := setupInput
					if input == nil {
						input = prompt.NewTerminal(cCtx.App.ErrWriter)
					}

					c, err := newCustodian(cCtx, log, input, func(cfg *custody.Config) {
						cfg.Cost = interfaces.CostProfile(cCtx.Int(flags.CostFlag.Name))
						cfg.DerivationPath = path
						cfg.ReenterOnVerify = cCtx.Bool(flagReenter.Name)
					})
					if err != nil {
						return err
					}
					defer c.Close()

					token, err := c.Setup()
					if err != nil {
						return err
					}

					name := cCtx.String(flags.TokenNameFlag.Name)
					if outputs := cCtx.StringSlice(flags.OutputFlag.Name); len(outputs) > 0 {
						if err := publishToken(contextOf(cCtx), log, outputs, name, token); err != nil {
							fmt.Fprintln(cCtx.App.ErrWriter, "The token below was NOT published, store it manually.")
							fmt.Fprintln(cCtx.App.Writer, token)
							return err
						}
						fmt.Fprintf(cCtx.App.ErrWriter, "\nToken published as %s to %s\n", name, strings.Join(outputs, ", "))
					}

					fmt.Fprintf(cCtx.App.ErrWriter, "\nAdd the following line to your configuration (e.g. .env):\n")
					fmt.Fprintf(cCtx.App.Writer, "%s=%s\n", name, token)
					return nil
				},
			},
			{
				Name:    "address",
				Aliases: []string{"load"},
				Usage:   "Unlock a custody token and print its account address",
				Flags:   loadFlags,
				Before:  flags.InitConfigFile(loadFlags),
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					token, err := resolveToken(cCtx, log)
					if err != nil {
						return err
					}

					c, password, err := unlocker(cCtx, log)
					if err != nil {
						return err
					}
					defer c.Close()
					defer memguard.WipeBytes(password)

					privateKey, address, err := c.Unlock(token, password)
					if err != nil {
						return err
					}
					custody.ZeroKey(privateKey)

					fmt.Fprintln(cCtx.App.Writer, address.Hex())
					return nil
				},
			},
			{
				Name:   "sign",
				Usage:  "Unlock a custody token and sign a message with EIP-191 personal_sign",
				Flags:  signFlags,
				Before: flags.InitConfigFile(signFlags),
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					token, err := resolveToken(cCtx, log)
					if err != nil {
						return err
					}

					c, password, err := unlocker(cCtx, log)
					if err != nil {
						return err
					}
					defer c.Close()
					defer memguard.WipeBytes(password)

					privateKey, address, err := c.Unlock(token, password)
					if err != nil {
						return err
					}
					defer custody.ZeroKey(privateKey)

					message := []byte(cCtx.String(flagMessage.Name))
					if cCtx.Bool(flagFlashbots.Name) {
						signer := signature.NewSigner(privateKey)
						header, err := signer.Create(message)
						if err != nil {
							return fmt.Errorf("failed to sign message: %w", err)
						}
						fmt.Fprintln(cCtx.App.Writer, header)
						return nil
					}

					sig, err := crypto.Sign(accounts.TextHash(message), privateKey)
					if err != nil {
						return fmt.Errorf("failed to sign message: %w", err)
					}
					sig[crypto.RecoveryIDOffset] += 27

					log.Debug("Signed message", slog.String("address", address.Hex()))
					fmt.Fprintln(cCtx.App.Writer, hexutil.Encode(sig))
					return nil
				},
			},
			{
				Name:   "inspect",
				Usage:  "Show the address and scrypt cost of a custody token without the password",
				Flags:  inspectFlags,
				Before: flags.InitConfigFile(inspectFlags),
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					token, err := resolveToken(cCtx, log)
					if err != nil {
						return err
					}

					c, err := newCustodian(cCtx, log, nil, nil)
					if err != nil {
						return err
					}
					defer c.Close()

					info, err := c.Inspect(token)
					if err != nil {
						return err
					}

					fmt.Fprintf(cCtx.App.Writer, "address: %s\nkdf: %s\n", info.Address.Hex(), info.KDF)
					if info.Cost != 0 {
						fmt.Fprintf(cCtx.App.Writer, "cost: %d (N=%d)\n", int(info.Cost), info.Cost.N())
					}
					return nil
				},
			},
			{
				Name:  "benchmark",
				Usage: "Time a full setup and load round trip per scrypt cost, without touching the credential store",
				Flags: []cli.Flag{flagFrom, flagTo},
				Action: func(cCtx *cli.Context) error {
					log := flags.SetupLogger(cCtx)

					costs, err := custody.CostRange(cCtx.Int(flagFrom.Name), cCtx.Int(flagTo.Name))
					if err != nil {
						return err
					}

					report, err := custody.Benchmark(costs, log)
					if err != nil {
						return err
					}
					return report.Render(cCtx.App.Writer)
				},
			},
		},
	}
}

func withStoreFlags(extra ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, flags.StoreFlags...), extra...)
}

// newCustodian builds a custodian on the selected credential store. configure, when
// set, applies the setup-only options.
func newCustodian(cCtx *cli.Context, log *slog.Logger, input interfaces.SecretInput, configure func(*custody.Config)) (*custody.Custodian, error) {
	store, err := flags.NewSecretStore(cCtx, log)
	if err != nil {
		return nil, err
	}

	cfg := custody.DefaultConfig()
	cfg.ServiceID = cCtx.String(flags.ServiceIDFlag.Name)
	cfg.IdentityID = cCtx.String(flags.IdentityIDFlag.Name)
	if configure != nil {
		configure(&cfg)
	}

	return custody.New(cfg, store, input, cCtx.App.ErrWriter, log)
}

// unlocker builds a custodian for load-type commands and reads the password,
// from the --password-env variable when set and the terminal otherwise.
func unlocker(cCtx *cli.Context, log *slog.Logger) (*custody.Custodian, []byte, error) {
	c, err := newCustodian(cCtx, log, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	input := prompt.NewEnv(cCtx.String(flags.PasswordEnvFlag.Name), prompt.NewTerminal(cCtx.App.ErrWriter))
	password, err := input.ReadSecret("Enter password to decrypt your private key: ")
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, password, nil
}

// resolveToken reads the token from --token (or ENCRYPTED_PRIVATE_KEY), falling
// back to the token stores given with --source.
func resolveToken(cCtx *cli.Context, log *slog.Logger) (interfaces.CustodyToken, error) {
	if raw := cCtx.String(flags.TokenFlag.Name); strings.TrimSpace(raw) != "" {
		return interfaces.NewCustodyToken(raw)
	}

	sources := cCtx.StringSlice(flags.SourceFlag.Name)
	if len(sources) == 0 {
		return "", fmt.Errorf("%w: no token given, use --token, %s or --source", interfaces.ErrInput, interfaces.DefaultTokenName)
	}

	locations, err := storage.ParseLocations(sources)
	if err != nil {
		return "", err
	}
	store, err := storage.NewTokenStoreFactory(log).CreateMultiBackend(locations)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(contextOf(cCtx), tokenStoreTimeout)
	defer cancel()

	name := cCtx.String(flags.TokenNameFlag.Name)
	token, err := store.Fetch(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token %s: %w", name, err)
	}
	return token, nil
}

func publishToken(ctx context.Context, log *slog.Logger, outputs []string, name string, token interfaces.CustodyToken) error {
	if err := interfaces.ValidateTokenName(name); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInput, err)
	}

	locations, err := storage.ParseLocations(outputs)
	if err != nil {
		return err
	}
	store, err := storage.NewTokenStoreFactory(log).CreateMultiBackend(locations)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, tokenStoreTimeout)
	defer cancel()

	return store.Store(ctx, name, token)
}

func contextOf(cCtx *cli.Context) context.Context {
	if cCtx.Context != nil {
		return cCtx.Context
	}
	return context.Background()
}
