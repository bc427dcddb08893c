package flags

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/ruteri/key-custody/common"
	"github.com/ruteri/key-custody/interfaces"
	"github.com/ruteri/key-custody/secretstore"
	"github.com/ruteri/key-custody/seal"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// NewSecretStore opens the credential store holding the machine key.
func NewSecretStore(cCtx *cli.Context, log *slog.Logger) (interfaces.SecretStore, error) {
	return secretstore.New(cCtx.String(SecretStoreFlag.Name), cCtx.String(SecretStorePathFlag.Name), log)
}

// InitConfigFile loads values for flags not given on the command line from the
// YAML file named by --config.
func InitConfigFile(flags []cli.Flag) cli.BeforeFunc {
	return altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc(ConfigFlag.Name))
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	EnvVars: []string{"CUSTODY_CONFIG"},
	Usage:   "YAML file with default values for command flags",
}

var SecretStoreFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "secret-store",
	Value:   secretstore.KindKeyring,
	EnvVars: []string{"CUSTODY_SECRET_STORE"},
	Usage:   "where the machine key lives: 'keyring' (OS credential store) or 'file'",
})

var SecretStorePathFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:    "secret-store-path",
	EnvVars: []string{"CUSTODY_SECRET_STORE_PATH"},
	Usage:   "path of the machine key file when --secret-store=file",
})

var ServiceIDFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:  "service-id",
	Value: seal.DefaultServiceID,
	Usage: "credential store service name of the machine key",
})

var IdentityIDFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:  "identity-id",
	Value: seal.DefaultIdentityID,
	Usage: "credential store account name of the machine key",
})

var CostFlag = altsrc.NewIntFlag(&cli.IntFlag{
	Name:  "cost",
	Value: int(interfaces.DefaultCostProfile),
	Usage: "scrypt cost exponent, N = 2^cost; run 'benchmark' to pick one",
})

var HDPathFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:  "hd-path",
	Value: "m/44'/60'/0'/0/0",
	Usage: "derivation path used when the secret is a mnemonic phrase",
})

var TokenFlag = &cli.StringFlag{
	Name:    "token",
	EnvVars: []string{interfaces.DefaultTokenName},
	Usage:   "custody token to load",
}

var SourceFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
	Name:  "source",
	Usage: "token store URI(s) to fetch the token from (file://, env://, s3://, vault://)",
})

var OutputFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
	Name:  "output",
	Usage: "token store URI(s) to publish the new token to (file://, env://, s3://, vault://)",
})

var TokenNameFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:  "name",
	Value: interfaces.DefaultTokenName,
	Usage: "name of the token in token stores",
})

var PasswordEnvFlag = altsrc.NewStringFlag(&cli.StringFlag{
	Name:  "password-env",
	Value: "CUSTODY_PASSWORD",
	Usage: "environment variable consulted for the password before prompting (load only)",
})

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "key-custody",
	Usage: "add 'service' tag to logs",
}

var CommonFlags = []cli.Flag{
	ConfigFlag,
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

// StoreFlags select the machine key slot and are shared by every command that
// touches the seal.
var StoreFlags = []cli.Flag{
	SecretStoreFlag,
	SecretStorePathFlag,
	ServiceIDFlag,
	IdentityIDFlag,
}
