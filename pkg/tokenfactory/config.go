package tokenfactory

import (
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/code-payments/tokenfactory-client/pkg/solana"
	"github.com/code-payments/tokenfactory-client/pkg/solana/tokenfactory"
)

// Config is the configuration of a Client built by NewClientFromConfig.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	RPCEndpoint string `mapstructure:"rpc_endpoint"`

	// RPCRateLimit caps the requests per second sent to RPCEndpoint. Zero
	// means no limit.
	RPCRateLimit float64 `mapstructure:"rpc_rate_limit"`

	// ProgramAddress is the base58 address of the deployed token factory
	// program.
	ProgramAddress string `mapstructure:"program_address"`

	// KeypairPath points at the payer's keypair, in the Solana CLI format.
	KeypairPath string `mapstructure:"keypair_path"`

	Commitment          string        `mapstructure:"commitment"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`

	// MaxStaleResubmits is the number of times a transaction is reassembled
	// with a fresh blockhash after the network reported its blockhash stale.
	MaxStaleResubmits uint `mapstructure:"max_stale_resubmits"`

	// ComputeUnitPrice is the priority fee in micro-lamports per compute
	// unit. Zero disables the priority fee.
	ComputeUnitPrice uint64 `mapstructure:"compute_unit_price"`

	// Memo is attached to every transaction when set.
	Memo string `mapstructure:"memo"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`
}

var defaultConfig = Config{
	LogLevel: "info",

	AppName: "tokenfactory-client",

	RPCEndpoint:    string(solana.EnvironmentLocal),
	ProgramAddress: base58.Encode(tokenfactory.DefaultProgramKey),
	KeypairPath:    "~/.config/solana/id.json",

	Commitment:          "confirmed",
	ConfirmationTimeout: 60 * time.Second,

	MaxStaleResubmits: 3,
}

var envBindings = map[string]string{
	"log_level": "LOG_LEVEL",

	"app_name": "APP_NAME",

	"rpc_endpoint":    "SOLANA_RPC_ENDPOINT",
	"rpc_rate_limit":  "SOLANA_RPC_RATE_LIMIT",
	"program_address": "TOKEN_FACTORY_PROGRAM",
	"keypair_path":    "SOLANA_KEYPAIR_PATH",

	"commitment":           "SOLANA_COMMITMENT",
	"confirmation_timeout": "CONFIRMATION_TIMEOUT",

	"max_stale_resubmits": "MAX_STALE_RESUBMITS",
	"compute_unit_price":  "COMPUTE_UNIT_PRICE",
	"memo":                "TRANSACTION_MEMO",

	"new_relic_license_key": "NEW_RELIC_LICENSE_KEY",
}

// DefaultConfig returns the configuration used for anything that is neither
// in the environment nor in a config file.
func DefaultConfig() Config {
	return defaultConfig
}

// LoadConfig reads the configuration from the environment and, when path is
// not empty, from the config file at path. Environment variables take
// precedence over the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "failed to bind %s", env)
		}
	}

	if len(path) > 0 {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	config := defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if len(config.AppName) == 0 {
		return nil, errors.New("must specify an application name")
	}
	if len(config.RPCEndpoint) == 0 {
		return nil, errors.New("must specify an rpc endpoint")
	}

	return &config, nil
}
