package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/code-payments/spl-airdrop/pkg/common"
	"github.com/code-payments/spl-airdrop/pkg/metrics"
	"github.com/code-payments/spl-airdrop/pkg/netutil"
	"github.com/code-payments/spl-airdrop/pkg/solana"
)

const (
	appName   = "spl-airdrop"
	envPrefix = "SPL_AIRDROP"

	exitCodeSuccess  = 0
	exitCodeFatal    = 1
	exitCodeFailures = 2
)

// errRunHadFailures is returned by a batch command that completed, but with
// one or more failed destinations.
var errRunHadFailures = errors.New("one or more destinations failed")

// baseConfig holds the settings shared by every command.
type baseConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	RPCEndpoint         string        `mapstructure:"rpc_endpoint"`
	Cluster             string        `mapstructure:"cluster"`
	Commitment          string        `mapstructure:"commitment"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`

	WalletKeypair string `mapstructure:"wallet_keypair"`
	MintKeypair   string `mapstructure:"mint_keypair"`
	Mint          string `mapstructure:"mint"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`
}

var defaultConfig = baseConfig{
	LogLevel:            "info",
	LogFormat:           "text",
	RPCEndpoint:         string(solana.EnvironmentDev),
	Commitment:          "confirmed",
	ConfirmationTimeout: 60 * time.Second,
	WalletKeypair:       "privateKey.json",
	MintKeypair:         "mint.json",
}

var configPath string

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)

	err := root.Execute()
	code := exitCode(err)
	if code == exitCodeFatal {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitCodeSuccess
	case errors.Is(err, errRunHadFailures):
		return exitCodeFailures
	default:
		return exitCodeFatal
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Create an SPL token, mint its supply, and airdrop it to a list of wallets",
		Long: `spl-airdrop runs one-shot batch operations against the Solana SPL token
program: create a mint, mint an initial supply, airdrop balances to a list of
destinations, and verify those balances.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfigFile()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "optional YAML config file")
	flags.String("log-level", defaultConfig.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.String("log-format", defaultConfig.LogFormat, "log format (text or json)")
	flags.String("rpc-endpoint", defaultConfig.RPCEndpoint, "Solana JSON-RPC endpoint")
	flags.String("cluster", "", "cluster shorthand (dev, test or prod), overriding --rpc-endpoint")
	flags.String("commitment", defaultConfig.Commitment, "commitment for reads and confirmations (processed, confirmed or finalized)")
	flags.Duration("confirmation-timeout", defaultConfig.ConfirmationTimeout, "how long to wait for a transaction to reach the commitment")
	flags.String("wallet-keypair", defaultConfig.WalletKeypair, "funding wallet keypair file")
	flags.String("mint-keypair", defaultConfig.MintKeypair, "mint keypair file")
	flags.String("mint", "", "mint address, used instead of --mint-keypair when the keypair isn't needed")
	flags.String("new-relic-license-key", "", "enables New Relic metrics when set")
	bindFlags(flags)

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	root.AddCommand(
		newCreateCommand(),
		newMintCommand(),
		newAirdropCommand(),
		newVerifyCommand(),
	)
	return root
}

// bindFlags binds every flag to the viper key of the same name, with dashes
// replaced by underscores. Flags take precedence over the environment, which
// takes precedence over the config file.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = viper.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

func loadConfigFile() error {
	if len(configPath) == 0 {
		return nil
	}

	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to load config %s", configPath)
	}
	return nil
}

func loadBaseConfig() (*baseConfig, error) {
	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if len(config.Cluster) > 0 {
		env, err := solana.ParseEnvironment(config.Cluster)
		if err != nil {
			return nil, err
		}
		config.RPCEndpoint = string(env)
	}
	if len(config.RPCEndpoint) == 0 {
		return nil, errors.New("must specify an rpc endpoint")
	}
	if err := netutil.ValidateHTTPURL(config.RPCEndpoint, false); err != nil {
		return nil, errors.Wrapf(err, "invalid rpc endpoint %q", config.RPCEndpoint)
	}

	if _, err := solana.ParseCommitment(config.Commitment); err != nil {
		return nil, err
	}

	switch config.LogFormat {
	case "text", "json":
	default:
		return nil, errors.Errorf("unknown log format %q (expected text or json)", config.LogFormat)
	}

	return &config, nil
}

func configureLogger(config *baseConfig, metricsProvider *newrelic.Application) {
	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if config.LogFormat == "json" {
		formatter = &logrus.JSONFormatter{}
	}

	if metricsProvider != nil {
		logrus.SetFormatter(metrics.NewLogFormatter(metricsProvider, formatter))
	} else {
		logrus.SetFormatter(formatter)
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	// Reports are written to stdout
	logrus.SetOutput(os.Stderr)
}

// environment is everything a command needs to talk to the cluster.
type environment struct {
	config     *baseConfig
	log        *logrus.Entry
	sc         solana.Client
	commitment solana.Commitment
	wallet     *common.Account
}

// setup loads the shared config, configures logging and metrics, and loads
// the wallet. The returned context is cancelled on SIGINT or SIGTERM, and
// carries a New Relic transaction for the action when metrics are enabled.
// The returned func must be called once the action completes.
func setup(action string) (context.Context, *environment, func(), error) {
	config, err := loadBaseConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		metricsProvider, err = newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(appName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "error connecting to new relic")
		}
	}

	configureLogger(config, metricsProvider)

	log := logrus.StandardLogger().WithFields(logrus.Fields{
		"type":   "cli",
		"action": action,
	})

	commitment, err := solana.ParseCommitment(config.Commitment)
	if err != nil {
		return nil, nil, nil, err
	}

	wallet, err := common.LoadKeypairFile(config.WalletKeypair)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx = metrics.NewContext(ctx, metricsProvider)
	ctx, endTxn := metrics.StartTransaction(ctx, fmt.Sprintf("cli__%s", strings.ReplaceAll(action, "-", "_")))

	env := &environment{
		config:     config,
		log:        log,
		sc:         solana.New(config.RPCEndpoint, solana.WithConfirmationTimeout(config.ConfirmationTimeout)),
		commitment: commitment,
		wallet:     wallet,
	}

	log.WithFields(logrus.Fields{
		"rpc_endpoint": config.RPCEndpoint,
		"commitment":   config.Commitment,
		"wallet":       wallet.String(),
	}).Info("loaded configuration")

	cleanup := func() {
		endTxn()
		stop()
		if metricsProvider != nil {
			metricsProvider.Shutdown(10 * time.Second)
		}
	}
	return ctx, env, cleanup, nil
}

// loadMint returns the mint from --mint if set, otherwise from the mint
// keypair file. A signing mint is only needed for creation.
func (e *environment) loadMint(requireKeypair bool) (*common.Account, error) {
	if len(e.config.Mint) > 0 && !requireKeypair {
		mint, err := common.NewAccountFromPublicKeyString(e.config.Mint)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid mint %q", e.config.Mint)
		}
		return mint, nil
	}

	return common.LoadKeypairFile(e.config.MintKeypair)
}
