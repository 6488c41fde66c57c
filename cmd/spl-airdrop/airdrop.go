package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/code-payments/spl-airdrop/pkg/airdrop"
)

const defaultAirdropList = "airdrop.json"

type batchConfig struct {
	AirdropList string `mapstructure:"airdrop_list"`
	FailedOut   string `mapstructure:"failed_out"`
}

type batchFunc func(ctx context.Context, svc *airdrop.Service, destinations []*airdrop.Destination) (*airdrop.Report, error)

func newAirdropCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "airdrop",
		Short: "Transfer each destination its count from the wallet's token account",
		Long: `Transfers each destination in --airdrop-list its count, creating its
associated token account if needed. The wallet's balance must cover the sum
of all counts. Failed destinations are printed to stdout and, with
--failed-out, written in the input format so they can be retried.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindFlags(cmd.Flags())
			return runBatch(cmd, airdrop.ActionAirdrop, func(ctx context.Context, svc *airdrop.Service, destinations []*airdrop.Destination) (*airdrop.Report, error) {
				return svc.Airdrop(ctx, destinations)
			})
		},
	}

	addBatchFlags(cmd.Flags())
	addTransferFlags(cmd.Flags())
	return cmd
}

func newVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-airdrop",
		Short: "Check each destination holds at least its count",
		Long: `Reads the balance of each destination's associated token account and
reports those holding less than their count. Missing accounts are created
unless --no-create is set, in which case they count as a zero balance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindFlags(cmd.Flags())
			return runBatch(cmd, airdrop.ActionVerify, func(ctx context.Context, svc *airdrop.Service, destinations []*airdrop.Destination) (*airdrop.Report, error) {
				return svc.Verify(ctx, destinations)
			})
		},
	}

	addBatchFlags(cmd.Flags())
	cmd.Flags().Bool("no-create", false, "treat missing token accounts as empty instead of creating them")
	return cmd
}

// Tuning flags default to zero so that an unset flag falls through to the
// environment, the config file, and then the service default.
func addBatchFlags(flags *pflag.FlagSet) {
	flags.String("airdrop-list", defaultAirdropList, "JSON destination list")
	flags.String("failed-out", "", "write failed destinations to this file, in the input format")
	flags.Uint64("concurrency", 0, "destinations processed at once (default 1)")
	flags.Float64("rpc-rate-limit", 0, "max RPC calls per second (default unlimited)")
	flags.Uint64("max-resolve-attempts", 0, "attempts to find or create a token account (default 5)")
	flags.Duration("resolve-backoff", 0, "base backoff between resolve attempts (default 500ms)")
	flags.Duration("max-backoff", 0, "upper bound on any backoff (default 10s)")
	flags.Float64("backoff-jitter", 0, "fraction of jitter applied to backoffs (default 0.1)")
	flags.Uint64("max-balance-attempts", 0, "attempts to read a balance (default 5)")
	flags.Duration("balance-backoff", 0, "base backoff between balance reads (default 10s)")
}

func addTransferFlags(flags *pflag.FlagSet) {
	flags.Duration("transfer-failure-delay", 0, "pause after a failed transfer (default 10s)")
}

func loadBatchConfig() (*batchConfig, error) {
	config := batchConfig{AirdropList: defaultAirdropList}
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "invalid batch config")
	}
	if len(config.AirdropList) == 0 {
		return nil, errors.New("must specify an airdrop list")
	}
	return &config, nil
}

func runBatch(cmd *cobra.Command, action airdrop.Action, fn batchFunc) error {
	config, err := loadBatchConfig()
	if err != nil {
		return err
	}

	destinations, err := airdrop.LoadDestinations(config.AirdropList)
	if err != nil {
		return err
	}

	ctx, env, cleanup, err := setup(string(action))
	if err != nil {
		return err
	}
	defer cleanup()

	mintAccount, err := env.loadMint(false)
	if err != nil {
		return err
	}

	svc, err := airdrop.New(env.sc, env.commitment, env.wallet, mintAccount, airdrop.WithViperConfigs(viper.GetViper()))
	if err != nil {
		return err
	}

	report, err := fn(ctx, svc, destinations)
	if err != nil {
		return errors.Wrapf(err, "%s failed", action)
	}

	return writeReport(cmd.OutOrStdout(), report, config.FailedOut)
}

// writeReport prints the failed list and, if requested, writes the failed
// destinations for a later run. The file is written even when empty so a
// stale list from an earlier run isn't retried.
func writeReport(out io.Writer, report *airdrop.Report, failedOut string) error {
	if report.HasFailures() {
		data, err := report.FailedJSON()
		if err != nil {
			return errors.Wrap(err, "failed to render failed list")
		}
		fmt.Fprintln(out, string(data))
	}

	if len(failedOut) > 0 {
		if err := airdrop.WriteDestinations(failedOut, report.FailedDestinations()); err != nil {
			return err
		}
	}

	if report.HasFailures() {
		return errors.Wrapf(errRunHadFailures, "%d of %d destinations failed", len(report.Failed), report.Total)
	}
	return nil
}
