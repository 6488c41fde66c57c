package main

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/code-payments/spl-airdrop/pkg/mint"
	"github.com/code-payments/spl-airdrop/pkg/solana/token"
)

type createConfig struct {
	Decimals uint `mapstructure:"decimals"`
}

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the token mint, with the wallet as mint authority",
		Long: `Creates the mint at the address of --mint-keypair, funded by the wallet,
with the wallet as mint authority and no freeze authority. Waits for the
transaction to be finalized, then creates the wallet's token account.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindFlags(cmd.Flags())
			return runCreate(cmd)
		},
	}

	cmd.Flags().Uint("decimals", 0, fmt.Sprintf("mint decimals (0 to %d)", token.MaxDecimals))
	return cmd
}

func loadCreateConfig() (*createConfig, error) {
	var config createConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "invalid create config")
	}
	if config.Decimals > token.MaxDecimals {
		return nil, errors.Errorf("decimals must be at most %d (got %d)", token.MaxDecimals, config.Decimals)
	}
	return &config, nil
}

func runCreate(cmd *cobra.Command) error {
	config, err := loadCreateConfig()
	if err != nil {
		return err
	}

	ctx, env, cleanup, err := setup("create")
	if err != nil {
		return err
	}
	defer cleanup()

	mintAccount, err := env.loadMint(true)
	if err != nil {
		return err
	}

	res, err := mint.New(env.sc, env.commitment).Create(ctx, env.wallet, mintAccount, byte(config.Decimals))
	if err != nil {
		return errors.Wrap(err, "failed to create mint")
	}

	env.log.WithFields(logrus.Fields{
		"mint":               res.Mint.String(),
		"decimals":           res.Decimals,
		"signature":          res.Signature.String(),
		"associated_account": base58.Encode(res.AssociatedWallet),
	}).Info("Complete")

	fmt.Fprintln(cmd.OutOrStdout(), res.Mint.String())
	return nil
}
