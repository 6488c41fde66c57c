package main

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/code-payments/spl-airdrop/pkg/common"
	"github.com/code-payments/spl-airdrop/pkg/mint"
)

type mintConfig struct {
	Supply uint64 `mapstructure:"supply"`
	Owner  string `mapstructure:"owner"`
}

func newMintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint the initial supply",
		Long: `Mints --supply base units into the token account of --owner, which
defaults to the wallet. The wallet must be the mint authority.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bindFlags(cmd.Flags())
			return runMint(cmd)
		},
	}

	cmd.Flags().Uint64("supply", mint.DefaultSupply, "amount to mint, in base units")
	cmd.Flags().String("owner", "", "owner of the receiving token account (default the wallet)")
	return cmd
}

func loadMintConfig() (*mintConfig, *common.Account, error) {
	config := mintConfig{Supply: mint.DefaultSupply}
	if err := viper.Unmarshal(&config); err != nil {
		return nil, nil, errors.Wrap(err, "invalid mint config")
	}

	if len(config.Owner) == 0 {
		return &config, nil, nil
	}

	owner, err := common.NewAccountFromPublicKeyString(config.Owner)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid owner %q", config.Owner)
	}
	return &config, owner, nil
}

func runMint(cmd *cobra.Command) error {
	config, owner, err := loadMintConfig()
	if err != nil {
		return err
	}

	ctx, env, cleanup, err := setup("mint")
	if err != nil {
		return err
	}
	defer cleanup()

	mintAccount, err := env.loadMint(false)
	if err != nil {
		return err
	}

	res, err := mint.New(env.sc, env.commitment).Supply(ctx, env.wallet, mintAccount, owner, config.Supply)
	if err != nil {
		return errors.Wrap(err, "failed to mint supply")
	}

	env.log.WithFields(logrus.Fields{
		"mint":        mintAccount.String(),
		"destination": base58.Encode(res.Destination),
		"amount":      res.Amount,
		"signature":   res.Signature.String(),
	}).Info("Complete")

	fmt.Fprintln(cmd.OutOrStdout(), res.Signature.String())
	return nil
}
