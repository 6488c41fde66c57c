package solana

import (
	"strings"

	"github.com/pkg/errors"
)

type Environment string

const (
	EnvironmentDev  Environment = "https://api.devnet.solana.com"
	EnvironmentTest Environment = "https://api.testnet.solana.com"
	EnvironmentProd Environment = "https://api.mainnet-beta.solana.com"
)

// ParseEnvironment maps a cluster name to its public RPC endpoint.
func ParseEnvironment(name string) (Environment, error) {
	switch strings.ToLower(name) {
	case "dev", "devnet":
		return EnvironmentDev, nil
	case "test", "testnet":
		return EnvironmentTest, nil
	case "prod", "mainnet", "mainnet-beta":
		return EnvironmentProd, nil
	}
	return "", errors.Errorf("unknown cluster %q (expected dev, test or prod)", name)
}
