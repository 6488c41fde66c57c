package airdrop

import (
	"context"
	"time"

	"github.com/pkg/errors"
	spf13viper "github.com/spf13/viper"

	"github.com/code-payments/spl-airdrop/pkg/config"
	"github.com/code-payments/spl-airdrop/pkg/config/memory"
	"github.com/code-payments/spl-airdrop/pkg/config/viper"
	"github.com/code-payments/spl-airdrop/pkg/config/wrapper"
)

const (
	MaxResolveAttemptsConfigKey = "max_resolve_attempts"
	defaultMaxResolveAttempts   = 5

	ResolveBackoffConfigKey = "resolve_backoff"
	defaultResolveBackoff   = 500 * time.Millisecond

	MaxBackoffConfigKey = "max_backoff"
	defaultMaxBackoff   = 10 * time.Second

	BackoffJitterConfigKey = "backoff_jitter"
	defaultBackoffJitter   = 0.1

	TransferFailureDelayConfigKey = "transfer_failure_delay"
	defaultTransferFailureDelay   = 10 * time.Second

	MaxBalanceAttemptsConfigKey = "max_balance_attempts"
	defaultMaxBalanceAttempts   = 5

	BalanceBackoffConfigKey = "balance_backoff"
	defaultBalanceBackoff   = 10 * time.Second

	ConcurrencyConfigKey = "concurrency"
	defaultConcurrency   = 1

	RPCRateLimitConfigKey = "rpc_rate_limit"
	defaultRPCRateLimit   = 0 // Unlimited

	NoCreateConfigKey = "no_create"
	defaultNoCreate   = false
)

type conf struct {
	maxResolveAttempts   config.Uint64
	resolveBackoff       config.Duration
	maxBackoff           config.Duration
	backoffJitter        config.Float64
	transferFailureDelay config.Duration
	maxBalanceAttempts   config.Uint64
	balanceBackoff       config.Duration
	concurrency          config.Uint64
	rpcRateLimit         config.Float64
	noCreate             config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithViperConfigs returns configuration pulled from v, which layers flags,
// environment variables and the config file.
func WithViperConfigs(v *spf13viper.Viper) ConfigProvider {
	return func() *conf {
		return &conf{
			maxResolveAttempts:   viper.NewUint64Config(v, MaxResolveAttemptsConfigKey, defaultMaxResolveAttempts),
			resolveBackoff:       viper.NewDurationConfig(v, ResolveBackoffConfigKey, defaultResolveBackoff),
			maxBackoff:           viper.NewDurationConfig(v, MaxBackoffConfigKey, defaultMaxBackoff),
			backoffJitter:        viper.NewFloat64Config(v, BackoffJitterConfigKey, defaultBackoffJitter),
			transferFailureDelay: viper.NewDurationConfig(v, TransferFailureDelayConfigKey, defaultTransferFailureDelay),
			maxBalanceAttempts:   viper.NewUint64Config(v, MaxBalanceAttemptsConfigKey, defaultMaxBalanceAttempts),
			balanceBackoff:       viper.NewDurationConfig(v, BalanceBackoffConfigKey, defaultBalanceBackoff),
			concurrency:          viper.NewUint64Config(v, ConcurrencyConfigKey, defaultConcurrency),
			rpcRateLimit:         viper.NewFloat64Config(v, RPCRateLimitConfigKey, defaultRPCRateLimit),
			noCreate:             viper.NewBoolConfig(v, NoCreateConfigKey, defaultNoCreate),
		}
	}
}

// WithDefaultConfigs returns the default configuration.
func WithDefaultConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			maxResolveAttempts:   wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMaxResolveAttempts)), defaultMaxResolveAttempts),
			resolveBackoff:       wrapper.NewDurationConfig(memory.NewConfig(defaultResolveBackoff), defaultResolveBackoff),
			maxBackoff:           wrapper.NewDurationConfig(memory.NewConfig(defaultMaxBackoff), defaultMaxBackoff),
			backoffJitter:        wrapper.NewFloat64Config(memory.NewConfig(defaultBackoffJitter), defaultBackoffJitter),
			transferFailureDelay: wrapper.NewDurationConfig(memory.NewConfig(defaultTransferFailureDelay), defaultTransferFailureDelay),
			maxBalanceAttempts:   wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMaxBalanceAttempts)), defaultMaxBalanceAttempts),
			balanceBackoff:       wrapper.NewDurationConfig(memory.NewConfig(defaultBalanceBackoff), defaultBalanceBackoff),
			concurrency:          wrapper.NewUint64Config(memory.NewConfig(uint64(defaultConcurrency)), defaultConcurrency),
			rpcRateLimit:         wrapper.NewFloat64Config(memory.NewConfig(float64(defaultRPCRateLimit)), defaultRPCRateLimit),
			noCreate:             wrapper.NewBoolConfig(memory.NewConfig(defaultNoCreate), defaultNoCreate),
		}
	}
}

// validate reads every value once, so a malformed or out of range setting
// fails construction instead of silently falling back to its default.
func (c *conf) validate(ctx context.Context) error {
	for key, value := range map[string]config.Uint64{
		MaxResolveAttemptsConfigKey: c.maxResolveAttempts,
		MaxBalanceAttemptsConfigKey: c.maxBalanceAttempts,
	} {
		attempts, err := value.GetSafe(ctx)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", key)
		}
		if attempts == 0 {
			return errors.Errorf("invalid %s: must be at least 1", key)
		}
	}

	if _, err := c.concurrency.GetSafe(ctx); err != nil {
		return errors.Wrapf(err, "invalid %s", ConcurrencyConfigKey)
	}

	for key, value := range map[string]config.Duration{
		ResolveBackoffConfigKey:       c.resolveBackoff,
		MaxBackoffConfigKey:           c.maxBackoff,
		TransferFailureDelayConfigKey: c.transferFailureDelay,
		BalanceBackoffConfigKey:       c.balanceBackoff,
	} {
		d, err := value.GetSafe(ctx)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", key)
		}
		if d < 0 {
			return errors.Errorf("invalid %s: %s is negative", key, d)
		}
	}

	jitter, err := c.backoffJitter.GetSafe(ctx)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", BackoffJitterConfigKey)
	}
	if !(jitter >= 0 && jitter <= 1) {
		return errors.Errorf("invalid %s: %v is outside [0, 1]", BackoffJitterConfigKey, jitter)
	}

	limit, err := c.rpcRateLimit.GetSafe(ctx)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", RPCRateLimitConfigKey)
	}
	if !(limit >= 0) {
		return errors.Errorf("invalid %s: %v is negative", RPCRateLimitConfigKey, limit)
	}

	if _, err := c.noCreate.GetSafe(ctx); err != nil {
		return errors.Wrapf(err, "invalid %s", NoCreateConfigKey)
	}
	return nil
}
