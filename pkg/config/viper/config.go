// Package viper sources config values from a viper instance, which layers
// flags, environment variables and config files.
package viper

import (
	"context"
	"time"

	"github.com/spf13/cast"
	spf13viper "github.com/spf13/viper"

	"github.com/code-payments/spl-airdrop/pkg/config"
	"github.com/code-payments/spl-airdrop/pkg/config/wrapper"
)

type conf struct {
	v   *spf13viper.Viper
	key string
}

// NewConfig returns a config for key. Values are read on every Get, and are
// surfaced as []byte so the typed wrappers parse them uniformly regardless of
// which layer they came from.
func NewConfig(v *spf13viper.Viper, key string) config.Config {
	return &conf{
		v:   v,
		key: key,
	}
}

// Get implements Config.Get
func (c *conf) Get(_ context.Context) (interface{}, error) {
	if !c.v.IsSet(c.key) {
		return nil, config.ErrNoValue
	}

	val, err := cast.ToStringE(c.v.Get(c.key))
	if err != nil {
		return nil, err
	}
	if len(val) == 0 {
		return nil, config.ErrNoValue
	}

	return []byte(val), nil
}

// Shutdown implements Config.Shutdown
func (c *conf) Shutdown() {
}

// NewUint64Config creates a viper-based uint64 config
func NewUint64Config(v *spf13viper.Viper, key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(v, key), defaultValue)
}

// NewFloat64Config creates a viper-based float64 config
func NewFloat64Config(v *spf13viper.Viper, key string, defaultValue float64) config.Float64 {
	return wrapper.NewFloat64Config(NewConfig(v, key), defaultValue)
}

// NewBoolConfig creates a viper-based bool config
func NewBoolConfig(v *spf13viper.Viper, key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(v, key), defaultValue)
}

// NewDurationConfig creates a viper-based duration config
func NewDurationConfig(v *spf13viper.Viper, key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(v, key), defaultValue)
}
