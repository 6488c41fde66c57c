// Package config defines typed, lazily read configuration values.
package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoValue indicates no value was set for the config
	ErrNoValue = errors.New("config: no value set")

	// ErrShutdown indicates the use of a Config after calling Shutdown
	ErrShutdown = errors.New("config: shutdown")
)

// Config is a source of raw configuration values. Sources backed by text,
// such as files or the environment, yield []byte.
type Config interface {
	// Get returns the latest raw value, or ErrNoValue if none is set
	Get(ctx context.Context) (interface{}, error)

	// Shutdown releases the source's resources
	Shutdown()
}

// Value is a Config converted to T, falling back to a default when the
// source has nothing set.
type Value[T any] interface {
	// Get returns the value, ignoring any error from the source
	Get(ctx context.Context) T

	// GetSafe returns the value along with any error from the source. On
	// error the last good value is returned.
	GetSafe(ctx context.Context) (T, error)

	Shutdown()
}

type (
	Bool     = Value[bool]
	Duration = Value[time.Duration]
	Float64  = Value[float64]
	Uint64   = Value[uint64]
)
