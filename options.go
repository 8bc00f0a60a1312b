package loom

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a container at construction.
type Option func(*containerConfig)

type containerConfig struct {
	logger       zerolog.Logger
	strategy     DisposalStrategy
	override     bool
	buildTimeout time.Duration
}

func defaultConfig() *containerConfig {
	return &containerConfig{
		logger:   zerolog.Nop(),
		strategy: DisposeLIFO,
	}
}

// WithLogger sets the logger used for shutdown-time hook and finalizer
// failures. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *containerConfig) { c.logger = l }
}

// WithDisposalStrategy sets the order finalizers run in at shutdown. The
// default is DisposeLIFO.
func WithDisposalStrategy(s DisposalStrategy) Option {
	return func(c *containerConfig) { c.strategy = s }
}

// WithBuildTimeout bounds how long Builder.Build may spend on eager
// singleton creation and startup hooks. Zero means no bound beyond the
// caller's context.
func WithBuildTimeout(d time.Duration) Option {
	return func(c *containerConfig) { c.buildTimeout = d }
}

// WithOverride permits re-registering a different provider under an
// occupied key instead of failing. This exists for test harnesses that swap
// implementations under a fixed wiring; an overriding container is NOT
// production-safe and must never serve traffic.
func WithOverride() Option {
	return func(c *containerConfig) { c.override = true }
}
