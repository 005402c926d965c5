package engine

import (
	"log/slog"
	"time"

	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/clock"
)

const (
	DefaultPollInterval      = 3 * time.Second
	DefaultMaxPollInterval   = 20 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultSlowResponse      = 8 * time.Second
	DefaultCollectionWindow  = 15 * time.Minute
	DefaultCollectionWarning = time.Minute
)

// Config holds the timing parameters of a Session. Zero fields take the
// defaults; a negative IdleTimeout, SlowResponse, or CollectionWindow
// disables that timer.
type Config struct {
	DefaultInterval   time.Duration
	MaxInterval       time.Duration
	IdleTimeout       time.Duration
	SlowResponse      time.Duration
	CollectionWindow  time.Duration
	CollectionWarning time.Duration
}

// DefaultConfig returns the stock timing parameters.
func DefaultConfig() Config {
	return Config{
		DefaultInterval:   DefaultPollInterval,
		MaxInterval:       DefaultMaxPollInterval,
		IdleTimeout:       DefaultIdleTimeout,
		SlowResponse:      DefaultSlowResponse,
		CollectionWindow:  DefaultCollectionWindow,
		CollectionWarning: DefaultCollectionWarning,
	}
}

func (c Config) normalized() Config {
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = DefaultPollInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = max(DefaultMaxPollInterval, c.DefaultInterval)
	}
	c.MaxInterval = max(c.MaxInterval, c.DefaultInterval)
	c.IdleTimeout = orDefault(c.IdleTimeout, DefaultIdleTimeout)
	c.SlowResponse = orDefault(c.SlowResponse, DefaultSlowResponse)
	c.CollectionWindow = orDefault(c.CollectionWindow, DefaultCollectionWindow)
	c.CollectionWarning = orDefault(c.CollectionWarning, DefaultCollectionWarning)
	if c.CollectionWarning >= c.CollectionWindow {
		c.CollectionWarning = 0
	}
	return c
}

func orDefault(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	default:
		return d
	}
}

// Options wires a Session to its collaborators.
type Options struct {
	Remote classapi.Remote
	// Hooks receives notifications. Nil means NopHooks.
	Hooks Hooks
	// Clock drives every timer. Nil means the real clock.
	Clock  clock.Clock
	Logger *slog.Logger
	Config Config
}

func (o Options) withDefaults() Options {
	if o.Hooks == nil {
		o.Hooks = NopHooks{}
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	o.Config = o.Config.normalized()
	return o
}
