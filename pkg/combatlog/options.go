package combatlog

import (
	"fmt"
	"log/slog"

	"github.com/combatlog/combatlog/internal/timeline"
)

// Option configures a Manager using the functional options pattern.
type Option func(*managerConfig)

// managerConfig holds internal configuration for a Manager.
type managerConfig struct {
	clock          timeline.ClockSource
	ntpServers     []string
	ntpSyncTimeout int
	logger         *slog.Logger
}

// defaultManagerConfig returns a managerConfig with sensible defaults: a
// bare system clock (never synchronized) and a discard logger.
func defaultManagerConfig() *managerConfig {
	return &managerConfig{
		clock: timeline.SystemClock{},
	}
}

// applyOptions applies functional options to a managerConfig.
func applyOptions(opts []Option) *managerConfig {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// validate checks for invalid option combinations.
func (c *managerConfig) validate() error {
	if len(c.ntpServers) > 0 && c.clock == nil {
		return fmt.Errorf("ntp servers configured but no clock source present")
	}
	return nil
}

// WithClockSource overrides the clock source used by the Time
// Reconstructor. Default is a bare, never-synchronized SystemClock.
func WithClockSource(clock timeline.ClockSource) Option {
	return func(c *managerConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithNTPServers configures an NTP-backed clock source, trying each
// server in order (§4.4). This overrides any clock set via
// WithClockSource. The NTP client is constructed once all options have
// been applied, so WithLogger may be passed before or after this option.
func WithNTPServers(servers ...string) Option {
	return func(c *managerConfig) {
		c.ntpServers = servers
	}
}

// WithLogger sets a custom logger for pipeline diagnostics (plugin
// panics, parse failures). If logger is nil, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		c.logger = logger
	}
}
