package circuitbreaker

import "time"

const (
	defaultThreshold      = 3
	defaultCooldown       = 30 * time.Second
	defaultHalfOpenProbes = 1
)

// Config holds the settings applied to every provider breaker a Manager
// creates.
type Config struct {
	// Threshold is the number of consecutive failures that opens a breaker.
	Threshold uint32
	// Cooldown is how long an open breaker waits before allowing probes.
	Cooldown time.Duration
	// HalfOpenProbes is the number of trial attempts allowed in half-open.
	HalfOpenProbes uint32
}

// DefaultConfig returns the baseline breaker configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:      defaultThreshold,
		Cooldown:       defaultCooldown,
		HalfOpenProbes: defaultHalfOpenProbes,
	}
}

func (cfg *Config) normalize() {
	defaults := DefaultConfig()

	if cfg.Threshold == 0 {
		cfg.Threshold = defaults.Threshold
	}

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}

	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = defaults.HalfOpenProbes
	}
}
