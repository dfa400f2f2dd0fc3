package relay

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/outboxlabs/relay/idempotency"
	"github.com/outboxlabs/relay/log"
	"github.com/outboxlabs/relay/ratelimit"
	"github.com/outboxlabs/relay/status"
)

const (
	defaultRateLimit           = 10
	defaultRateWindow          = 60 * time.Second
	defaultBackoffBase         = time.Second
	defaultMaxAttempts         = 3
	defaultBreakerThreshold    = 3
	defaultBreakerCooldown     = 30 * time.Second
	defaultIdempotencyTTL      = time.Hour
	defaultIdempotencyCapacity = 10000
	defaultPollInterval        = 100 * time.Millisecond
	defaultSendTimeout         = 10 * time.Second
	defaultProviderRetryDelay  = 500 * time.Millisecond
)

// Config tunes the engine. Zero values are replaced by defaults; use the
// With* options to override individual knobs.
type Config struct {
	// RateLimit is the number of sends admitted per RateWindow.
	RateLimit int
	// RateWindow is the fixed rate limiting window.
	RateWindow time.Duration
	// BackoffBase is the base delay for exponential retry backoff.
	BackoffBase time.Duration
	// MaxAttempts is the global attempt ceiling per message, counted
	// across all providers.
	MaxAttempts int
	// BreakerThreshold is the consecutive failure count that opens a
	// provider's circuit.
	BreakerThreshold uint32
	// BreakerCooldown is how long an open circuit rejects attempts before
	// probing again.
	BreakerCooldown time.Duration
	// IdempotencyTTL is how long a resolved idempotency key is remembered.
	IdempotencyTTL time.Duration
	// IdempotencyCapacity bounds the in-memory idempotency cache.
	IdempotencyCapacity int
	// PollInterval is the drain loop tick used by RunContext.
	PollInterval time.Duration
	// SendTimeout bounds each provider call. Zero disables the bound.
	SendTimeout time.Duration
	// ProviderRetryDelay is the reschedule delay applied when every
	// provider circuit is open. It does not consume an attempt.
	ProviderRetryDelay time.Duration
	// RetryJitter randomizes backoff delays over [0, backoff).
	RetryJitter bool
	// MeterProvider overrides the global OpenTelemetry meter provider.
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RateLimit:           defaultRateLimit,
		RateWindow:          defaultRateWindow,
		BackoffBase:         defaultBackoffBase,
		MaxAttempts:         defaultMaxAttempts,
		BreakerThreshold:    defaultBreakerThreshold,
		BreakerCooldown:     defaultBreakerCooldown,
		IdempotencyTTL:      defaultIdempotencyTTL,
		IdempotencyCapacity: defaultIdempotencyCapacity,
		PollInterval:        defaultPollInterval,
		SendTimeout:         defaultSendTimeout,
		ProviderRetryDelay:  defaultProviderRetryDelay,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()

	if c.RateLimit <= 0 {
		c.RateLimit = def.RateLimit
	}

	if c.RateWindow <= 0 {
		c.RateWindow = def.RateWindow
	}

	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}

	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = def.BreakerThreshold
	}

	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}

	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = def.IdempotencyTTL
	}

	if c.IdempotencyCapacity <= 0 {
		c.IdempotencyCapacity = def.IdempotencyCapacity
	}

	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}

	if c.SendTimeout < 0 {
		c.SendTimeout = def.SendTimeout
	}

	if c.ProviderRetryDelay <= 0 {
		c.ProviderRetryDelay = def.ProviderRetryDelay
	}
}

// Option customizes an Engine during construction.
type Option func(engine *Engine)

// WithRateLimit sets the number of sends admitted per window.
func WithRateLimit(limit int) Option {
	return func(engine *Engine) {
		engine.cfg.RateLimit = limit
	}
}

// WithRateWindow sets the rate limiting window.
func WithRateWindow(window time.Duration) Option {
	return func(engine *Engine) {
		engine.cfg.RateWindow = window
	}
}

// WithBackoffBase sets the base delay for exponential retry backoff.
func WithBackoffBase(base time.Duration) Option {
	return func(engine *Engine) {
		engine.cfg.BackoffBase = base
	}
}

// WithMaxAttempts sets the global attempt ceiling per message.
func WithMaxAttempts(attempts int) Option {
	return func(engine *Engine) {
		engine.cfg.MaxAttempts = attempts
	}
}

// WithBreakerThreshold sets the consecutive failure count that opens a
// provider's circuit.
func WithBreakerThreshold(threshold uint32) Option {
	return func(engine *Engine) {
		engine.cfg.BreakerThreshold = threshold
	}
}

// WithBreakerCooldown sets how long an open circuit rejects attempts.
func WithBreakerCooldown(cooldown time.Duration) Option {
	return func(engine *Engine) {
		engine.cfg.BreakerCooldown = cooldown
	}
}

// WithIdempotencyTTL sets the retention of resolved idempotency keys.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(engine *Engine) {
		engine.cfg.IdempotencyTTL = ttl
	}
}

// WithIdempotencyCapacity bounds the in-memory idempotency cache.
func WithIdempotencyCapacity(capacity int) Option {
	return func(engine *Engine) {
		engine.cfg.IdempotencyCapacity = capacity
	}
}

// WithPollInterval sets the drain loop tick used by RunContext.
func WithPollInterval(interval time.Duration) Option {
	return func(engine *Engine) {
		engine.cfg.PollInterval = interval
	}
}

// WithSendTimeout bounds each provider call.
func WithSendTimeout(timeout time.Duration) Option {
	return func(engine *Engine) {
		engine.cfg.SendTimeout = timeout
	}
}

// WithProviderRetryDelay sets the reschedule delay applied when every
// provider circuit is open.
func WithProviderRetryDelay(delay time.Duration) Option {
	return func(engine *Engine) {
		engine.cfg.ProviderRetryDelay = delay
	}
}

// WithRetryJitter randomizes retry backoff delays.
func WithRetryJitter() Option {
	return func(engine *Engine) {
		engine.cfg.RetryJitter = true
	}
}

// WithClock overrides the engine's time source. Useful in tests.
func WithClock(clock func() time.Time) Option {
	return func(engine *Engine) {
		engine.clock = clock
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger log.Logger) Option {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// WithListener registers an event listener at construction time.
func WithListener(listener EventListener) Option {
	return func(engine *Engine) {
		engine.listeners = append(engine.listeners, listener)
	}
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(engine *Engine) {
		engine.cfg.MeterProvider = provider
	}
}

// WithLimiter substitutes the rate limiter, replacing the in-memory
// fixed window default.
func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(engine *Engine) {
		engine.limiter = limiter
	}
}

// WithIdempotencyCache substitutes the idempotency cache, replacing the
// in-memory LRU default.
func WithIdempotencyCache(cache idempotency.Cache) Option {
	return func(engine *Engine) {
		engine.cache = cache
	}
}

// WithStatusTracker substitutes the status tracker.
func WithStatusTracker(tracker status.Tracker) Option {
	return func(engine *Engine) {
		engine.tracker = tracker
	}
}

// WithQueue substitutes the task queue.
func WithQueue(queue Queue) Option {
	return func(engine *Engine) {
		engine.queue = queue
	}
}
