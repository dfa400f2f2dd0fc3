package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/outboxlabs/relay/internal/nilcheck"
	"github.com/outboxlabs/relay/log"
)

// ErrUnavailable is returned by Acquire when a provider's breaker rejects
// the attempt.
var ErrUnavailable = errors.New("provider is unavailable")

// Manager holds one circuit breaker per provider name, all sharing the
// same Config. Breakers are created lazily on first use.
type Manager struct {
	cfg    Config
	logger log.Logger

	mu        sync.RWMutex
	breakers  map[string]*gobreaker.TwoStepCircuitBreaker
	listeners []StateChangeListener
}

// NewManager creates a breaker manager. A nil logger falls back to nop.
func NewManager(cfg Config, logger log.Logger) *Manager {
	cfg.normalize()

	if nilcheck.IsNil(logger) {
		logger = log.NewNop()
	}

	return &Manager{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
	}
}

// Acquire admits one delivery attempt for the named provider. On success it
// returns the callback that must be invoked with the attempt outcome. An
// open breaker, or a half-open breaker whose probe budget is exhausted,
// returns ErrUnavailable without recording anything.
func (m *Manager) Acquire(provider string) (func(success bool), error) {
	done, err := m.breakerFor(provider).Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, provider, err)
	}

	return done, nil
}

// Available reports whether the named provider would currently admit an
// attempt. The check performs the lazy open to half-open transition.
func (m *Manager) Available(provider string) bool {
	return m.breakerFor(provider).State() != gobreaker.StateOpen
}

// State returns the current state of the named provider's breaker, or
// StateUnknown if no attempt has ever been gated for it.
func (m *Manager) State(provider string) State {
	m.mu.RLock()
	breaker, exists := m.breakers[provider]
	m.mu.RUnlock()

	if !exists {
		return StateUnknown
	}

	return fromGobreakerState(breaker.State())
}

// Counts returns the attempt statistics of the named provider's breaker.
func (m *Manager) Counts(provider string) Counts {
	m.mu.RLock()
	breaker, exists := m.breakers[provider]
	m.mu.RUnlock()

	if !exists {
		return Counts{}
	}

	return fromGobreakerCounts(breaker.Counts())
}

// RegisterStateChangeListener adds a listener notified on every breaker
// state change. Listeners must be fast; they run on the caller's goroutine.
func (m *Manager) RegisterStateChangeListener(listener StateChangeListener) {
	if nilcheck.IsNil(listener) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, listener)
}

func (m *Manager) breakerFor(provider string) *gobreaker.TwoStepCircuitBreaker {
	m.mu.RLock()
	breaker, exists := m.breakers[provider]
	m.mu.RUnlock()

	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists = m.breakers[provider]; exists {
		return breaker
	}

	threshold := m.cfg.Threshold
	settings := gobreaker.Settings{
		Name:        "provider-" + provider,
		MaxRequests: m.cfg.HalfOpenProbes,
		Timeout:     m.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			m.handleStateChange(provider, from, to)
		},
	}

	breaker = gobreaker.NewTwoStepCircuitBreaker(settings)
	m.breakers[provider] = breaker

	return breaker
}

func (m *Manager) handleStateChange(provider string, from gobreaker.State, to gobreaker.State) {
	ctx := context.Background()

	m.logger.Log(ctx, log.LevelWarn, "provider breaker state changed",
		log.String("provider", provider),
		log.String("from", string(fromGobreakerState(from))),
		log.String("to", string(fromGobreakerState(to))),
	)

	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		m.notify(ctx, listener, provider, fromGobreakerState(from), fromGobreakerState(to))
	}
}

func (m *Manager) notify(ctx context.Context, listener StateChangeListener, provider string, from, to State) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Log(ctx, log.LevelError, "breaker state listener panicked",
				log.String("provider", provider),
				log.Any("panic", r),
			)
		}
	}()

	listener.OnStateChange(provider, from, to)
}
