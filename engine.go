package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/outboxlabs/relay/backoff"
	"github.com/outboxlabs/relay/circuitbreaker"
	"github.com/outboxlabs/relay/idempotency"
	"github.com/outboxlabs/relay/internal/nilcheck"
	"github.com/outboxlabs/relay/log"
	"github.com/outboxlabs/relay/ratelimit"
	"github.com/outboxlabs/relay/status"
)

// Engine accepts messages, queues them, and drains the queue through the
// provider pool under rate limiting, circuit breaking and retry with
// provider rotation. Submission never blocks on delivery.
type Engine struct {
	cfg    Config
	logger log.Logger
	clock  func() time.Time

	providersMu sync.RWMutex
	providers   []Provider

	queue    Queue
	limiter  ratelimit.Limiter
	cache    idempotency.Cache
	tracker  status.Tracker
	breakers *circuitbreaker.Manager

	listenersMu sync.RWMutex
	listeners   []EventListener

	metrics engineMetrics

	// wake is signalled on enqueue so RunContext drains new work without
	// waiting for the next tick.
	wake chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	runMu    sync.Mutex
	running  bool
	cancel   context.CancelFunc
	drainWg  sync.WaitGroup
}

// Receipt is the synchronous answer to Send. Delivery itself is
// asynchronous; track it through Status and events.
type Receipt struct {
	TrackingID string
	Status     status.Status
	// Duplicate marks a submission absorbed by an earlier idempotency key.
	Duplicate bool
}

// New creates an engine over the given provider pool. Rotation order
// follows slice order. At least one provider is required.
func New(providers []Provider, opts ...Option) (*Engine, error) {
	if len(providers) == 0 {
		return nil, ErrProvidersRequired
	}

	for _, provider := range providers {
		if nilcheck.IsNil(provider) {
			return nil, ErrProviderRequired
		}
	}

	engine := &Engine{
		cfg:       DefaultConfig(),
		clock:     time.Now,
		providers: append([]Provider(nil), providers...),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}

	engine.cfg.normalize()

	if nilcheck.IsNil(engine.logger) {
		engine.logger = log.NewNop()
	}

	if engine.queue == nil {
		engine.queue = NewMemoryQueue()
	}

	if nilcheck.IsNil(engine.limiter) {
		engine.limiter = ratelimit.NewFixedWindow(
			engine.cfg.RateLimit,
			engine.cfg.RateWindow,
			ratelimit.WithClock(engine.now),
		)
	}

	if nilcheck.IsNil(engine.cache) {
		engine.cache = idempotency.NewMemory(
			engine.cfg.IdempotencyCapacity,
			engine.cfg.IdempotencyTTL,
			idempotency.WithClock(engine.now),
		)
	}

	if nilcheck.IsNil(engine.tracker) {
		engine.tracker = status.NewMemoryTracker(status.WithClock(engine.now))
	}

	engine.breakers = circuitbreaker.NewManager(circuitbreaker.Config{
		Threshold:      engine.cfg.BreakerThreshold,
		Cooldown:       engine.cfg.BreakerCooldown,
		HalfOpenProbes: 1,
	}, engine.logger)
	engine.breakers.RegisterStateChangeListener(breakerEventBridge{engine: engine})

	metrics, err := newEngineMetrics(engine.cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init engine metrics: %w", err)
	}

	engine.metrics = metrics

	return engine, nil
}

// Send validates and enqueues a message, returning immediately with a
// tracking id. A previously seen idempotency key is absorbed: no second
// task is queued and the receipt points at the original submission.
func (engine *Engine) Send(ctx context.Context, msg Message, idempotencyKey string) (Receipt, error) {
	if err := msg.validate(); err != nil {
		return Receipt{}, err
	}

	if strings.TrimSpace(idempotencyKey) == "" {
		return Receipt{}, ErrIdempotencyKeyRequired
	}

	reservation, err := engine.cache.CheckAndReserve(ctx, idempotencyKey)
	if err != nil {
		return Receipt{}, fmt.Errorf("reserve idempotency key: %w", err)
	}

	if !reservation.New {
		receipt := Receipt{
			TrackingID: reservation.TrackingID,
			Status:     status.StatusQueued,
			Duplicate:  true,
		}

		if record, err := engine.tracker.Get(ctx, reservation.TrackingID); err == nil {
			receipt.Status = record.Status
		}

		return receipt, nil
	}

	now := engine.now()
	task := &Task{
		TrackingID:     reservation.TrackingID,
		Message:        msg,
		IdempotencyKey: idempotencyKey,
		EnqueuedAt:     now,
		ReadyAt:        now,
	}

	if err := engine.tracker.Set(ctx, task.TrackingID, status.StatusQueued, status.Detail{}); err != nil {
		return Receipt{}, fmt.Errorf("record queued status: %w", err)
	}

	engine.queue.Enqueue(task)
	engine.emit(Event{Type: EventQueued, TrackingID: task.TrackingID})
	engine.signal()

	return Receipt{TrackingID: task.TrackingID, Status: status.StatusQueued}, nil
}

// Status returns the lifecycle record for a tracking id.
func (engine *Engine) Status(ctx context.Context, trackingID string) (status.Record, error) {
	return engine.tracker.Get(ctx, trackingID)
}

// QueueLength reports the number of tasks waiting for dispatch.
func (engine *Engine) QueueLength() int {
	return engine.queue.Len()
}

// RateRemaining reports how many sends the current rate window still
// admits.
func (engine *Engine) RateRemaining(ctx context.Context) (int, error) {
	return engine.limiter.Remaining(ctx)
}

// AddProvider appends a provider to the end of the rotation order. Safe
// to call while the engine is running.
func (engine *Engine) AddProvider(provider Provider) error {
	if nilcheck.IsNil(provider) {
		return ErrProviderRequired
	}

	engine.providersMu.Lock()
	defer engine.providersMu.Unlock()

	engine.providers = append(engine.providers, provider)

	return nil
}

// ProviderState returns the current breaker state for a provider name.
func (engine *Engine) ProviderState(provider string) circuitbreaker.State {
	return engine.breakers.State(provider)
}

// RegisterListener adds an event listener. Safe to call while running.
func (engine *Engine) RegisterListener(listener EventListener) {
	if nilcheck.IsNil(listener) {
		return
	}

	engine.listenersMu.Lock()
	defer engine.listenersMu.Unlock()

	engine.listeners = append(engine.listeners, listener)
}

// RunContext drains the queue until Stop is called or ctx is cancelled.
// Only one loop may run at a time.
func (engine *Engine) RunContext(parentCtx context.Context) error {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	ctx, cancel := context.WithCancel(parentCtx)
	if !engine.registerRun(cancel) {
		cancel()

		return ErrEngineRunning
	}

	defer engine.clearRun()

	engine.logger.Log(ctx, log.LevelInfo, "dispatch engine started")
	defer engine.logger.Log(context.Background(), log.LevelInfo, "dispatch engine stopped")

	ticker := time.NewTicker(engine.cfg.PollInterval)
	defer ticker.Stop()

	engine.drainTick(ctx)

	for {
		select {
		case <-engine.stop:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			engine.drainTick(ctx)
		case <-engine.wake:
			engine.drainTick(ctx)
		}
	}
}

// Stop signals the drain loop to exit. Queued tasks stay in the queue.
func (engine *Engine) Stop() {
	engine.stopOnce.Do(func() {
		engine.runMu.Lock()
		cancel := engine.cancel
		stop := engine.stop
		if stop == nil {
			stop = make(chan struct{})
			engine.stop = stop
		}
		engine.runMu.Unlock()

		if cancel != nil {
			cancel()
		}

		close(stop)
	})
}

// Shutdown stops the loop and waits for the in-flight drain pass.
func (engine *Engine) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	engine.Stop()

	done := make(chan struct{})

	go func() {
		engine.drainWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}
}

// DispatchOnce processes at most one ready task and reports whether one
// was processed. Rate-limited tasks are skipped in place: the pass moves
// on to the next ready task and restores the skipped ones to their
// original positions afterwards.
func (engine *Engine) DispatchOnce(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	engine.recordQueueDepth(ctx)

	now := engine.now()

	var skipped []*Task
	defer func() {
		for i := len(skipped) - 1; i >= 0; i-- {
			engine.queue.PushFront(skipped[i])
		}
	}()

	for {
		if ctx.Err() != nil {
			return false
		}

		task := engine.queue.DequeueReady(now)
		if task == nil {
			return false
		}

		admitted, err := engine.limiter.TryAcquire(ctx)
		if err != nil {
			engine.logger.Log(ctx, log.LevelError, "rate limiter check failed",
				log.String("tracking_id", task.TrackingID),
				log.Err(err),
			)

			skipped = append(skipped, task)

			continue
		}

		if !admitted {
			skipped = append(skipped, task)

			continue
		}

		engine.process(ctx, task)

		return true
	}
}

func (engine *Engine) drainTick(ctx context.Context) {
	engine.drainWg.Add(1)
	defer engine.drainWg.Done()

	defer func() {
		if r := recover(); r != nil {
			engine.logger.Log(ctx, log.LevelError, "drain pass panicked", log.Any("panic", r))
		}
	}()

	if engine.DispatchOnce(ctx) && engine.queue.Len() > 0 {
		engine.signal()
	}
}

// process runs one delivery attempt for the task. When every provider
// circuit is open the task is rescheduled without consuming an attempt.
func (engine *Engine) process(ctx context.Context, task *Task) {
	providers := engine.snapshotProviders()

	var (
		provider Provider
		done     func(success bool)
	)

	for offset := range providers {
		candidate := providers[(task.ProviderIndex+offset)%len(providers)]

		release, err := engine.breakers.Acquire(candidate.Name())
		if err != nil {
			continue
		}

		task.ProviderIndex = (task.ProviderIndex + offset) % len(providers)
		provider = candidate
		done = release

		break
	}

	if provider == nil {
		task.ReadyAt = engine.now().Add(engine.cfg.ProviderRetryDelay)
		engine.queue.Enqueue(task)

		engine.logger.Log(ctx, log.LevelDebug, "all provider circuits open, task rescheduled",
			log.String("tracking_id", task.TrackingID),
			log.Duration("delay", engine.cfg.ProviderRetryDelay),
		)

		return
	}

	if err := engine.tracker.Set(ctx, task.TrackingID, status.StatusSending, status.Detail{Provider: provider.Name()}); err != nil {
		engine.logger.Log(ctx, log.LevelError, "failed to record sending status",
			log.String("tracking_id", task.TrackingID),
			log.Err(err),
		)
	}

	engine.emit(Event{
		Type:       EventSending,
		TrackingID: task.TrackingID,
		Provider:   provider.Name(),
		Attempt:    task.Attempt + 1,
	})

	callCtx := ctx
	if engine.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, engine.cfg.SendTimeout)
		defer cancel()
	}

	start := engine.now()
	receipt, err := provider.Send(callCtx, task.Message)
	elapsed := engine.now().Sub(start)

	done(err == nil)

	if err == nil {
		engine.finishSent(ctx, task, provider.Name(), receipt, elapsed)

		return
	}

	engine.handleFailure(ctx, task, provider.Name(), len(providers), err)
}

func (engine *Engine) finishSent(ctx context.Context, task *Task, provider string, receipt ProviderReceipt, elapsed time.Duration) {
	attempts := task.Attempt + 1

	if err := engine.tracker.Set(ctx, task.TrackingID, status.StatusSent, status.Detail{
		Provider:          provider,
		ProviderMessageID: receipt.MessageID,
		Attempts:          attempts,
	}); err != nil {
		engine.logger.Log(ctx, log.LevelError, "failed to record sent status",
			log.String("tracking_id", task.TrackingID),
			log.Err(err),
		)
	}

	if err := engine.cache.Resolve(ctx, task.IdempotencyKey, idempotency.Outcome{
		TrackingID: task.TrackingID,
		Delivered:  true,
	}); err != nil {
		engine.logger.Log(ctx, log.LevelWarn, "failed to resolve idempotency key",
			log.String("tracking_id", task.TrackingID),
			log.Err(err),
		)
	}

	engine.emit(Event{
		Type:       EventSent,
		TrackingID: task.TrackingID,
		Provider:   provider,
		Attempt:    attempts,
		Attempts:   attempts,
		Duration:   elapsed,
	})

	engine.addSent(ctx, provider)
	engine.recordDeliveryLatency(ctx, provider, elapsed.Seconds())

	engine.logger.Log(ctx, log.LevelInfo, "message delivered",
		log.String("tracking_id", task.TrackingID),
		log.String("provider", provider),
		log.Int("attempts", attempts),
	)
}

func (engine *Engine) handleFailure(ctx context.Context, task *Task, provider string, providerCount int, sendErr error) {
	attempts := task.Attempt + 1

	if attempts < engine.cfg.MaxAttempts {
		delay := backoff.Exponential(engine.cfg.BackoffBase, task.Attempt)
		if engine.cfg.RetryJitter {
			delay = backoff.ExponentialWithJitter(engine.cfg.BackoffBase, task.Attempt)
		}

		next := (task.ProviderIndex + 1) % providerCount
		nextProvider := engine.providerName(next)

		task.Attempt = attempts
		task.ProviderIndex = next
		task.ReadyAt = engine.now().Add(delay)

		if err := engine.tracker.Set(ctx, task.TrackingID, status.StatusQueued, status.Detail{
			Err:      sendErr.Error(),
			Attempts: attempts,
		}); err != nil {
			engine.logger.Log(ctx, log.LevelError, "failed to record retry status",
				log.String("tracking_id", task.TrackingID),
				log.Err(err),
			)
		}

		engine.queue.Enqueue(task)

		engine.emit(Event{
			Type:         EventRetry,
			TrackingID:   task.TrackingID,
			Provider:     provider,
			NextProvider: nextProvider,
			Attempt:      attempts,
			Delay:        delay,
			Err:          sendErr,
		})

		engine.addRetry(ctx, provider)

		engine.logger.Log(ctx, log.LevelWarn, "delivery attempt failed, retry scheduled",
			log.String("tracking_id", task.TrackingID),
			log.String("provider", provider),
			log.String("next_provider", nextProvider),
			log.Int("attempt", attempts),
			log.Duration("delay", delay),
			log.Err(sendErr),
		)

		return
	}

	if err := engine.tracker.Set(ctx, task.TrackingID, status.StatusFailed, status.Detail{
		Provider: provider,
		Err:      sendErr.Error(),
		Attempts: attempts,
	}); err != nil {
		engine.logger.Log(ctx, log.LevelError, "failed to record failed status",
			log.String("tracking_id", task.TrackingID),
			log.Err(err),
		)
	}

	if err := engine.cache.Resolve(ctx, task.IdempotencyKey, idempotency.Outcome{
		TrackingID: task.TrackingID,
		Delivered:  false,
		Detail:     sendErr.Error(),
	}); err != nil {
		engine.logger.Log(ctx, log.LevelWarn, "failed to resolve idempotency key",
			log.String("tracking_id", task.TrackingID),
			log.Err(err),
		)
	}

	engine.emit(Event{
		Type:       EventFailed,
		TrackingID: task.TrackingID,
		Provider:   provider,
		Attempt:    attempts,
		Attempts:   attempts,
		Err:        sendErr,
	})

	engine.addFailed(ctx, provider)

	engine.logger.Log(ctx, log.LevelError, "message failed after exhausting attempts",
		log.String("tracking_id", task.TrackingID),
		log.String("provider", provider),
		log.Int("attempts", attempts),
		log.Err(sendErr),
	)
}

func (engine *Engine) snapshotProviders() []Provider {
	engine.providersMu.RLock()
	defer engine.providersMu.RUnlock()

	return append([]Provider(nil), engine.providers...)
}

func (engine *Engine) providerName(index int) string {
	engine.providersMu.RLock()
	defer engine.providersMu.RUnlock()

	if index < 0 || index >= len(engine.providers) {
		return ""
	}

	return engine.providers[index].Name()
}

func (engine *Engine) emit(event Event) {
	if event.At.IsZero() {
		event.At = engine.now()
	}

	engine.listenersMu.RLock()
	listeners := make([]EventListener, len(engine.listeners))
	copy(listeners, engine.listeners)
	engine.listenersMu.RUnlock()

	for _, listener := range listeners {
		engine.notify(listener, event)
	}
}

func (engine *Engine) notify(listener EventListener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			engine.logger.Log(context.Background(), log.LevelError, "event listener panicked",
				log.String("tracking_id", event.TrackingID),
				log.Any("panic", r),
			)
		}
	}()

	listener.HandleEvent(event)
}

func (engine *Engine) signal() {
	select {
	case engine.wake <- struct{}{}:
	default:
	}
}

func (engine *Engine) now() time.Time {
	return engine.clock()
}

func (engine *Engine) registerRun(cancel context.CancelFunc) bool {
	engine.runMu.Lock()
	defer engine.runMu.Unlock()

	if engine.running {
		return false
	}

	if engine.stop == nil || isClosedSignal(engine.stop) {
		engine.stop = make(chan struct{})
		engine.stopOnce = sync.Once{}
	}

	engine.running = true
	engine.cancel = cancel

	return true
}

func (engine *Engine) clearRun() {
	engine.runMu.Lock()
	defer engine.runMu.Unlock()

	engine.running = false
	engine.cancel = nil
}

func isClosedSignal(signal <-chan struct{}) bool {
	if signal == nil {
		return false
	}

	select {
	case <-signal:
		return true
	default:
		return false
	}
}

func (engine *Engine) recordQueueDepth(ctx context.Context) {
	if engine.metrics.queueDepth == nil {
		return
	}

	engine.metrics.queueDepth.Record(ctx, int64(engine.queue.Len()))
}

func (engine *Engine) addSent(ctx context.Context, provider string) {
	if engine.metrics.messagesSent == nil {
		return
	}

	engine.metrics.messagesSent.Add(ctx, 1, providerAddOption(provider))
}

func (engine *Engine) addFailed(ctx context.Context, provider string) {
	if engine.metrics.messagesFailed == nil {
		return
	}

	engine.metrics.messagesFailed.Add(ctx, 1, providerAddOption(provider))
}

func (engine *Engine) addRetry(ctx context.Context, provider string) {
	if engine.metrics.retries == nil {
		return
	}

	engine.metrics.retries.Add(ctx, 1, providerAddOption(provider))
}

func (engine *Engine) recordDeliveryLatency(ctx context.Context, provider string, seconds float64) {
	if engine.metrics.deliveryLatency == nil {
		return
	}

	engine.metrics.deliveryLatency.Record(ctx, seconds, metric.WithAttributes(attribute.String("provider", provider)))
}

func providerAddOption(provider string) metric.AddOption {
	return metric.WithAttributes(attribute.String("provider", provider))
}

// breakerEventBridge republishes breaker state changes as engine events.
type breakerEventBridge struct {
	engine *Engine
}

func (bridge breakerEventBridge) OnStateChange(provider string, _, to circuitbreaker.State) {
	switch to {
	case circuitbreaker.StateOpen:
		bridge.engine.emit(Event{Type: EventCircuitOpen, Provider: provider})
	case circuitbreaker.StateClosed:
		bridge.engine.emit(Event{Type: EventCircuitClosed, Provider: provider})
	}
}
