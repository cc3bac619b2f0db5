// Package breaker implements the circuit breaker half of the resilience
// control plane: per-dependency failure isolation with fast rejection while
// the dependency recovers and limited probing before full traffic resumes.
package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("resilgate/breaker")

// State is the breaker's position in its finite state machine.
type State int32

const (
	// StateClosed - normal operation, calls pass through.
	StateClosed State = iota
	// StateOpen - calls are rejected immediately.
	StateOpen
	// StateHalfOpen - probing whether the dependency has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the immutable per-breaker tuning.
type Config struct {
	// FailureThreshold is the number of countable failures within
	// FailureWindow that opens the circuit.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// SuccessThreshold is the number of consecutive half-open successes that
	// closes the circuit.
	SuccessThreshold int `mapstructure:"success_threshold"`
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`
	// FailureWindow is the sliding window after which old failures stop
	// counting toward the threshold.
	FailureWindow time.Duration `mapstructure:"failure_window"`
	// CallTimeout bounds each wrapped call; expiry counts as a failure.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// Classify decides which outcomes count as failures. Nil means
	// DefaultClassifier.
	Classify Classifier `mapstructure:"-"`
	// OnStateChange, if set, is notified after every transition.
	OnStateChange func(name string, from, to State) `mapstructure:"-"`
}

// withDefaults fills zero fields with the deployment defaults.
func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = 60 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.Classify == nil {
		c.Classify = DefaultClassifier
	}
	return c
}

// Breaker is one per-dependency circuit breaker. Transition state is guarded
// by a mutex held only across the state mutation, never across the wrapped
// call. The monotone totals are lock-free and approximate under concurrency;
// only monotonicity is guaranteed.
type Breaker struct {
	name string
	cfg  Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	openedAt        time.Time // zero unless open or half-open

	totalCalls      atomic.Int64
	totalFailures   atomic.Int64
	totalSuccesses  atomic.Int64
	totalRejections atomic.Int64

	now    func() time.Time
	logger *zap.Logger
}

// New creates a breaker in the closed state. A fresh process always starts
// closed; breaker state is never persisted.
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	return newBreakerAt(name, cfg, logger, time.Now)
}

func newBreakerAt(name string, cfg Config, logger *zap.Logger, now func() time.Time) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		state:  StateClosed,
		now:    now,
		logger: logger,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs op under the breaker. If the circuit is open the call is
// rejected with CircuitOpenError without invoking op. Otherwise op runs under
// the call timeout and its outcome is classified and recorded. The operation's
// own result or error is propagated unchanged; the breaker only decides
// whether to attempt the call.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "breaker.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("breaker.dependency", b.name))

	b.totalCalls.Add(1)

	retryAfter, admitted := b.tryAcquire()
	if !admitted {
		b.totalRejections.Add(1)
		span.SetAttributes(attribute.Bool("breaker.rejected", true))
		return &CircuitOpenError{Dependency: b.name, RetryAfter: retryAfter}
	}

	err := b.invoke(ctx, op)

	switch b.cfg.Classify(err) {
	case OutcomeSuccess:
		b.recordSuccess()
	case OutcomeFailure:
		b.recordFailure()
	}
	return err
}

// invoke races op against the call timeout. On expiry the operation is
// abandoned from the breaker's perspective even if still running; cancelling
// the underlying work is the operation's job via the derived context.
func (b *Breaker) invoke(ctx context.Context, op func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(callCtx) }()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &CallTimeoutError{Dependency: b.name, Timeout: b.cfg.CallTimeout}
		}
		return ctx.Err()
	}
}

// tryAcquire evaluates the state-transition preconditions and reports whether
// the call may proceed. When rejecting it returns the remaining wait until the
// next probe.
func (b *Breaker) tryAcquire() (time.Duration, bool) {
	b.mu.Lock()
	now := b.now()

	switch b.state {
	case StateClosed:
		// Sliding window: isolated old failures must not accumulate.
		if b.failureCount > 0 && now.Sub(b.lastFailureTime) > b.cfg.FailureWindow {
			b.failureCount = 0
		}
		b.mu.Unlock()
		return 0, true

	case StateOpen:
		elapsed := now.Sub(b.openedAt)
		if elapsed >= b.cfg.RecoveryTimeout {
			from := b.transitionLocked(StateHalfOpen, now)
			b.mu.Unlock()
			b.notify(from, StateHalfOpen)
			return 0, true
		}
		b.mu.Unlock()
		return b.cfg.RecoveryTimeout - elapsed, false

	case StateHalfOpen:
		b.mu.Unlock()
		return 0, true

	default:
		b.mu.Unlock()
		return 0, false
	}
}

func (b *Breaker) recordSuccess() {
	b.totalSuccesses.Add(1)

	b.mu.Lock()
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			from := b.transitionLocked(StateClosed, b.now())
			b.mu.Unlock()
			b.notify(from, StateClosed)
			return
		}
	}
	b.mu.Unlock()
}

func (b *Breaker) recordFailure() {
	b.totalFailures.Add(1)

	b.mu.Lock()
	now := b.now()
	switch b.state {
	case StateClosed:
		if b.failureCount > 0 && now.Sub(b.lastFailureTime) > b.cfg.FailureWindow {
			b.failureCount = 0
		}
		b.failureCount++
		b.lastFailureTime = now
		if b.failureCount >= b.cfg.FailureThreshold {
			from := b.transitionLocked(StateOpen, now)
			b.mu.Unlock()
			b.notify(from, StateOpen)
			return
		}
	case StateHalfOpen:
		// A single probe failure reopens the circuit, no partial credit.
		b.lastFailureTime = now
		from := b.transitionLocked(StateOpen, now)
		b.mu.Unlock()
		b.notify(from, StateOpen)
		return
	case StateOpen:
		b.lastFailureTime = now
	}
	b.mu.Unlock()
}

// transitionLocked applies the transition bookkeeping. Caller holds b.mu and
// must emit the notification after unlocking.
func (b *Breaker) transitionLocked(to State, now time.Time) (from State) {
	from = b.state
	b.state = to

	switch to {
	case StateOpen:
		b.openedAt = now
	case StateHalfOpen:
		b.successCount = 0
	case StateClosed:
		b.failureCount = 0
		b.successCount = 0
		b.openedAt = time.Time{}
	}
	return from
}

// notify logs the transition and invokes the configured hook outside the lock.
func (b *Breaker) notify(from, to State) {
	switch to {
	case StateOpen:
		b.logger.Warn("circuit breaker opened",
			zap.String("dependency", b.name),
			zap.String("from", from.String()))
	case StateHalfOpen:
		b.logger.Info("circuit breaker half-open, probing",
			zap.String("dependency", b.name))
	case StateClosed:
		b.logger.Info("circuit breaker closed",
			zap.String("dependency", b.name))
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed. Exposed for the admin surface.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.openedAt = time.Time{}
	b.mu.Unlock()

	if from != StateClosed {
		b.logger.Info("circuit breaker manually reset",
			zap.String("dependency", b.name),
			zap.String("from", from.String()))
		if b.cfg.OnStateChange != nil {
			b.cfg.OnStateChange(b.name, from, StateClosed)
		}
	}
}

// Snapshot is a point-in-time view of one breaker for metrics and admin.
type Snapshot struct {
	Name            string        `json:"name"`
	State           string        `json:"state"`
	FailureCount    int           `json:"failure_count"`
	SuccessCount    int           `json:"success_count"`
	OpenedAt        *time.Time    `json:"opened_at,omitempty"`
	LastFailureTime *time.Time    `json:"last_failure_time,omitempty"`
	RetryAfter      time.Duration `json:"retry_after,omitempty"`
	TotalCalls      int64         `json:"total_calls"`
	TotalFailures   int64         `json:"total_failures"`
	TotalSuccesses  int64         `json:"total_successes"`
	TotalRejections int64         `json:"total_rejections"`
}

// Snapshot captures the breaker's current state and counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	snap := Snapshot{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
	}
	if !b.openedAt.IsZero() {
		t := b.openedAt
		snap.OpenedAt = &t
		if b.state == StateOpen {
			if wait := b.cfg.RecoveryTimeout - b.now().Sub(b.openedAt); wait > 0 {
				snap.RetryAfter = wait
			}
		}
	}
	if !b.lastFailureTime.IsZero() {
		t := b.lastFailureTime
		snap.LastFailureTime = &t
	}
	b.mu.Unlock()

	snap.TotalCalls = b.totalCalls.Load()
	snap.TotalFailures = b.totalFailures.Load()
	snap.TotalSuccesses = b.totalSuccesses.Load()
	snap.TotalRejections = b.totalRejections.Load()
	return snap
}
