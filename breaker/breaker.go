package breaker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State identifies one of the three positions of the trip cycle.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

func (s State) Valid() bool {
	switch s {
	case StateClosed, StateOpen, StateHalfOpen:
		return true
	}
	return false
}

type Config struct {
	// Name identifies the guarded dependency, e.g. "database" or "llm".
	Name             string        `koanf:"name" mapstructure:"name"`
	FailureThreshold int           `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int           `koanf:"success_threshold" mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `koanf:"reset_timeout" mapstructure:"reset_timeout"`
	FailureWindow    time.Duration `koanf:"failure_window" mapstructure:"failure_window"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("breaker: name is required")
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("breaker: failure threshold must be positive")
	}
	if c.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker: success threshold must be positive")
	}
	if c.ResetTimeout <= 0 {
		return fmt.Errorf("breaker: reset timeout must be positive")
	}
	if c.FailureWindow <= 0 {
		return fmt.Errorf("breaker: failure window must be positive")
	}
	return nil
}

// Stats is a point-in-time snapshot. Reading it refreshes the lazy
// open -> half-open transition, so it is not a pure read.
type Stats struct {
	Name                 string
	State                State
	WindowFailures       int
	ConsecutiveSuccesses int
	OpenedAt             *time.Time
	LastFailureAt        *time.Time
	LastSuccessAt        *time.Time
	TotalRequests        uint64
	TotalFailures        uint64
	TotalSuccesses       uint64
	TimesOpened          uint64
}

// Breaker tracks rolling failure history for one external dependency and
// gates call attempts through a closed -> open -> half-open cycle. All
// mutations are serialized per instance; trackers share no global state.
type Breaker struct {
	mu sync.Mutex

	config               Config
	state                State
	failureTimes         []time.Time
	consecutiveSuccesses int
	openedAt             time.Time
	lastFailureAt        time.Time
	lastSuccessAt        time.Time

	totalRequests  uint64
	totalFailures  uint64
	totalSuccesses uint64
	timesOpened    uint64

	Now func() time.Time
}

func New(cfg Config) (*Breaker, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Breaker{
		config: cfg,
		state:  StateClosed,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.config.Name
}

// CanAttempt reports whether a call may be issued right now. When the breaker
// is open and the reset timeout has elapsed it transitions to half-open and
// permits the attempt. The breaker does not serialize concurrent half-open
// trials; callers own trial concurrency.
func (b *Breaker) CanAttempt() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canAttemptLocked(b.now())
}

// RecordSuccess registers a successful call outcome. In half-open, reaching
// the success threshold closes the circuit and clears the failure window.
func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.totalSuccesses++
	b.consecutiveSuccesses++
	b.lastSuccessAt = now

	if b.state == StateHalfOpen && b.consecutiveSuccesses >= b.config.SuccessThreshold {
		b.transitionLocked(StateClosed, now)
	}
}

// RecordFailure registers a failed call outcome. A single failure during a
// half-open trial reopens the circuit; in closed, crossing the in-window
// threshold opens it. Pruning always precedes the threshold comparison so
// stale failures never count.
func (b *Breaker) RecordFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.totalFailures++
	b.consecutiveSuccesses = 0
	b.lastFailureAt = now
	b.failureTimes = append(b.failureTimes, now)
	b.pruneLocked(now)

	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen, now)
	case StateClosed:
		if len(b.failureTimes) >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen, now)
		}
	}
}

// Do runs operation through the breaker. A rejected attempt invokes fallback
// when one is supplied, otherwise it fails with CircuitOpenError. A failure
// inside the circuit is recorded and re-raised unchanged; fallback never
// substitutes for an in-circuit failure. Timeouts are the caller's
// responsibility via ctx.
func (b *Breaker) Do(
	ctx context.Context,
	operation func(context.Context) error,
	fallback func(context.Context) error,
) error {
	if b == nil {
		return fmt.Errorf("breaker: breaker is not configured")
	}
	if operation == nil {
		return fmt.Errorf("breaker: operation is required")
	}

	if !b.beginAttempt() {
		if fallback != nil {
			return fallback(ctx)
		}
		return b.openError()
	}

	if err := operation(ctx); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Execute is the value-returning form of Breaker.Do.
func Execute[T any](
	ctx context.Context,
	b *Breaker,
	operation func(context.Context) (T, error),
	fallback func(context.Context) (T, error),
) (T, error) {
	var zero T
	if b == nil {
		return zero, fmt.Errorf("breaker: breaker is not configured")
	}
	if operation == nil {
		return zero, fmt.Errorf("breaker: operation is required")
	}

	if !b.beginAttempt() {
		if fallback != nil {
			return fallback(ctx)
		}
		return zero, b.openError()
	}

	out, err := operation(ctx)
	if err != nil {
		b.RecordFailure()
		return zero, err
	}
	b.RecordSuccess()
	return out, nil
}

// ForceState is an administrative override. Forcing open stamps the opened-at
// instant; forcing any other state clears it.
func (b *Breaker) ForceState(state State) error {
	if b == nil {
		return fmt.Errorf("breaker: breaker is not configured")
	}
	if !state.Valid() {
		return fmt.Errorf("breaker: invalid state %q", string(state))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(state, b.now())
	return nil
}

// Reset restores the initial closed state and discards the rolling failure
// window. Lifetime counters survive a reset.
func (b *Breaker) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureTimes = nil
	b.consecutiveSuccesses = 0
	b.openedAt = time.Time{}
}

// Stats snapshots the tracker. It runs the same lazy open -> half-open
// evaluation as CanAttempt without otherwise mutating call semantics.
func (b *Breaker) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refreshLocked(now)

	stats := Stats{
		Name:                 b.config.Name,
		State:                b.state,
		WindowFailures:       len(b.failureTimes),
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		TotalRequests:        b.totalRequests,
		TotalFailures:        b.totalFailures,
		TotalSuccesses:       b.totalSuccesses,
		TimesOpened:          b.timesOpened,
	}
	if !b.openedAt.IsZero() {
		openedAt := b.openedAt
		stats.OpenedAt = &openedAt
	}
	if !b.lastFailureAt.IsZero() {
		lastFailure := b.lastFailureAt
		stats.LastFailureAt = &lastFailure
	}
	if !b.lastSuccessAt.IsZero() {
		lastSuccess := b.lastSuccessAt
		stats.LastSuccessAt = &lastSuccess
	}
	return stats
}

func (b *Breaker) beginAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalRequests++
	return b.canAttemptLocked(b.now())
}

func (b *Breaker) openError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	retryAfter := b.config.ResetTimeout - b.now().Sub(b.openedAt)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return CircuitOpenError{
		Name:       b.config.Name,
		RetryAfter: retryAfter,
	}
}

func (b *Breaker) canAttemptLocked(now time.Time) bool {
	b.refreshLocked(now)
	switch b.state {
	case StateOpen:
		return false
	default:
		return true
	}
}

// refreshLocked prunes the failure window and applies the lazy
// open -> half-open transition. There is no background timer; elapsed reset
// timeouts are observed on the next call against the tracker.
func (b *Breaker) refreshLocked(now time.Time) {
	b.pruneLocked(now)
	if b.state == StateOpen && !b.openedAt.IsZero() && now.Sub(b.openedAt) >= b.config.ResetTimeout {
		b.transitionLocked(StateHalfOpen, now)
	}
}

func (b *Breaker) pruneLocked(now time.Time) {
	if len(b.failureTimes) == 0 {
		return
	}
	cutoff := now.Add(-b.config.FailureWindow)
	kept := b.failureTimes[:0]
	for _, failedAt := range b.failureTimes {
		if failedAt.After(cutoff) {
			kept = append(kept, failedAt)
		}
	}
	b.failureTimes = kept
}

// transitionLocked is the pure state-transition step; it stays free of
// logging so the machine is unit-testable without an observability backend.
func (b *Breaker) transitionLocked(next State, now time.Time) {
	if b.state == next && next != StateOpen {
		return
	}
	b.state = next
	b.consecutiveSuccesses = 0
	switch next {
	case StateOpen:
		b.openedAt = now
		b.timesOpened++
	case StateClosed:
		b.failureTimes = nil
		b.openedAt = time.Time{}
	default:
		b.openedAt = time.Time{}
	}
}

func (b *Breaker) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}
