// Package breaker guards calls to a single downstream dependency with a
// three-state circuit breaker built on sony/gobreaker.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned without running the operation while the breaker is open,
// or while another caller holds the half-open trial slot.
var ErrOpen = errors.New("circuit open")

// ErrAbandoned marks an operation error caused by the caller giving up rather
// than by the dependency. Wrap it with Abandoned. It is not recorded while the
// breaker is closed; a half-open trial that ends this way counts as failed,
// since the dependency never proved it recovered.
var ErrAbandoned = errors.New("call abandoned by caller")

// Abandoned wraps err with ErrAbandoned.
func Abandoned(err error) error {
	return fmt.Errorf("%w: %w", ErrAbandoned, err)
}

// State is the breaker state.
type State string

// Breaker states.
const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker. Must be >= 1.
	FailureThreshold uint32
	// ResetTimeout is how long the breaker stays open before allowing one trial call.
	ResetTimeout time.Duration
}

// Transition describes a single state change.
type Transition struct {
	Name string
	From State
	To   State
	At   time.Time
	// OpenedAt is when the breaker last opened. On a transition to Closed it
	// still reports the opening that just ended.
	OpenedAt     time.Time
	FailureCount uint32
}

// Listener receives state transitions. It runs while the breaker's internal
// lock is held and must not call back into the breaker.
type Listener func(Transition)

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name             string     `json:"name"`
	State            State      `json:"state"`
	FailureCount     uint32     `json:"failure_count"`
	FailureThreshold uint32     `json:"failure_threshold"`
	ResetTimeout     string     `json:"reset_timeout"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
}

// Breaker tracks the health of one dependency.
type Breaker struct {
	name     string
	cfg      Config
	cb       *gobreaker.TwoStepCircuitBreaker
	listener Listener

	mu       sync.Mutex
	openedAt time.Time

	// tripCount is the failure count that last opened the breaker.
	tripCount atomic.Uint32
}

// New creates a breaker in the Closed state.
func New(name string, cfg Config, listener Listener) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.ResetTimeout < 0 {
		cfg.ResetTimeout = 0
	}

	b := &Breaker{name: name, cfg: cfg, listener: listener}

	timeout := cfg.ResetTimeout
	if timeout == 0 {
		// gobreaker substitutes its own default for a zero timeout.
		timeout = time.Nanosecond
	}

	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				b.tripCount.Store(counts.ConsecutiveFailures)
				return true
			}
			return false
		},
		OnStateChange: b.onStateChange,
	})

	return b
}

// Name returns the dependency name.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs op unless the breaker rejects it. A non-nil error from op is
// recorded as a failure, except for ErrAbandoned outside a half-open trial,
// which is not recorded at all. ErrOpen is returned when the call is rejected.
func (b *Breaker) Execute(op func() error) error {
	done, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrOpen
		}
		return err
	}
	// A half-open breaker admits nobody else until done is called, so the
	// state read here is the state the call was admitted in.
	trial := b.cb.State() == gobreaker.StateHalfOpen

	defer func() {
		if e := recover(); e != nil {
			done(false)
			panic(e)
		}
	}()

	opErr := op()
	switch {
	case opErr == nil:
		done(true)
	case errors.Is(opErr, ErrAbandoned) && !trial:
		// Left unreported. The request counter it holds belongs to a closed
		// generation, which never gates admission.
	default:
		done(false)
	}
	return opErr
}

// State returns the current state, advancing Open to HalfOpen once the reset timeout has elapsed.
func (b *Breaker) State() State {
	return convertState(b.cb.State())
}

// Snapshot returns state, failure count and opened-at.
func (b *Breaker) Snapshot() Snapshot {
	// gobreaker may fire onStateChange here, so b.mu is taken afterwards.
	state := convertState(b.cb.State())
	counts := b.cb.Counts()

	b.mu.Lock()
	openedAt := b.openedAt
	b.mu.Unlock()

	s := Snapshot{
		Name:             b.name,
		State:            state,
		FailureCount:     counts.ConsecutiveFailures,
		FailureThreshold: b.cfg.FailureThreshold,
		ResetTimeout:     b.cfg.ResetTimeout.String(),
	}
	if state == StateOpen {
		s.FailureCount = b.tripCount.Load()
	}
	if !openedAt.IsZero() {
		s.OpenedAt = &openedAt
	}
	return s
}

func (b *Breaker) onStateChange(_ string, from, to gobreaker.State) {
	now := time.Now()

	b.mu.Lock()
	openedAt := b.openedAt
	switch to {
	case gobreaker.StateOpen:
		b.openedAt = now
		openedAt = now
		if from == gobreaker.StateHalfOpen {
			b.tripCount.Store(max(b.tripCount.Load(), b.cfg.FailureThreshold))
		}
	case gobreaker.StateClosed:
		b.openedAt = time.Time{}
		b.tripCount.Store(0)
	}
	b.mu.Unlock()

	if b.listener == nil {
		return
	}
	b.listener(Transition{
		Name:         b.name,
		From:         convertState(from),
		To:           convertState(to),
		At:           now,
		OpenedAt:     openedAt,
		FailureCount: b.tripCount.Load(),
	})
}

func convertState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
