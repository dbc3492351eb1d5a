// Package health tracks per-index failure history and gates use of an
// index the way a circuit breaker gates use of a flaky downstream service.
// It exists for index kinds whose execution path can fail independently of
// the KV layer — a vector index's external ANN engine, a spatial index's
// bounding-box math — so the planner can downgrade to a safe fallback
// instead of failing the query outright.
package health

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is one position in a tracked index's circuit-breaker lifecycle.
type State int32

const (
	StateHealthy State = iota
	StateFailed
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateFailed:
		return "failed"
	case StateRetrying:
		return "retrying"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IndexUnhealthyError reports that index's breaker is open and reason why
// a caller's operation against it was refused.
type IndexUnhealthyError struct {
	Index  string
	Reason string
}

func (e *IndexUnhealthyError) Error() string {
	return fmt.Sprintf("health: index %q unhealthy: %s", e.Index, e.Reason)
}

// Config bounds one Tracker's breaker behaviour. Zero values fall back to
// the defaults below.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker from healthy to failed.
	FailureThreshold int
	// RetryDelay is how long a failed breaker stays open before allowing
	// one probe through.
	RetryDelay time.Duration
	// MaxRetries bounds how many cooldown probes a failed breaker will
	// grant before it stops trying altogether.
	MaxRetries int
}

const (
	defaultFailureThreshold = 3
	defaultRetryDelay       = 30 * time.Second
	defaultMaxRetries       = 5
)

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}

// entry holds one index's breaker state. Counters are atomics so callers
// can read them for metrics without taking the Tracker's lock; the state
// transitions themselves (the part that must be read-modify-write
// consistent) are guarded by Tracker.mu instead of being lock-free.
type entry struct {
	state State

	totalSuccesses       atomic.Uint64
	totalFailures        atomic.Uint64
	consecutiveFailures  atomic.Uint64
	lastFailureUnixNanos atomic.Int64
	retriesUsed          atomic.Uint64
}

// Tracker holds breaker state for every index it has seen, created lazily
// on first use.
type Tracker struct {
	cfg Config

	mu      sync.Mutex
	indexes map[string]*entry
}

// New creates a Tracker with the given configuration.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg.withDefaults(), indexes: make(map[string]*entry)}
}

func (t *Tracker) entryFor(index string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.indexes[index]
	if !ok {
		e = &entry{state: StateHealthy}
		t.indexes[index] = e
	}
	return e
}

// ShouldUse reports whether index's breaker currently allows use. A healthy
// breaker always allows it. A failed breaker allows exactly one probe once
// cfg.RetryDelay has elapsed since the last failure and retries remain,
// transitioning to retrying for the duration of that probe; a breaker
// already retrying refuses further callers until the in-flight probe
// resolves via RecordSuccess or RecordFailure, so failures never pile up
// once a breaker is open.
func (t *Tracker) ShouldUse(index string) (bool, string) {
	e := t.entryFor(index)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.state {
	case StateHealthy:
		return true, ""
	case StateRetrying:
		return false, fmt.Sprintf("index %q: retry already in flight", index)
	case StateFailed:
		if e.retriesUsed.Load() >= uint64(t.cfg.MaxRetries) {
			return false, fmt.Sprintf("index %q: retries exhausted", index)
		}
		last := time.Unix(0, e.lastFailureUnixNanos.Load())
		if time.Since(last) < t.cfg.RetryDelay {
			return false, fmt.Sprintf("index %q: cooling down", index)
		}
		e.state = StateRetrying
		e.retriesUsed.Add(1)
		return true, ""
	default:
		return false, fmt.Sprintf("index %q: unknown breaker state", index)
	}
}

// RecordSuccess resets the consecutive-failure count and re-closes the
// breaker to healthy.
func (t *Tracker) RecordSuccess(index string) {
	e := t.entryFor(index)
	e.totalSuccesses.Add(1)
	e.consecutiveFailures.Store(0)
	e.retriesUsed.Store(0)

	t.mu.Lock()
	e.state = StateHealthy
	t.mu.Unlock()
}

// RecordFailure registers a failure against index. err is accepted for
// callers that want to log it alongside the counters; the tracker itself
// only counts occurrences.
func (t *Tracker) RecordFailure(index string, err error) {
	e := t.entryFor(index)
	e.totalFailures.Add(1)
	consecutive := e.consecutiveFailures.Add(1)
	e.lastFailureUnixNanos.Store(time.Now().UnixNano())

	if consecutive >= uint64(t.cfg.FailureThreshold) {
		t.mu.Lock()
		e.state = StateFailed
		t.mu.Unlock()
	}
}

// Reset clears every counter and closes the breaker, as if index had never
// failed. Used when an index is rebuilt from scratch.
func (t *Tracker) Reset(index string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.indexes[index] = &entry{state: StateHealthy}
}

// Snapshot reports index's current counters, for diagnostics and tests.
type Snapshot struct {
	State               State
	TotalSuccesses      uint64
	TotalFailures       uint64
	ConsecutiveFailures uint64
}

// Snapshot returns a point-in-time view of index's breaker state.
func (t *Tracker) Snapshot(index string) Snapshot {
	e := t.entryFor(index)
	t.mu.Lock()
	s := e.state
	t.mu.Unlock()
	return Snapshot{
		State:               s,
		TotalSuccesses:      e.totalSuccesses.Load(),
		TotalFailures:       e.totalFailures.Load(),
		ConsecutiveFailures: e.consecutiveFailures.Load(),
	}
}
