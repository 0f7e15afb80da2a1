package diag

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// TryLocker is a lock that can be probed without blocking. sync.Mutex and
// the parlab locks satisfy it.
type TryLocker interface {
	sync.Locker
	TryLock() bool
}

// Lock wraps a TryLocker and records how often it is taken, how often the
// taker had to wait and for how long.
type Lock struct {
	name    string
	mu      TryLocker
	clock   clockwork.Clock
	metrics *Metrics

	acquisitions atomic.Uint64
	contended    atomic.Uint64
	waited       atomic.Int64
}

// LockOption configures a Lock.
type LockOption func(*Lock)

// WithClock sets the clock used to time waits.
func WithClock(c clockwork.Clock) LockOption {
	return func(l *Lock) { l.clock = c }
}

// WithMetrics exports the lock statistics through m.
func WithMetrics(m *Metrics) LockOption {
	return func(l *Lock) { l.metrics = m }
}

// NewLock returns an instrumented wrapper around mu.
func NewLock(name string, mu TryLocker, opts ...LockOption) *Lock {
	l := &Lock{name: name, mu: mu, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires the underlying lock. An acquisition counts as contended
// when the lock could not be taken immediately.
func (l *Lock) Lock() {
	l.acquisitions.Add(1)
	if l.metrics != nil {
		l.metrics.acquisitions.WithLabelValues(l.name).Inc()
	}
	if l.mu.TryLock() {
		return
	}

	start := l.clock.Now()
	l.mu.Lock()
	wait := l.clock.Since(start)

	l.contended.Add(1)
	l.waited.Add(int64(wait))
	if l.metrics != nil {
		l.metrics.contended.WithLabelValues(l.name).Inc()
		l.metrics.wait.WithLabelValues(l.name).Observe(wait.Seconds())
	}
}

// Unlock releases the underlying lock.
func (l *Lock) Unlock() {
	l.mu.Unlock()
}

// LockStats is a snapshot of a Lock's counters.
type LockStats struct {
	Name         string
	Acquisitions uint64
	Contended    uint64
	Wait         time.Duration
}

// ContentionRate returns the fraction of acquisitions that had to wait.
func (s LockStats) ContentionRate() float64 {
	if s.Acquisitions == 0 {
		return 0
	}
	return float64(s.Contended) / float64(s.Acquisitions)
}

// Stats returns the current counters.
func (l *Lock) Stats() LockStats {
	return LockStats{
		Name:         l.name,
		Acquisitions: l.acquisitions.Load(),
		Contended:    l.contended.Load(),
		Wait:         time.Duration(l.waited.Load()),
	}
}
