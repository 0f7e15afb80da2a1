package parlab

import (
	"sync"
	"sync/atomic"
)

// RWLock is a reader-writer lock built from two mutexes and a reader count.
//
// The write mutex is the real exclusion point. A writer holds it directly.
// Readers hold it as a group: the first reader in acquires it and the last
// reader out releases it, possibly from a different goroutine. The read
// mutex serializes those first/last transitions and is held only for one
// counter update.
//
// Properties:
//   - Many concurrent readers or one writer.
//   - No fairness: a stream of overlapping readers keeps the count above
//     zero and starves writers. See SpinRWLock for a writer-preferring lock.
//   - No upgrade or downgrade, not reentrant. A goroutine holding a read
//     lock that calls Lock deadlocks.
//   - Misuse (unlock without lock, double unlock) is undefined. Unlocking
//     an unheld write mutex crashes the program like sync.Mutex does.
//
// The zero value is an unlocked lock.
//
// Usage:
//
//	var rw parlab.RWLock
//
//	rw.RLock()
//	read(shared)
//	rw.RUnlock()
//
//	rw.Lock()
//	write(shared)
//	rw.Unlock()
type RWLock struct {
	_       noCopy
	readMu  sync.Mutex
	writeMu sync.Mutex
	// readers is only modified under readMu; loads outside readMu are
	// diagnostic snapshots.
	readers atomic.Int32
	writing atomic.Bool
}

// LockState is a snapshot of an RWLock's observable state.
type LockState uint8

const (
	// Free means no reader or writer holds the lock.
	Free LockState = iota
	// SharedRead means one or more readers hold the lock.
	SharedRead
	// ExclusiveWrite means a writer holds the lock.
	ExclusiveWrite
)

func (s LockState) String() string {
	switch s {
	case Free:
		return "free"
	case SharedRead:
		return "shared-read"
	case ExclusiveWrite:
		return "exclusive-write"
	default:
		return "unknown"
	}
}

// NewRWLock returns an initialized lock.
func NewRWLock() *RWLock {
	l := &RWLock{}
	l.Init()
	return l
}

// Init resets the lock to the unlocked state with no readers.
// It must not be called while any goroutine uses the lock.
func (l *RWLock) Init() {
	l.readMu = sync.Mutex{}
	l.writeMu = sync.Mutex{}
	l.readers.Store(0)
	l.writing.Store(false)
}

// Destroy releases the lock's state once every goroutine has stopped
// using it. Calling it while the lock is held is undefined. A destroyed
// lock must be re-initialized with Init before reuse.
func (l *RWLock) Destroy() {
	l.Init()
}

// RLock acquires the lock for reading.
// The first reader blocks while a writer holds the lock.
func (l *RWLock) RLock() {
	l.readMu.Lock()
	if l.readers.Add(1) == 1 {
		l.writeMu.Lock()
	}
	l.readMu.Unlock()
}

// TryRLock acquires the lock for reading without blocking. It fails when
// a writer holds the lock, and also when another reader is entering or
// leaving at the same moment.
func (l *RWLock) TryRLock() bool {
	if !l.readMu.TryLock() {
		return false
	}
	defer l.readMu.Unlock()
	if l.readers.Load() == 0 && !l.writeMu.TryLock() {
		return false
	}
	l.readers.Add(1)
	return true
}

// RUnlock releases one read hold. The last reader out releases the
// write mutex on behalf of the whole reader group.
func (l *RWLock) RUnlock() {
	l.readMu.Lock()
	if l.readers.Add(-1) == 0 {
		l.writeMu.Unlock()
	}
	l.readMu.Unlock()
}

// Lock acquires the lock for writing.
// It blocks until no readers are active and no other writer holds it.
func (l *RWLock) Lock() {
	l.writeMu.Lock()
	l.writing.Store(true)
}

// TryLock acquires the lock for writing without blocking.
// It reports whether the lock was acquired.
func (l *RWLock) TryLock() bool {
	if !l.writeMu.TryLock() {
		return false
	}
	l.writing.Store(true)
	return true
}

// Unlock releases the write lock.
func (l *RWLock) Unlock() {
	l.writing.Store(false)
	l.writeMu.Unlock()
}

// Readers returns the number of readers inside or entering the lock. A
// first reader still waiting for a writer to leave is counted.
func (l *RWLock) Readers() int {
	return int(l.readers.Load())
}

// State returns a snapshot of the lock state. Under concurrency the
// result may be stale by the time it is returned.
func (l *RWLock) State() LockState {
	if l.writing.Load() {
		return ExclusiveWrite
	}
	if l.readers.Load() > 0 {
		return SharedRead
	}
	return Free
}

// RLocker returns a sync.Locker that calls RLock and RUnlock.
func (l *RWLock) RLocker() sync.Locker {
	return (*rlocker)(l)
}

type rlocker RWLock

func (r *rlocker) Lock()   { (*RWLock)(r).RLock() }
func (r *rlocker) Unlock() { (*RWLock)(r).RUnlock() }
