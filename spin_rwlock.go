package parlab

import (
	"sync/atomic"
)

// SpinRWLock is a spin-based, writer-preferring reader-writer lock.
//
// A writer first sets the writer bit, which turns away new readers, and
// then waits for the readers already inside to drain. A waiting writer
// therefore cannot be starved by a stream of overlapping readers, which is
// the weakness of RWLock.
//
// Intended for very small critical sections. Waiters busy-wait with
// backoff.
//
// Size: 4 bytes.
type SpinRWLock struct {
	_ noCopy
	// state:
	//   bit 0:     writer holding or waiting
	//   bits 1-31: reader count
	state atomic.Uint32
}

const (
	spinWriteBit = 1
	spinReadUnit = 2
)

// Lock acquires the write lock.
func (l *SpinRWLock) Lock() {
	var spins int
	for {
		s := l.state.Load()
		if s&spinWriteBit == 0 && l.state.CompareAndSwap(s, s|spinWriteBit) {
			break
		}
		delay(&spins)
	}
	// Writer bit is ours. Wait for readers already inside.
	spins = 0
	for l.state.Load() != spinWriteBit {
		delay(&spins)
	}
}

// TryLock acquires the write lock only if the lock is completely free.
func (l *SpinRWLock) TryLock() bool {
	return l.state.CompareAndSwap(0, spinWriteBit)
}

// Unlock releases the write lock.
func (l *SpinRWLock) Unlock() {
	l.state.Store(0)
}

// RLock acquires a read lock. It waits while a writer holds the lock or
// is waiting for it.
func (l *SpinRWLock) RLock() {
	var spins int
	for {
		s := l.state.Load()
		if s&spinWriteBit == 0 && l.state.CompareAndSwap(s, s+spinReadUnit) {
			return
		}
		delay(&spins)
	}
}

// TryRLock acquires a read lock if no writer holds or waits for the lock.
func (l *SpinRWLock) TryRLock() bool {
	for {
		s := l.state.Load()
		if s&spinWriteBit != 0 {
			return false
		}
		if l.state.CompareAndSwap(s, s+spinReadUnit) {
			return true
		}
	}
}

// RUnlock releases a read lock.
func (l *SpinRWLock) RUnlock() {
	l.state.Add(^uint32(spinReadUnit - 1))
}

// Readers returns the number of readers inside the lock.
func (l *SpinRWLock) Readers() int {
	return int(l.state.Load() >> 1)
}

// WriterPending reports whether a writer holds the lock or waits for it.
func (l *SpinRWLock) WriterPending() bool {
	return l.state.Load()&spinWriteBit != 0
}
