package parlab

import (
	"sync/atomic"
)

// TicketLock is a fair, FIFO spin-lock.
//
// Goroutines acquire the lock in the order they called Lock, so unlike
// sync.Mutex no newcomer can barge ahead of a waiter. Each Lock takes a
// ticket and waits until the serving counter reaches it; Unlock advances
// the serving counter.
//
// Under contention with long critical sections the queue behaves like a
// convoy: one descheduled ticket holder stalls everyone behind it. Prefer
// it for short critical sections where arrival order matters, such as
// named critical regions.
type TicketLock struct {
	_       noCopy
	next    atomic.Uint32
	serving atomic.Uint32
}

// Lock acquires the lock. Blocks until every earlier ticket is served.
func (m *TicketLock) Lock() {
	my := m.next.Add(1) - 1
	var spins int
	for m.serving.Load() != my {
		delay(&spins)
	}
}

// TryLock acquires the lock only when nobody holds or waits for it.
func (m *TicketLock) TryLock() bool {
	s := m.serving.Load()
	return m.next.CompareAndSwap(s, s+1)
}

// Unlock releases the lock to the next ticket.
func (m *TicketLock) Unlock() {
	m.serving.Add(1)
}

// Waiting returns the number of goroutines holding or queued for the lock.
func (m *TicketLock) Waiting() int {
	return int(m.next.Load() - m.serving.Load())
}
