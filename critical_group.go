package parlab

import (
	"github.com/llxisdsh/pb"
)

// CriticalGroup provides named critical sections: one lock per key, so
// sections with different names run concurrently while sections with the
// same name exclude each other.
//
// Features:
//   - Infinite Keys: no need to pre-declare names.
//   - Auto-Cleanup: a key's lock is dropped once nobody holds or waits for it.
//   - FIFO per key: each key is guarded by a TicketLock.
//
// Usage:
//
//	var cs CriticalGroup[string]
//	cs.Do("histogram", func() {
//		hist[bucket]++
//	})
type CriticalGroup[K comparable] struct {
	_ noCopy
	m pb.MapOf[K, *criticalEntry]
}

type criticalEntry struct {
	mu TicketLock
	// ref is protected by the map entry lock.
	ref int32
}

// Lock enters the critical section named k.
func (g *CriticalGroup[K]) Lock(k K) {
	e, _ := g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *criticalEntry]) (*pb.EntryOf[K, *criticalEntry], *criticalEntry, bool) {
			if l != nil {
				l.Value.ref++
				return l, l.Value, true
			}
			e := &criticalEntry{ref: 1}
			return &pb.EntryOf[K, *criticalEntry]{Value: e}, e, false
		},
	)
	e.mu.Lock()
}

// Unlock leaves the critical section named k.
// It is a no-op if k is not locked.
func (g *CriticalGroup[K]) Unlock(k K) {
	e, ok := g.m.Load(k)
	if !ok {
		return
	}
	e.mu.Unlock()

	g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *criticalEntry]) (*pb.EntryOf[K, *criticalEntry], *criticalEntry, bool) {
			if l == nil {
				return nil, nil, false
			}
			l.Value.ref--
			if l.Value.ref <= 0 {
				return nil, nil, true
			}
			return l, l.Value, true
		},
	)
}

// Do runs fn inside the critical section named k.
func (g *CriticalGroup[K]) Do(k K, fn func()) {
	g.Lock(k)
	defer g.Unlock(k)
	fn()
}

// Len returns the number of names currently held or waited on.
func (g *CriticalGroup[K]) Len() int {
	return g.m.Size()
}
