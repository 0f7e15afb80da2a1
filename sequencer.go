package parlab

import (
	"sync/atomic"

	"github.com/llxisdsh/parlab/internal/opt"
)

// Sequencer is a monotonically increasing counter with "wait for turn"
// semantics. It orders work that runs on different goroutines: the holder
// of turn n calls WaitFor(n), does its work, then Advance to hand the turn
// to n+1.
//
// Waiters are kept in a list and only those whose turn has come are woken,
// so Advance never causes a thundering herd.
//
// Example:
//
//	var s Sequencer
//	go func() { s.WaitFor(1); fmt.Println("second"); s.Advance() }()
//	fmt.Println("first")
//	s.Advance()
type Sequencer struct {
	_     noCopy
	state atomic.Uint64
	mu    TicketLock
	head  *seqWaiter
}

type seqWaiter struct {
	target uint64
	sema   opt.Sema
	// next is protected by Sequencer.mu
	next *seqWaiter
}

// Current returns the current turn.
func (s *Sequencer) Current() uint64 {
	return s.state.Load()
}

// Advance moves to the next turn and wakes the goroutine waiting for it.
// It returns the new turn.
func (s *Sequencer) Advance() uint64 {
	return s.Add(1)
}

// Add advances the counter by delta and wakes every waiter whose target
// has been reached.
func (s *Sequencer) Add(delta uint64) uint64 {
	if delta == 0 {
		return s.Current()
	}
	cur := s.state.Add(delta)

	s.mu.Lock()
	var prev *seqWaiter
	w := s.head
	for w != nil {
		next := w.next
		if w.target <= cur {
			if prev == nil {
				s.head = next
			} else {
				prev.next = next
			}
			w.sema.Release()
		} else {
			prev = w
		}
		w = next
	}
	s.mu.Unlock()
	return cur
}

// WaitFor blocks until the counter reaches at least target.
func (s *Sequencer) WaitFor(target uint64) {
	if s.state.Load() >= target {
		return
	}

	s.mu.Lock()
	if s.state.Load() >= target {
		s.mu.Unlock()
		return
	}
	w := &seqWaiter{target: target, next: s.head}
	s.head = w
	s.mu.Unlock()

	w.sema.Acquire()
	s.state.Load()
}
