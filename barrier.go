package parlab

import (
	"sync/atomic"

	"github.com/llxisdsh/parlab/internal/opt"
)

// Barrier is a reusable (cyclic) barrier for a fixed party of goroutines.
//
// Every party calls Wait; nobody returns until all parties have arrived.
// The last arrival trips the barrier, releases the others and resets it
// for the next generation, so the same Barrier can separate any number of
// phases.
//
// A barrier can be broken when a party gives up; the others are then
// released instead of waiting forever.
//
// Size: 24 bytes (8 byte state + 2*4 byte sema + parties).
type Barrier struct {
	_ noCopy
	// state 64-bit:
	//   High 32: Generation
	//   Bit 31: Broken
	//   Low 31: Current Waiter Count
	state atomic.Uint64

	// sema is double-buffered so a fast goroutine re-entering the next
	// generation cannot steal a wakeup meant for the previous one.
	// Generation N waits on sema[N%2].
	sema [2]opt.Sema

	parties uint32
}

const (
	barrierBroken    = 1 << 31
	barrierCountMask = barrierBroken - 1
)

// NewBarrier returns a barrier for the given number of parties.
// It panics if parties <= 0.
func NewBarrier(parties int) *Barrier {
	if parties <= 0 || parties > barrierCountMask {
		panic("parlab: barrier parties must be positive")
	}
	return &Barrier{parties: uint32(parties)}
}

// Parties returns the number of goroutines required to trip the barrier.
func (b *Barrier) Parties() int {
	return int(b.parties)
}

// Generation returns how many times the barrier has tripped.
func (b *Barrier) Generation() uint32 {
	return uint32(b.state.Load() >> 32)
}

// Wait blocks until all parties have called Wait.
//
// Returns the arrival index (0 to parties-1); parties-1 means the caller
// arrived last and tripped the barrier. Returns -1 if the barrier is or
// becomes broken before it trips.
func (b *Barrier) Wait() int {
	var spins int
	for {
		s := b.state.Load()
		if s&barrierBroken != 0 {
			return -1
		}
		gen := s >> 32
		count := uint32(s) & barrierCountMask

		if count == b.parties-1 {
			if b.state.CompareAndSwap(s, (gen+1)<<32) {
				semaPtr := &b.sema[gen%2]
				for range count {
					semaPtr.Release()
				}
				return int(count)
			}
		} else if b.state.CompareAndSwap(s, s+1) {
			b.sema[gen%2].Acquire()
			// Pairs with the tripping CAS so the race detector sees the edge.
			if now := b.state.Load(); now>>32 == gen && now&barrierBroken != 0 {
				return -1
			}
			return int(count)
		}
		delay(&spins)
	}
}

// Break marks the barrier broken and releases every waiter with -1.
// Later calls to Wait return -1 immediately. A broken barrier stays broken.
func (b *Barrier) Break() {
	for {
		s := b.state.Load()
		if s&barrierBroken != 0 {
			return
		}
		if b.state.CompareAndSwap(s, s|barrierBroken) {
			gen := s >> 32
			for range uint32(s) & barrierCountMask {
				b.sema[gen%2].Release()
			}
			return
		}
	}
}

// Broken reports whether Break has been called.
func (b *Barrier) Broken() bool {
	return b.state.Load()&barrierBroken != 0
}
