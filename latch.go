package parlab

import (
	"sync/atomic"

	"github.com/llxisdsh/parlab/internal/opt"
)

// Latch is a start line. Goroutines park in Wait until Open is called, then
// all of them leave together; later Wait calls pass straight through.
//
// A team spawns its workers first and opens the latch once every goroutine
// exists, so start-up skew does not leak into the work.
//
// Usage:
//
//	var start Latch
//	for range n {
//		go func() { start.Wait(); work() }()
//	}
//	start.Open()
//
// Size: 8 bytes.
type Latch struct {
	_ noCopy
	// state holds the open bit in bit 31 and the parked count below it.
	state atomic.Uint32
	sema  opt.Sema
}

const latchOpen = 1 << 31

// Open releases every parked goroutine. Opening twice is a no-op.
func (l *Latch) Open() {
	old := l.state.Or(latchOpen)
	if old&latchOpen != 0 {
		return
	}
	for range old {
		l.sema.Release()
	}
}

// Wait parks the caller until the latch is open.
func (l *Latch) Wait() {
	if l.state.Load()&latchOpen != 0 {
		return
	}
	// An arrival counted before Open is released by it; one counted after
	// sees the open bit.
	if l.state.Add(1)&latchOpen != 0 {
		return
	}
	l.sema.Acquire()
	l.state.Load()
}

// IsOpen reports whether Open has been called.
func (l *Latch) IsOpen() bool {
	return l.state.Load()&latchOpen != 0
}

// Waiting returns the number of goroutines parked at the line. It is 0
// once the latch is open.
func (l *Latch) Waiting() int {
	s := l.state.Load()
	if s&latchOpen != 0 {
		return 0
	}
	return int(s)
}
