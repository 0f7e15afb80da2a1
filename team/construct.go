package team

import (
	"sync"
	"sync/atomic"

	"github.com/llxisdsh/pb"

	"github.com/llxisdsh/parlab"
)

// construct is the shared state of one team-wide construct instance. All
// workers find the same instance by their construct sequence number; the
// first to arrive creates it and the last to leave removes it.
type construct struct {
	// arrived and left are protected by the map entry lock.
	arrived int
	left    int

	next atomic.Int64
	turn parlab.Sequencer

	once sync.Once
	data any
}

// enter registers the worker's arrival at its next construct and reports
// whether it was the first to arrive.
func (w *Worker) enter() (*construct, uint64, bool) {
	r := w.r
	r.checkAborted()
	key := w.seq
	w.seq++
	if r.size == 1 {
		return &construct{}, key, true
	}

	c, first := r.constructs.ProcessEntry(
		key,
		func(e *pb.EntryOf[uint64, *construct]) (*pb.EntryOf[uint64, *construct], *construct, bool) {
			if e == nil {
				c := &construct{arrived: 1}
				return &pb.EntryOf[uint64, *construct]{Value: c}, c, true
			}
			e.Value.arrived++
			return e, e.Value, false
		},
	)
	return c, key, first
}

func (w *Worker) leave(key uint64) {
	r := w.r
	if r.size == 1 {
		return
	}
	r.constructs.ProcessEntry(
		key,
		func(e *pb.EntryOf[uint64, *construct]) (*pb.EntryOf[uint64, *construct], *construct, bool) {
			if e == nil {
				return nil, nil, false
			}
			e.Value.left++
			if e.Value.left == r.size {
				return nil, nil, true
			}
			return e, e.Value, true
		},
	)
}

// Barrier blocks until every worker of the team has reached it.
func (w *Worker) Barrier() {
	if w.r.barrier.Wait() < 0 {
		panic(errAborted)
	}
}

// Master runs fn on the team master only. There is no implied barrier.
func (w *Worker) Master(fn func()) {
	if w.id == 0 {
		fn()
	}
}

// Single runs fn on the first worker to arrive. The others skip it and,
// unless NoWait is given, wait at an implied barrier until fn is done.
// It reports whether this worker ran fn.
func (w *Worker) Single(fn func(), opts ...ConstructOption) bool {
	cfg := newConstructConfig(opts)
	_, key, first := w.enter()
	w.leave(key)
	if first {
		fn()
	}
	if !cfg.nowait {
		w.Barrier()
	}
	return first
}

// Critical runs fn while holding the critical section called name. The
// section is shared by the outermost team and every team nested in it.
func (w *Worker) Critical(name string, fn func()) {
	w.r.rt.critical.Do(name, fn)
}
