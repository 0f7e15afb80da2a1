package team

import (
	"fmt"
)

// ScheduleKind is the way a work-sharing loop hands out iterations.
type ScheduleKind int

const (
	// ScheduleStatic splits the range into one contiguous block per worker.
	ScheduleStatic ScheduleKind = iota
	// ScheduleStaticChunk deals fixed-size chunks round-robin.
	ScheduleStaticChunk
	// ScheduleDynamic lets workers claim fixed-size chunks as they finish.
	ScheduleDynamic
	// ScheduleGuided lets workers claim chunks that shrink with the work
	// left, down to the chunk size.
	ScheduleGuided
)

func (k ScheduleKind) String() string {
	switch k {
	case ScheduleStatic:
		return "static"
	case ScheduleStaticChunk:
		return "static-chunk"
	case ScheduleDynamic:
		return "dynamic"
	case ScheduleGuided:
		return "guided"
	default:
		return "unknown"
	}
}

// Schedule is a loop schedule and its chunk size.
type Schedule struct {
	Kind  ScheduleKind
	Chunk int
}

func (s Schedule) String() string {
	if s.Kind == ScheduleStatic {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s,%d", s.Kind, s.Chunk)
}

// ConstructOption configures For and Single.
type ConstructOption func(*constructConfig)

type constructConfig struct {
	schedule Schedule
	nowait   bool
	ordered  bool
}

func newConstructConfig(opts []ConstructOption) constructConfig {
	cfg := constructConfig{schedule: Schedule{Kind: ScheduleStatic}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.schedule.Chunk <= 0 {
		cfg.schedule.Chunk = 1
	}
	return cfg
}

// WithSchedule sets the loop schedule.
func WithSchedule(s Schedule) ConstructOption {
	return func(c *constructConfig) { c.schedule = s }
}

// Static splits the loop into one contiguous block per worker. It is the
// default.
func Static() ConstructOption {
	return WithSchedule(Schedule{Kind: ScheduleStatic})
}

// StaticChunk deals chunks of k iterations round-robin.
func StaticChunk(k int) ConstructOption {
	return WithSchedule(Schedule{Kind: ScheduleStaticChunk, Chunk: k})
}

// Dynamic lets each worker claim k iterations at a time.
func Dynamic(k int) ConstructOption {
	return WithSchedule(Schedule{Kind: ScheduleDynamic, Chunk: k})
}

// Guided lets each worker claim a share of the remaining iterations, never
// fewer than k.
func Guided(k int) ConstructOption {
	return WithSchedule(Schedule{Kind: ScheduleGuided, Chunk: k})
}

// NoWait drops the implied barrier at the end of For or Single.
func NoWait() ConstructOption {
	return func(c *constructConfig) { c.nowait = true }
}

// Ordered allows the loop body to call Worker.Ordered.
func Ordered() ConstructOption {
	return func(c *constructConfig) { c.ordered = true }
}

type loopState struct {
	c       *construct
	lo      int
	ordered bool

	iter int
	done bool
}

// For shares the iterations [lo, hi) among the team: each iteration runs
// exactly once, on one worker. Each worker visits its iterations in
// ascending order. Unless NoWait is given, no worker returns before the
// whole loop is done.
func (w *Worker) For(lo, hi int, body func(i int), opts ...ConstructOption) {
	cfg := newConstructConfig(opts)
	c, key, _ := w.enter()

	ls := &loopState{c: c, lo: lo, ordered: cfg.ordered}
	prev := w.loop
	w.loop = ls

	w.iterate(cfg.schedule, c, lo, hi, func(i int) {
		ls.iter, ls.done = i, false
		body(i)
		if ls.ordered && !ls.done {
			// Pass the turn on for iterations that skipped the ordered region.
			w.orderedTurn(ls, nil)
		}
	})

	w.loop = prev
	w.leave(key)
	if !cfg.nowait {
		w.Barrier()
	}
}

// Ordered runs fn in iteration order. It must be called from the body of a
// For loop given the Ordered option, at most once per iteration.
func (w *Worker) Ordered(fn func()) {
	ls := w.loop
	if ls == nil || !ls.ordered {
		panic("team: Ordered called outside a loop with the Ordered option")
	}
	if ls.done {
		panic("team: Ordered called twice in one iteration")
	}
	w.orderedTurn(ls, fn)
}

func (w *Worker) orderedTurn(ls *loopState, fn func()) {
	ls.done = true
	w.r.checkAborted()
	ls.c.turn.WaitFor(uint64(ls.iter - ls.lo))
	w.r.checkAborted()
	if fn != nil {
		fn()
	}
	ls.c.turn.Advance()
}

func (w *Worker) iterate(s Schedule, c *construct, lo, hi int, fn func(i int)) {
	total := hi - lo
	if total <= 0 {
		return
	}
	n, id := w.r.size, w.id

	switch s.Kind {
	case ScheduleStaticChunk:
		k := s.Chunk
		for start := lo + id*k; start < hi; start += n * k {
			for i := start; i < min(start+k, hi); i++ {
				fn(i)
			}
		}

	case ScheduleDynamic:
		k := int64(s.Chunk)
		for {
			w.r.checkAborted()
			start := c.next.Add(k) - k
			if start >= int64(total) {
				return
			}
			end := min(start+k, int64(total))
			for i := start; i < end; i++ {
				fn(lo + int(i))
			}
		}

	case ScheduleGuided:
		k := int64(s.Chunk)
		for {
			w.r.checkAborted()
			cur := c.next.Load()
			rem := int64(total) - cur
			if rem <= 0 {
				return
			}
			size := min(max((rem+int64(n)-1)/int64(n), k), rem)
			if !c.next.CompareAndSwap(cur, cur+size) {
				continue
			}
			for i := cur; i < cur+size; i++ {
				fn(lo + int(i))
			}
		}

	default:
		start, end := StaticRange(lo, hi, n, id)
		for i := start; i < end; i++ {
			fn(i)
		}
	}
}

// StaticRange returns the contiguous block [start, end) of [lo, hi) that
// the static schedule assigns to worker id of an n-worker team.
func StaticRange(lo, hi, n, id int) (start, end int) {
	total := max(hi-lo, 0)
	q, r := total/n, total%n
	start = lo + id*q + min(id, r)
	end = start + q
	if id < r {
		end++
	}
	return start, end
}
