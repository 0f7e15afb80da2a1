// Package racecheck is a small happens-before race checker driven by
// explicit events.
//
// Programs under test report what they do: thread forks and joins, lock
// acquires and releases, and reads and writes of named variables. The
// detector keeps a vector clock per thread and per lock, and reports two
// accesses to the same variable as a race when at least one is a write and
// neither happens before the other.
//
// Unlike the Go race detector it checks a model of the program, so a demo
// can show a race deterministically without actually racing.
package racecheck

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Thread identifies a logical thread of the checked program.
type Thread int

// Kind classifies a race by the order its two accesses were reported in.
type Kind int

const (
	// WriteWrite is a write concurrent with an earlier write.
	WriteWrite Kind = iota
	// ReadWrite is a write concurrent with an earlier read.
	ReadWrite
	// WriteRead is a read concurrent with an earlier write.
	WriteRead
)

func (k Kind) String() string {
	switch k {
	case WriteWrite:
		return "write-write"
	case ReadWrite:
		return "read-write"
	case WriteRead:
		return "write-read"
	default:
		return "unknown"
	}
}

// Race is one detected race. First is the thread of the earlier access.
type Race struct {
	Kind   Kind
	Var    string
	First  Thread
	Second Thread
}

func (r Race) String() string {
	return fmt.Sprintf("%s race on %q between thread %d and thread %d", r.Kind, r.Var, r.First, r.Second)
}

// epoch is a single clock entry c@t.
type epoch struct {
	t Thread
	c uint64
}

type varState struct {
	write   epoch
	written bool
	reads   map[Thread]uint64
}

// Detector tracks happens-before between the events reported to it. It is
// safe for concurrent use.
type Detector struct {
	mu      sync.Mutex
	logger  *zap.Logger
	threads []vclock
	locks   map[string]vclock
	shared  map[string]vclock
	vars    map[string]*varState
	races   []Race
	seen    map[Race]struct{}
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger logs each new race at warn level.
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New returns a detector with a single running thread, Main.
func New(opts ...Option) *Detector {
	d := &Detector{
		logger: zap.NewNop(),
		locks:  make(map[string]vclock),
		shared: make(map[string]vclock),
		vars:   make(map[string]*varState),
		seen:   make(map[Race]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	main := vclock{}
	main.tick(Main)
	d.threads = append(d.threads, main)
	return d
}

// Main is the thread a Detector starts with.
const Main Thread = 0

// Fork starts a new thread. Everything parent did so far happens before
// everything the child does.
func (d *Detector) Fork(parent Thread) Thread {
	d.mu.Lock()
	defer d.mu.Unlock()

	child := Thread(len(d.threads))
	c := d.clock(parent).clone()
	c.tick(child)
	d.threads = append(d.threads, c)
	d.threads[parent].tick(parent)
	return child
}

// Join waits for child in parent. Everything child did happens before what
// parent does next.
func (d *Detector) Join(parent, child Thread) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clock(parent)
	d.threads[parent].join(d.clock(child))
	d.threads[child].tick(child)
}

// Acquire records t taking lock exclusively.
func (d *Detector) Acquire(t Thread, lock string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clock(t)
	d.threads[t].join(d.locks[lock])
	d.threads[t].join(d.shared[lock])
}

// Release records t releasing an exclusive hold of lock.
func (d *Detector) Release(t Thread, lock string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.locks[lock] = d.clock(t).clone()
	delete(d.shared, lock)
	d.threads[t].tick(t)
}

// AcquireShared records t taking lock for reading. Readers synchronize
// with earlier writers but not with each other.
func (d *Detector) AcquireShared(t Thread, lock string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clock(t)
	d.threads[t].join(d.locks[lock])
}

// ReleaseShared records t releasing a read hold of lock. The next
// exclusive holder synchronizes with it.
func (d *Detector) ReleaseShared(t Thread, lock string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.shared[lock]
	s.join(d.clock(t))
	d.shared[lock] = s
	d.threads[t].tick(t)
}

// Read records t reading v.
func (d *Detector) Read(t Thread, v string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.clock(t)
	vs := d.variable(v)
	if vs.written && vs.write.t != t && vs.write.c > c.get(vs.write.t) {
		d.report(Race{Kind: WriteRead, Var: v, First: vs.write.t, Second: t})
	}
	if vs.reads == nil {
		vs.reads = make(map[Thread]uint64)
	}
	vs.reads[t] = c.get(t)
}

// Write records t writing v.
func (d *Detector) Write(t Thread, v string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.clock(t)
	vs := d.variable(v)
	if vs.written && vs.write.t != t && vs.write.c > c.get(vs.write.t) {
		d.report(Race{Kind: WriteWrite, Var: v, First: vs.write.t, Second: t})
	}
	readers := make([]Thread, 0, len(vs.reads))
	for u := range vs.reads {
		readers = append(readers, u)
	}
	slices.Sort(readers)
	for _, u := range readers {
		if u != t && vs.reads[u] > c.get(u) {
			d.report(Race{Kind: ReadWrite, Var: v, First: u, Second: t})
		}
	}
	vs.write = epoch{t: t, c: c.get(t)}
	vs.written = true
	clear(vs.reads)
}

// Races returns the races found so far, each (kind, variable, thread pair)
// once, in detection order.
func (d *Detector) Races() []Race {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.races)
}

func (d *Detector) report(r Race) {
	if _, ok := d.seen[r]; ok {
		return
	}
	d.seen[r] = struct{}{}
	d.races = append(d.races, r)
	d.logger.Warn("data race",
		zap.Stringer("kind", r.Kind),
		zap.String("var", r.Var),
		zap.Int("first", int(r.First)),
		zap.Int("second", int(r.Second)),
	)
}

func (d *Detector) clock(t Thread) vclock {
	if t < 0 || int(t) >= len(d.threads) {
		panic(fmt.Sprintf("racecheck: unknown thread %d", t))
	}
	return d.threads[t]
}

func (d *Detector) variable(v string) *varState {
	vs, ok := d.vars[v]
	if !ok {
		vs = &varState{}
		d.vars[v] = vs
	}
	return vs
}
