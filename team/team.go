// Package team is a fork-join runtime for shared-memory parallel regions.
//
// Run forks a team of workers, runs the same body on each of them and joins
// them before returning. Inside the body the *Worker handle gives access to
// the team constructs: barriers, master and single sections, named critical
// sections, work-sharing loops with ordered regions, and nested regions.
//
// Every worker of a team must encounter the same sequence of team-wide
// constructs (Barrier, Single, For, Reduce). A worker that fails, by
// returning an error or panicking, aborts its team: teammates blocked in a
// construct are released and unwound, and Run returns the first error.
//
// Example:
//
//	sum := team.NewReducer(4, team.Sum[int]())
//	err := team.Run(ctx, 4, func(w *team.Worker) error {
//		w.For(0, len(xs), func(i int) {
//			sum.Add(w.ID(), xs[i])
//		}, team.Dynamic(64))
//		return nil
//	})
package team

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/llxisdsh/pb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/llxisdsh/parlab"
)

// ErrWorkerPanic is wrapped by the error Run returns when a worker panics.
var ErrWorkerPanic = errors.New("team: worker panicked")

// errAborted unwinds workers of a team that a teammate has aborted.
var errAborted = errors.New("team: aborted by teammate")

// runtimeState is shared by the outermost team and every team nested in it.
type runtimeState struct {
	cfg      config
	logger   *zap.Logger
	critical parlab.CriticalGroup[string]
	// threads is nil when the thread limit is unlimited.
	threads *semaphore.Weighted
}

// region is one team: the workers forked by a single Run or Parallel call.
type region struct {
	rt     *runtimeState
	size   int
	level  int
	active int

	start      parlab.Latch
	barrier    *parlab.Barrier
	constructs pb.MapOf[uint64, *construct]
	aborted    atomic.Bool
}

// Worker is a member of a team. It is only valid inside the body it was
// passed to and must not be shared with other goroutines.
type Worker struct {
	r   *region
	id  int
	ctx context.Context

	// seq numbers the team-wide constructs this worker has encountered.
	seq  uint64
	loop *loopState
}

// Run executes body on a team of n workers and waits for all of them.
// n <= 0 means runtime.GOMAXPROCS(0). The team may be smaller than n when a
// thread limit is configured.
//
// It returns the first non-nil error returned by a worker. A panicking
// worker is reported as an error wrapping ErrWorkerPanic.
func Run(ctx context.Context, n int, body func(w *Worker) error, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	rt := &runtimeState{cfg: cfg, logger: cfg.logger}
	if cfg.threadLimit > 0 {
		rt.threads = semaphore.NewWeighted(int64(cfg.threadLimit))
	}
	return rt.fork(ctx, n, nil, body)
}

// Parallel runs body on a nested team of n workers, with w as the master of
// the new team. Nesting past the configured maximum of active levels, or
// past the thread limit, shrinks the nested team, down to w alone.
func (w *Worker) Parallel(n int, body func(w *Worker) error) error {
	return w.r.rt.fork(w.ctx, n, w, body)
}

func (rt *runtimeState) fork(ctx context.Context, n int, parent *Worker, body func(w *Worker) error) error {
	requested := n
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	level, active := 1, 0
	if parent != nil {
		level = parent.r.level + 1
		active = parent.r.active
	}
	if active >= rt.cfg.maxActiveLevels {
		n = 1
	}

	// The encountering worker of a nested region becomes its master, so a
	// nested team only reserves the extra goroutines.
	reserved := 0
	if parent == nil {
		reserved = rt.reserve(n)
		n = max(reserved, 1)
	} else if n > 1 {
		reserved = rt.reserve(n - 1)
		n = reserved + 1
	}
	defer rt.release(reserved)

	if n > 1 {
		active++
	}
	r := &region{
		rt:      rt,
		size:    n,
		level:   level,
		active:  active,
		barrier: parlab.NewBarrier(n),
	}

	var cpus []int
	if parent == nil {
		cpus = placement(rt.cfg.procBind, n, availableCPUs())
	}

	rt.logger.Debug("fork",
		zap.Int("level", level),
		zap.Int("active_level", active),
		zap.Int("requested", requested),
		zap.Int("workers", n),
		zap.Stringer("proc_bind", rt.cfg.procBind),
	)

	g, gctx := errgroup.WithContext(ctx)
	for id := range n {
		w := &Worker{r: r, id: id, ctx: gctx}
		cpu := -1
		if cpus != nil {
			cpu = cpus[id]
		}
		g.Go(func() error {
			return r.work(w, cpu, body)
		})
	}
	// Hold the line until every worker is parked on it.
	for r.start.Waiting() < n {
		runtime.Gosched()
	}
	rt.logger.Debug("start", zap.Int("level", level), zap.Int("parked", r.start.Waiting()))
	r.start.Open()

	err := g.Wait()
	if err != nil {
		rt.logger.Debug("join", zap.Int("level", level), zap.Error(err))
	}
	return err
}

func (r *region) work(w *Worker, cpu int, body func(w *Worker) error) (err error) {
	if cpu >= 0 {
		if perr := pinThread(cpu); perr != nil {
			r.rt.logger.Warn("pin worker thread",
				zap.Int("worker", w.id),
				zap.Int("cpu", cpu),
				zap.Error(perr),
			)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			if p == errAborted {
				err = nil
				return
			}
			r.rt.logger.Error("worker panicked",
				zap.Int("worker", w.id),
				zap.Int("level", r.level),
				zap.Any("panic", p),
				zap.StackSkip("stack", 2),
			)
			err = fmt.Errorf("%w: worker %d at level %d: %v", ErrWorkerPanic, w.id, r.level, p)
		}
		if err != nil {
			r.abort()
		}
	}()

	r.start.Wait()
	return body(w)
}

// abort releases every worker blocked in a team construct. Released
// workers unwind with errAborted.
func (r *region) abort() {
	if !r.aborted.CompareAndSwap(false, true) {
		return
	}
	r.barrier.Break()
	r.constructs.Range(func(_ uint64, c *construct) bool {
		c.turn.Add(1 << 62)
		return true
	})
}

func (r *region) checkAborted() {
	if r.aborted.Load() {
		panic(errAborted)
	}
}

func (rt *runtimeState) reserve(want int) int {
	if rt.threads == nil {
		return want
	}
	for k := want; k > 0; k-- {
		if rt.threads.TryAcquire(int64(k)) {
			return k
		}
	}
	return 0
}

func (rt *runtimeState) release(n int) {
	if rt.threads != nil && n > 0 {
		rt.threads.Release(int64(n))
	}
}

// ID returns the worker's index in its team. The master is 0.
func (w *Worker) ID() int { return w.id }

// NumWorkers returns the size of the worker's team.
func (w *Worker) NumWorkers() int { return w.r.size }

// Level returns the nesting depth of the worker's team; the outermost team
// is level 1.
func (w *Worker) Level() int { return w.r.level }

// ActiveLevel returns the number of enclosing teams, this one included,
// that have more than one worker.
func (w *Worker) ActiveLevel() int { return w.r.active }

// IsMaster reports whether the worker is the team master.
func (w *Worker) IsMaster() bool { return w.id == 0 }

// Context returns the team context. It is canceled when any teammate fails
// or when the context passed to Run is canceled.
func (w *Worker) Context() context.Context { return w.ctx }
