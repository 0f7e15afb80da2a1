package demo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/llxisdsh/parlab"
	"github.com/llxisdsh/parlab/diag"
	"github.com/llxisdsh/parlab/racecheck"
	"github.com/llxisdsh/parlab/team"
)

const raceOps = 4

// raceModel drives one detector thread per worker through a counter update
// protocol and returns the races the detector found.
func raceModel(ctx context.Context, env Env, update func(w *team.Worker, d *racecheck.Detector, t racecheck.Thread)) ([]racecheck.Race, error) {
	d := racecheck.New(racecheck.WithLogger(env.Logger.Named("racecheck")))
	d.Write(racecheck.Main, "counter")

	threads := make([]racecheck.Thread, env.Threads)
	for i := range threads {
		threads[i] = d.Fork(racecheck.Main)
	}
	err := env.run(ctx, func(w *team.Worker) error {
		for range raceOps {
			update(w, d, threads[w.ID()])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, t := range threads {
		d.Join(racecheck.Main, t)
	}
	d.Read(racecheck.Main, "counter")
	return d.Races(), nil
}

// runRace checks three models of a shared counter. Only the events are
// reported for the unsynchronized model; the counter itself is never
// touched without a lock.
func runRace(ctx context.Context, env Env) (Result, error) {
	var res Result
	var workers atomic.Int32

	unsync, err := raceModel(ctx, env, func(w *team.Worker, d *racecheck.Detector, t racecheck.Thread) {
		workers.Store(int32(w.NumWorkers()))
		d.Read(t, "counter")
		d.Write(t, "counter")
	})
	if err != nil {
		return res, err
	}

	counter := 0
	locked, err := raceModel(ctx, env, func(w *team.Worker, d *racecheck.Detector, t racecheck.Thread) {
		w.Critical("counter", func() {
			d.Acquire(t, "counter")
			d.Read(t, "counter")
			counter++
			d.Write(t, "counter")
			d.Release(t, "counter")
		})
	})
	if err != nil {
		return res, err
	}

	var rw parlab.RWLock
	rwModel, err := raceModel(ctx, env, func(w *team.Worker, d *racecheck.Detector, t racecheck.Thread) {
		if w.IsMaster() {
			rw.Lock()
			d.Acquire(t, "counter")
			counter++
			d.Write(t, "counter")
			d.Release(t, "counter")
			rw.Unlock()
			return
		}
		rw.RLock()
		d.AcquireShared(t, "counter")
		d.Read(t, "counter")
		d.ReleaseShared(t, "counter")
		rw.RUnlock()
	})
	if err != nil {
		return res, err
	}

	for _, r := range unsync {
		env.Logger.Debug("unsynchronized model", zap.Stringer("race", r))
	}
	res.add("unsynchronized_races", float64(len(unsync)), "")
	res.add("locked_races", float64(len(locked)), "")
	res.add("rwlock_races", float64(len(rwModel)), "")

	switch {
	case len(locked) != 0:
		return res, fmt.Errorf("%w: locked model reported %v", ErrCheckFailed, locked[0])
	case len(rwModel) != 0:
		return res, fmt.Errorf("%w: reader-writer model reported %v", ErrCheckFailed, rwModel[0])
	case workers.Load() > 1 && len(unsync) == 0:
		return res, fmt.Errorf("%w: unsynchronized model reported no race", ErrCheckFailed)
	}
	return res, nil
}

func runFalseSharing(ctx context.Context, env Env) (Result, error) {
	var res Result
	fs, err := diag.FalseSharing{
		Workers:    env.Threads,
		Iterations: env.Iterations,
		Clock:      env.Clock,
		Options:    env.Team,
	}.Measure(ctx)
	if err != nil {
		return res, err
	}
	res.addDuration("packed_ns", fs.Packed)
	res.addDuration("padded_ns", fs.Padded)
	res.add("slowdown", fs.Slowdown(), "x")
	return res, nil
}

// triangle does work proportional to i.
func triangle(i int) int64 {
	var s int64
	for j := range i {
		s += int64(j ^ i)
	}
	return s
}

// imbalanced runs the triangular workload under sched and returns its
// checksum and load profile.
func imbalanced(ctx context.Context, env Env, n int, sched team.ConstructOption) (int64, *diag.LoadProfile, error) {
	var sum atomic.Int64
	var profile *diag.LoadProfile
	err := env.run(ctx, func(w *team.Worker) error {
		w.Single(func() { profile = diag.NewLoadProfile(w.NumWorkers(), env.Clock) })

		stop := profile.Track(w.ID())
		var local int64
		w.For(0, n, func(i int) { local += triangle(i) }, sched, team.NoWait())
		stop()
		sum.Add(local)
		w.Barrier()
		return nil
	})
	return sum.Load(), profile, err
}

func runImbalance(ctx context.Context, env Env) (Result, error) {
	var res Result
	n := max(min(env.Iterations/25, 4000), 64)

	var want int64
	for i := range n {
		want += triangle(i)
	}

	for _, c := range []struct {
		name  string
		sched team.ConstructOption
	}{
		{"static", team.Static()},
		{"dynamic", team.Dynamic(8)},
	} {
		var sum int64
		var profile *diag.LoadProfile
		d, err := env.timed(func() error {
			var err error
			sum, profile, err = imbalanced(ctx, env, n, c.sched)
			return err
		})
		if err != nil {
			return res, err
		}
		if sum != want {
			return res, fmt.Errorf("%w: %s checksum %d, want %d", ErrCheckFailed, c.name, sum, want)
		}

		s := profile.Summary()
		env.Logger.Debug("load profile",
			zap.String("schedule", c.name),
			zap.Duration("min", s.Min),
			zap.Duration("max", s.Max),
			zap.Duration("mean", s.Mean),
		)
		if env.Metrics != nil {
			env.Metrics.ObserveImbalance("triangle-"+c.name, s.Imbalance)
		}
		res.addDuration(c.name+"_ns", d)
		res.add(c.name+"_imbalance", s.Imbalance, "x")
	}
	return res, nil
}

// runOversync sums [0, n) taking a lock every iteration, then again with a
// private partial sum per worker and one locked update at the end.
func runOversync(ctx context.Context, env Env) (Result, error) {
	var res Result
	n := env.Iterations
	want := int64(n) * int64(n-1) / 2

	var mu sync.Mutex
	lock := diag.NewLock("oversync-iteration", &mu, diag.WithClock(env.Clock), diag.WithMetrics(env.Metrics))
	var perIter int64
	d, err := env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			w.For(0, n, func(i int) {
				lock.Lock()
				perIter += int64(i)
				lock.Unlock()
			})
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	res.addDuration("per_iteration_ns", d)
	iterStats := lock.Stats()

	var ticket parlab.TicketLock
	once := diag.NewLock("oversync-worker", &ticket, diag.WithClock(env.Clock), diag.WithMetrics(env.Metrics))
	var perWorker int64
	d, err = env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			var local int64
			w.For(0, n, func(i int) { local += int64(i) }, team.NoWait())
			once.Lock()
			perWorker += local
			once.Unlock()
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	res.addDuration("per_worker_ns", d)
	workerStats := once.Stats()

	res.add("per_iteration_acquisitions", float64(iterStats.Acquisitions), "")
	res.add("per_iteration_contention", iterStats.ContentionRate(), "")
	res.add("per_worker_acquisitions", float64(workerStats.Acquisitions), "")

	switch {
	case perIter != want || perWorker != want:
		return res, fmt.Errorf("%w: sums %d and %d, want %d", ErrCheckFailed, perIter, perWorker, want)
	case iterStats.Acquisitions != uint64(n):
		return res, fmt.Errorf("%w: %d acquisitions for %d iterations", ErrCheckFailed, iterStats.Acquisitions, n)
	case workerStats.Acquisitions > uint64(env.Threads):
		return res, fmt.Errorf("%w: %d acquisitions for %d workers", ErrCheckFailed, workerStats.Acquisitions, env.Threads)
	}
	return res, nil
}
