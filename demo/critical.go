package demo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/llxisdsh/parlab/team"
)

const histogramBuckets = 16

// bucketOf scatters i over the histogram with a multiplicative hash.
func bucketOf(i int) int {
	return int((uint64(i) * 0x9e3779b97f4a7c15 >> 32) % histogramBuckets)
}

func runCritical(ctx context.Context, env Env) (Result, error) {
	var res Result
	n := env.Iterations

	var want [histogramBuckets]int
	for i := range n {
		want[bucketOf(i)]++
	}

	var single [histogramBuckets]int
	d, err := env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			w.For(0, n, func(i int) {
				b := bucketOf(i)
				w.Critical("histogram", func() { single[b]++ })
			})
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	res.addDuration("single_section_ns", d)

	names := make([]string, histogramBuckets)
	for b := range names {
		names[b] = fmt.Sprintf("histogram-%d", b)
	}
	var perBucket [histogramBuckets]int
	d, err = env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			w.For(0, n, func(i int) {
				b := bucketOf(i)
				w.Critical(names[b], func() { perBucket[b]++ })
			})
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	res.addDuration("per_bucket_ns", d)
	res.add("buckets", histogramBuckets, "")
	res.add("updates", float64(n), "")

	if single != want || perBucket != want {
		return res, fmt.Errorf("%w: histogram mismatch", ErrCheckFailed)
	}
	return res, nil
}

// runAtomic counts to n three ways. The split variant performs an atomic
// load and a separate atomic store, so concurrent increments overwrite each
// other without being a data race.
func runAtomic(ctx context.Context, env Env) (Result, error) {
	var res Result
	n := env.Iterations

	var atomicCount atomic.Int64
	d, err := env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			w.For(0, n, func(int) { atomicCount.Add(1) })
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	res.addDuration("atomic_ns", d)

	criticalCount := 0
	d, err = env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			w.For(0, n, func(int) {
				w.Critical("counter", func() { criticalCount++ })
			})
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	res.addDuration("critical_ns", d)

	var split atomic.Int64
	err = env.run(ctx, func(w *team.Worker) error {
		w.For(0, n, func(int) {
			split.Store(split.Load() + 1)
		}, team.StaticChunk(1))
		return nil
	})
	if err != nil {
		return res, err
	}

	res.add("expected", float64(n), "")
	res.add("atomic_count", float64(atomicCount.Load()), "")
	res.add("critical_count", float64(criticalCount), "")
	res.add("split_count", float64(split.Load()), "")
	res.add("lost_updates", float64(int64(n)-split.Load()), "")

	if atomicCount.Load() != int64(n) || criticalCount != n {
		return res, fmt.Errorf("%w: atomic=%d critical=%d want %d", ErrCheckFailed, atomicCount.Load(), criticalCount, n)
	}
	if got := split.Load(); got > int64(n) || got < 1 {
		return res, fmt.Errorf("%w: split count %d outside [1, %d]", ErrCheckFailed, got, n)
	}
	return res, nil
}

