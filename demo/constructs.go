package demo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/llxisdsh/parlab/team"
)

const jacobiPhases = 50

func jacobiStep(src, dst []float64, i int) {
	dst[i] = (src[i-1] + src[i+1]) / 2
}

func jacobiInit(m int) [2][]float64 {
	var bufs [2][]float64
	for k := range bufs {
		bufs[k] = make([]float64, m)
		bufs[k][0] = 1
	}
	return bufs
}

// runBarrier relaxes a 1-D heat equation. Each phase reads the previous
// phase's buffer, so a barrier must separate them.
func runBarrier(ctx context.Context, env Env) (Result, error) {
	var res Result
	m := max(env.Iterations/100, 64)

	want := jacobiInit(m)
	seqTime, _ := env.timed(func() error {
		for p := range jacobiPhases {
			src, dst := want[p%2], want[1-p%2]
			for i := 1; i < m-1; i++ {
				jacobiStep(src, dst, i)
			}
		}
		return nil
	})

	got := jacobiInit(m)
	var barriers atomic.Int64
	parTime, err := env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			for p := range jacobiPhases {
				src, dst := got[p%2], got[1-p%2]
				w.For(1, m-1, func(i int) { jacobiStep(src, dst, i) }, team.NoWait())
				w.Barrier()
				w.Master(func() { barriers.Add(1) })
			}
			return nil
		})
	})
	if err != nil {
		return res, err
	}

	res.add("cells", float64(m), "")
	res.add("phases", jacobiPhases, "")
	res.addDuration("sequential_ns", seqTime)
	res.addDuration("parallel_ns", parTime)
	res.addDuration("phase_ns", parTime/jacobiPhases)

	final := jacobiPhases % 2
	for i := range m {
		if got[final][i] != want[final][i] {
			return res, fmt.Errorf("%w: cell %d = %v, want %v", ErrCheckFailed, i, got[final][i], want[final][i])
		}
	}
	if barriers.Load() != jacobiPhases {
		return res, fmt.Errorf("%w: %d barrier phases, want %d", ErrCheckFailed, barriers.Load(), jacobiPhases)
	}
	return res, nil
}

// collatz returns the number of Collatz steps from n to 1, an irregular
// amount of work per index.
func collatz(n int) int {
	steps := 0
	for n > 1 {
		if n%2 == 0 {
			n /= 2
		} else {
			n = 3*n + 1
		}
		steps++
	}
	return steps
}

func runOrdered(ctx context.Context, env Env) (Result, error) {
	var res Result
	n := min(env.Iterations, 100_000)

	out := make([]int, 0, n)
	orderedTime, err := env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			w.For(0, n, func(i int) {
				v := collatz(i + 1)
				w.Ordered(func() { out = append(out, v) })
			}, team.Dynamic(16), team.Ordered())
			return nil
		})
	})
	if err != nil {
		return res, err
	}

	unordered := make([]int, n)
	unorderedTime, err := env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			w.For(0, n, func(i int) { unordered[i] = collatz(i + 1) }, team.Dynamic(16))
			return nil
		})
	})
	if err != nil {
		return res, err
	}

	res.add("items", float64(n), "")
	res.addDuration("ordered_ns", orderedTime)
	res.addDuration("unordered_ns", unorderedTime)

	if len(out) != n {
		return res, fmt.Errorf("%w: %d ordered results, want %d", ErrCheckFailed, len(out), n)
	}
	for i := range out {
		if out[i] != unordered[i] {
			return res, fmt.Errorf("%w: position %d holds %d, want %d", ErrCheckFailed, i, out[i], unordered[i])
		}
	}
	return res, nil
}

const masterSingleRounds = 10

func runMasterSingle(ctx context.Context, env Env) (Result, error) {
	var res Result
	size := max(env.Iterations/masterSingleRounds, 1)

	var singleRuns, masterRuns, singleByMaster, stale atomic.Int64
	var shared []int
	err := env.run(ctx, func(w *team.Worker) error {
		for round := range masterSingleRounds {
			w.Single(func() {
				singleRuns.Add(1)
				if w.IsMaster() {
					singleByMaster.Add(1)
				}
				shared = make([]int, size)
				for i := range shared {
					shared[i] = round
				}
			})

			// Single's implied barrier publishes the buffer to everyone.
			w.For(0, size, func(i int) {
				if shared[i] != round {
					stale.Add(1)
				}
			})

			w.Master(func() { masterRuns.Add(1) })
			w.Barrier()
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	res.add("rounds", masterSingleRounds, "")
	res.add("single_runs", float64(singleRuns.Load()), "")
	res.add("single_won_by_master", float64(singleByMaster.Load()), "")
	res.add("master_runs", float64(masterRuns.Load()), "")

	if singleRuns.Load() != masterSingleRounds || masterRuns.Load() != masterSingleRounds {
		return res, fmt.Errorf("%w: single ran %d times, master %d, want %d each",
			ErrCheckFailed, singleRuns.Load(), masterRuns.Load(), masterSingleRounds)
	}
	if stale.Load() != 0 {
		return res, fmt.Errorf("%w: %d stale reads after single", ErrCheckFailed, stale.Load())
	}
	return res, nil
}
