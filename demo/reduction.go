package demo

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/llxisdsh/parlab/team"
)

// piTerm is the midpoint-rule term of the integral of 4/(1+x^2) over [0, 1].
func piTerm(i, steps int) float64 {
	x := (float64(i) + 0.5) / float64(steps)
	return 4 / (1 + x*x)
}

// runReduction integrates pi three ways: padded per-worker partials, one
// critical section per worker, and an atomic add per iteration.
func runReduction(ctx context.Context, env Env) (Result, error) {
	var res Result
	steps := env.Iterations
	width := 1 / float64(steps)

	var reduced float64
	d, err := env.timed(func() error {
		sum, err := team.ReduceRange(ctx, env.Threads, 0, steps, team.Sum[float64](),
			func(i int) float64 { return piTerm(i, steps) }, nil, env.Team...)
		reduced = sum * width
		return err
	})
	if err != nil {
		return res, err
	}
	res.addDuration("reducer_ns", d)

	var critical float64
	d, err = env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			local := 0.0
			w.For(0, steps, func(i int) { local += piTerm(i, steps) })
			w.Critical("pi", func() { critical += local })
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	critical *= width
	res.addDuration("critical_ns", d)

	var bits atomic.Uint64
	d, err = env.timed(func() error {
		return env.run(ctx, func(w *team.Worker) error {
			w.For(0, steps, func(i int) {
				term := piTerm(i, steps)
				for {
					old := bits.Load()
					if bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+term)) {
						return
					}
				}
			})
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	atomicPi := math.Float64frombits(bits.Load()) * width
	res.addDuration("atomic_ns", d)

	res.add("pi", reduced, "")
	res.add("abs_error", math.Abs(reduced-math.Pi), "")

	env.Logger.Debug("pi estimates",
		zap.Float64("reducer", reduced),
		zap.Float64("critical", critical),
		zap.Float64("atomic", atomicPi),
	)
	// Midpoint rule error bound for this integrand plus rounding slack.
	tol := 1/(3*float64(steps)*float64(steps)) + 1e-9
	for name, v := range map[string]float64{"reducer": reduced, "critical": critical, "atomic": atomicPi} {
		if math.Abs(v-math.Pi) > tol {
			return res, fmt.Errorf("%w: %s estimate %v", ErrCheckFailed, name, v)
		}
	}
	return res, nil
}
