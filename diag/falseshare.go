package diag

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/llxisdsh/parlab"
	"github.com/llxisdsh/parlab/team"
)

// FalseSharing times per-worker counters laid out two ways: packed next to
// each other, so several share a cache line, and padded to a cache line
// each.
type FalseSharing struct {
	Workers    int
	Iterations int
	Clock      clockwork.Clock
	Options    []team.Option
}

// FalseSharingResult holds the two timings.
type FalseSharingResult struct {
	Workers    int
	Iterations int
	Packed     time.Duration
	Padded     time.Duration
}

// Slowdown returns Packed/Padded. Values well above 1 mean the packed
// layout paid for cache line ping-pong.
func (r FalseSharingResult) Slowdown() float64 {
	if r.Padded <= 0 {
		return 0
	}
	return float64(r.Packed) / float64(r.Padded)
}

// MeasureFalseSharing runs the measurement with the real clock.
func MeasureFalseSharing(ctx context.Context, workers, iters int) (FalseSharingResult, error) {
	return FalseSharing{Workers: workers, Iterations: iters}.Measure(ctx)
}

// Measure runs both layouts on teams of f.Workers workers, each worker
// incrementing its own counter f.Iterations times.
func (f FalseSharing) Measure(ctx context.Context) (FalseSharingResult, error) {
	clock := f.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	workers := f.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	res := FalseSharingResult{Workers: workers, Iterations: f.Iterations}

	packed := make([]int64, workers)
	start := clock.Now()
	err := team.Run(ctx, workers, func(w *team.Worker) error {
		c := &packed[w.ID()]
		for range f.Iterations {
			atomic.AddInt64(c, 1)
		}
		return nil
	}, f.Options...)
	if err != nil {
		return res, err
	}
	res.Packed = clock.Since(start)

	padded := make([]parlab.Padded[int64], workers)
	start = clock.Now()
	err = team.Run(ctx, workers, func(w *team.Worker) error {
		c := &padded[w.ID()].V
		for range f.Iterations {
			atomic.AddInt64(c, 1)
		}
		return nil
	}, f.Options...)
	if err != nil {
		return res, err
	}
	res.Padded = clock.Since(start)

	return res, nil
}
