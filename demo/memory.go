package demo

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/llxisdsh/parlab/team"
)

var errNeedTwoWorkers = errors.New("needs a team of at least two workers")

// runFlush hands a payload from a producer to a consumer through plain
// memory. The payload is published by an atomic store of the round number
// and observed by an atomic load, which orders the plain writes before the
// plain reads.
func runFlush(ctx context.Context, env Env) (Result, error) {
	var res Result
	rounds := max(env.Iterations/100, 1)

	var payload [8]int
	var ready, ack atomic.Int64
	var mismatches int

	d, err := env.timed(func() error {
		return team.Run(ctx, 2, func(w *team.Worker) error {
			if w.NumWorkers() < 2 {
				return errNeedTwoWorkers
			}
			switch w.ID() {
			case 0:
				for r := 1; r <= rounds; r++ {
					for i := range payload {
						payload[i] = r*10 + i
					}
					ready.Store(int64(r))
					for ack.Load() != int64(r) {
						runtime.Gosched()
					}
				}
			case 1:
				for r := 1; r <= rounds; r++ {
					for ready.Load() != int64(r) {
						runtime.Gosched()
					}
					for i, v := range payload {
						if v != r*10+i {
							mismatches++
						}
					}
					ack.Store(int64(r))
				}
			}
			return nil
		}, env.Team...)
	})
	if err != nil {
		return res, err
	}

	res.add("rounds", float64(rounds), "")
	res.addDuration("roundtrip_ns", d/time.Duration(rounds))
	res.add("mismatches", float64(mismatches), "")
	if mismatches != 0 {
		return res, fmt.Errorf("%w: consumer saw %d unpublished values", ErrCheckFailed, mismatches)
	}
	return res, nil
}

type teamShape struct {
	level  int
	active int
	size   int
}

func nestedShapes(ctx context.Context, env Env, outer, inner int, opts ...team.Option) ([]teamShape, error) {
	shapes := make([]teamShape, 0, outer*inner)
	err := team.Run(ctx, outer, func(w *team.Worker) error {
		return w.Parallel(inner, func(iw *team.Worker) error {
			iw.Critical("shapes", func() {
				shapes = append(shapes, teamShape{level: iw.Level(), active: iw.ActiveLevel(), size: iw.NumWorkers()})
			})
			return nil
		})
	}, append(slices.Clip(env.Team), opts...)...)
	return shapes, err
}

func runNested(ctx context.Context, env Env) (Result, error) {
	var res Result
	outer := max(min(env.Threads, 4), 2)
	const inner = 2

	active, err := nestedShapes(ctx, env, outer, inner, team.WithMaxActiveLevels(2))
	if err != nil {
		return res, err
	}
	serial, err := nestedShapes(ctx, env, outer, inner, team.WithMaxActiveLevels(1))
	if err != nil {
		return res, err
	}

	maxActive := 0
	for _, s := range active {
		maxActive = max(maxActive, s.active)
	}
	for _, s := range serial {
		if s.size != 1 || s.level != 2 {
			return res, fmt.Errorf("%w: serialized nested team of %d at level %d", ErrCheckFailed, s.size, s.level)
		}
	}

	env.Logger.Debug("nested teams", zap.Int("outer", outer), zap.Int("inner_workers", len(active)))
	res.add("outer_workers", float64(outer), "")
	res.add("inner_workers", float64(len(active)), "")
	res.add("inner_workers_serialized", float64(len(serial)), "")
	res.add("max_active_level", float64(maxActive), "")

	if len(active) < len(serial) {
		return res, fmt.Errorf("%w: active nesting ran %d inner workers, serialized %d", ErrCheckFailed, len(active), len(serial))
	}
	return res, nil
}
