package demo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/llxisdsh/parlab"
	"github.com/llxisdsh/parlab/diag"
	"github.com/llxisdsh/parlab/team"
)

const tableWidth = 64

// rwTable is a table whose cells are always rewritten together, so a reader
// that sees two different cells has observed a torn write.
type rwTable struct {
	cells [tableWidth]int
}

func (t *rwTable) write(tag int) {
	for i := range t.cells {
		t.cells[i] = tag
	}
}

func (t *rwTable) consistent() bool {
	for _, v := range t.cells[1:] {
		if v != t.cells[0] {
			return false
		}
	}
	return true
}

// readMostly runs n operations, one in ten a write, against table under
// the given lock functions. It returns the number of torn reads.
func readMostly(ctx context.Context, env Env, n int, rlock, runlock func(), wlock sync.Locker) (int64, error) {
	var table rwTable
	var torn atomic.Int64
	err := env.run(ctx, func(w *team.Worker) error {
		w.For(0, n, func(i int) {
			if i%10 == 0 {
				wlock.Lock()
				table.write(i)
				wlock.Unlock()
				return
			}
			rlock()
			if !table.consistent() {
				torn.Add(1)
			}
			runlock()
		}, team.StaticChunk(64))
		return nil
	})
	return torn.Load(), err
}

func runRWLock(ctx context.Context, env Env) (Result, error) {
	var res Result
	n := env.Iterations

	var rw parlab.RWLock
	writer := diag.NewLock("rwlock", &rw, diag.WithClock(env.Clock), diag.WithMetrics(env.Metrics))
	var tornRW int64
	rwTime, err := env.timed(func() error {
		var err error
		tornRW, err = readMostly(ctx, env, n, rw.RLock, rw.RUnlock, writer)
		return err
	})
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	var tornMu int64
	muTime, err := env.timed(func() error {
		var err error
		tornMu, err = readMostly(ctx, env, n, mu.Lock, mu.Unlock, &mu)
		return err
	})
	if err != nil {
		return res, err
	}

	st := writer.Stats()
	res.addDuration("rwlock_ns", rwTime)
	res.addDuration("mutex_ns", muTime)
	if rwTime > 0 {
		res.add("speedup", float64(muTime)/float64(rwTime), "x")
	}
	res.add("writes", float64(st.Acquisitions), "")
	res.add("write_contention", st.ContentionRate(), "")
	res.add("torn_reads", float64(tornRW+tornMu), "")

	env.Logger.Debug("writer lock", zap.Uint64("contended", st.Contended), zap.Duration("wait", st.Wait))
	if tornRW+tornMu != 0 {
		return res, fmt.Errorf("%w: %d torn reads", ErrCheckFailed, tornRW+tornMu)
	}
	if want := uint64((n + 9) / 10); st.Acquisitions != want {
		return res, fmt.Errorf("%w: %d writes, want %d", ErrCheckFailed, st.Acquisitions, want)
	}
	return res, nil
}

// maxStreak returns the longest run of consecutive equal owners.
func maxStreak(owners []int) int {
	best, run := 0, 0
	for i, o := range owners {
		if i > 0 && o == owners[i-1] {
			run++
		} else {
			run = 1
		}
		best = max(best, run)
	}
	return best
}

// handoffOrder has every worker take mu k times and records who held it,
// in acquisition order.
func handoffOrder(ctx context.Context, env Env, k int, mu sync.Locker) ([]int, int, error) {
	owners := make([]int, 0, env.Threads*k)
	var size atomic.Int32
	err := env.run(ctx, func(w *team.Worker) error {
		w.Master(func() { size.Store(int32(w.NumWorkers())) })
		for range k {
			mu.Lock()
			owners = append(owners, w.ID())
			mu.Unlock()
		}
		return nil
	})
	return owners, int(size.Load()), err
}

func runTicket(ctx context.Context, env Env) (Result, error) {
	var res Result
	k := max(1, min(env.Iterations/env.Threads, 10_000))

	var ticket parlab.TicketLock
	var ticketOwners []int
	var workers int
	ticketTime, err := env.timed(func() error {
		var err error
		ticketOwners, workers, err = handoffOrder(ctx, env, k, &ticket)
		return err
	})
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	var mutexOwners []int
	mutexTime, err := env.timed(func() error {
		var err error
		mutexOwners, _, err = handoffOrder(ctx, env, k, &mu)
		return err
	})
	if err != nil {
		return res, err
	}

	res.addDuration("ticket_ns", ticketTime)
	res.addDuration("mutex_ns", mutexTime)
	res.add("acquisitions", float64(len(ticketOwners)), "")
	res.add("ticket_max_streak", float64(maxStreak(ticketOwners)), "")
	res.add("mutex_max_streak", float64(maxStreak(mutexOwners)), "")

	want := workers * k
	if len(ticketOwners) != want || len(mutexOwners) != want {
		return res, fmt.Errorf("%w: %d and %d acquisitions, want %d", ErrCheckFailed, len(ticketOwners), len(mutexOwners), want)
	}
	return res, nil
}
