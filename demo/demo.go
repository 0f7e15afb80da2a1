// Package demo is the catalogue of parallel-programming demonstrations.
//
// Each Demo exercises one primitive or failure mode on a team of workers,
// checks its own result and reports named measurements. Demos share no
// state: everything a run needs arrives in its Env.
package demo

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/llxisdsh/parlab/diag"
	"github.com/llxisdsh/parlab/team"
)

// ErrUnknownDemo is returned for a demo name that is not registered.
var ErrUnknownDemo = errors.New("demo: unknown demo")

// ErrCheckFailed is returned when a demo's result fails its own check.
var ErrCheckFailed = errors.New("demo: result check failed")

// Category groups related demos.
type Category string

const (
	CategoryReduction  Category = "reduction"
	CategoryCritical   Category = "critical"
	CategoryLocks      Category = "locks"
	CategoryBarrier    Category = "barrier"
	CategoryConstructs Category = "constructs"
	CategoryMemory     Category = "memory"
	CategoryNesting    Category = "nesting"
	CategoryDebugging  Category = "debugging"
)

var categoryOrder = []Category{
	CategoryReduction,
	CategoryCritical,
	CategoryLocks,
	CategoryBarrier,
	CategoryConstructs,
	CategoryMemory,
	CategoryNesting,
	CategoryDebugging,
}

// Env is everything a demo run may use.
type Env struct {
	// Threads is the team size.
	Threads int
	// Iterations scales the problem size.
	Iterations int
	Logger     *zap.Logger
	Clock      clockwork.Clock
	// Metrics is optional.
	Metrics *diag.Metrics
	// Team holds options for every team the demo forks.
	Team []team.Option
}

func (e Env) withDefaults() Env {
	if e.Threads <= 0 {
		e.Threads = runtime.GOMAXPROCS(0)
	}
	if e.Iterations <= 0 {
		e.Iterations = 100_000
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Clock == nil {
		e.Clock = clockwork.NewRealClock()
	}
	return e
}

func (e Env) run(ctx context.Context, body func(w *team.Worker) error, opts ...team.Option) error {
	return team.Run(ctx, e.Threads, body, append(slices.Clip(e.Team), opts...)...)
}

// timed runs fn and returns how long it took on the env clock.
func (e Env) timed(fn func() error) (time.Duration, error) {
	start := e.Clock.Now()
	err := fn()
	return e.Clock.Since(start), err
}

// Metric is one named measurement.
type Metric struct {
	Name  string
	Value float64
	Unit  string
}

// Result is the outcome of one demo run.
type Result struct {
	Demo    string
	Elapsed time.Duration
	Metrics []Metric
}

func (r *Result) add(name string, value float64, unit string) {
	r.Metrics = append(r.Metrics, Metric{Name: name, Value: value, Unit: unit})
}

func (r *Result) addDuration(name string, d time.Duration) {
	r.add(name, float64(d.Nanoseconds()), "ns")
}

// Metric returns the value of the named metric.
func (r Result) Metric(name string) (float64, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// Demo is one registered demonstration.
type Demo struct {
	Name     string
	Category Category
	Summary  string
	Run      func(ctx context.Context, env Env) (Result, error)
}

func def(name string, c Category, summary string, run func(context.Context, Env) (Result, error)) Demo {
	return Demo{
		Name:     name,
		Category: c,
		Summary:  summary,
		Run: func(ctx context.Context, env Env) (Result, error) {
			return run(ctx, env.withDefaults())
		},
	}
}

var registry = sync.OnceValue(func() []Demo {
	return []Demo{
		def("reduction", CategoryReduction, "numerical integration of pi with padded per-worker partial sums", runReduction),
		def("critical", CategoryCritical, "histogram updates under one critical section and under one per bucket", runCritical),
		def("atomic", CategoryCritical, "counter increments with atomics, critical sections and a split load/store", runAtomic),
		def("rwlock", CategoryLocks, "read-mostly table behind the reader-writer lock versus a mutex", runRWLock),
		def("ticket", CategoryLocks, "handoff order of a ticket lock versus a mutex", runTicket),
		def("barrier", CategoryBarrier, "phased Jacobi relaxation separated by team barriers", runBarrier),
		def("ordered", CategoryConstructs, "parallel computation with results emitted in loop order", runOrdered),
		def("master-single", CategoryConstructs, "one-time setup with single and master sections", runMasterSingle),
		def("flush", CategoryMemory, "flag-published handoff between a producer and a consumer", runFlush),
		def("nested", CategoryNesting, "nested teams with and without active nesting", runNested),
		def("race", CategoryDebugging, "happens-before race check of locked and unlocked counter models", runRace),
		def("false-sharing", CategoryDebugging, "packed versus cache-line padded per-worker counters", runFalseSharing),
		def("imbalance", CategoryDebugging, "triangular workload under static and dynamic schedules", runImbalance),
		def("oversync", CategoryDebugging, "locking every iteration versus once per worker", runOversync),
	}
})

// Registry returns every demo, grouped by category.
func Registry() []Demo {
	return slices.Clone(registry())
}

// Lookup returns the demo called name.
func Lookup(name string) (Demo, error) {
	for _, d := range registry() {
		if d.Name == name {
			return d, nil
		}
	}
	return Demo{}, fmt.Errorf("%w: %q", ErrUnknownDemo, name)
}

// Names returns the names of all demos in registry order.
func Names() []string {
	demos := registry()
	names := make([]string, len(demos))
	for i, d := range demos {
		names[i] = d.Name
	}
	return names
}

// ByCategory returns the demos of category c.
func ByCategory(c Category) []Demo {
	var out []Demo
	for _, d := range registry() {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

// Categories returns the categories in display order.
func Categories() []Category {
	return slices.Clone(categoryOrder)
}

// Run runs the named demos in order, or every demo when names is empty. It
// stops at the first failure and returns the results gathered so far.
func Run(ctx context.Context, env Env, names ...string) ([]Result, error) {
	env = env.withDefaults()
	if len(names) == 0 {
		names = Names()
	}

	demos := make([]Demo, 0, len(names))
	for _, name := range names {
		d, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		demos = append(demos, d)
	}

	results := make([]Result, 0, len(demos))
	for _, d := range demos {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		log := env.Logger.With(zap.String("demo", d.Name))
		log.Debug("starting", zap.String("category", string(d.Category)))

		start := env.Clock.Now()
		res, err := d.Run(ctx, Env{
			Threads:    env.Threads,
			Iterations: env.Iterations,
			Logger:     log,
			Clock:      env.Clock,
			Metrics:    env.Metrics,
			Team:       env.Team,
		})
		if err != nil {
			return results, fmt.Errorf("demo %s: %w", d.Name, err)
		}
		res.Demo = d.Name
		res.Elapsed = env.Clock.Since(start)
		results = append(results, res)

		fields := []zap.Field{zap.Duration("elapsed", res.Elapsed)}
		for _, m := range res.Metrics {
			fields = append(fields, zap.Float64(m.Name, m.Value))
		}
		log.Info("finished", fields...)
	}
	return results, nil
}
