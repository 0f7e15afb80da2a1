package team

import (
	"context"
	"runtime"

	"golang.org/x/exp/constraints"

	"github.com/llxisdsh/parlab"
)

// Number is an integer or floating-point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Op is an associative reduction operator with its identity.
type Op[T any] struct {
	Name     string
	Identity T
	Combine  func(a, b T) T
}

// Sum adds values. The identity is 0.
func Sum[T Number]() Op[T] {
	return Op[T]{Name: "sum", Combine: func(a, b T) T { return a + b }}
}

// Prod multiplies values. The identity is 1.
func Prod[T Number]() Op[T] {
	return Op[T]{Name: "prod", Identity: 1, Combine: func(a, b T) T { return a * b }}
}

// Min keeps the smallest value. An empty reduction yields the zero value.
func Min[T constraints.Ordered]() Op[T] {
	return Op[T]{Name: "min", Combine: func(a, b T) T { return min(a, b) }}
}

// Max keeps the largest value. An empty reduction yields the zero value.
func Max[T constraints.Ordered]() Op[T] {
	return Op[T]{Name: "max", Combine: func(a, b T) T { return max(a, b) }}
}

// BitAnd ands integers together. The identity has every bit set.
func BitAnd[T constraints.Integer]() Op[T] {
	return Op[T]{Name: "and", Identity: ^T(0), Combine: func(a, b T) T { return a & b }}
}

// BitOr ors integers together. The identity is 0.
func BitOr[T constraints.Integer]() Op[T] {
	return Op[T]{Name: "or", Combine: func(a, b T) T { return a | b }}
}

// BitXor xors integers together. The identity is 0.
func BitXor[T constraints.Integer]() Op[T] {
	return Op[T]{Name: "xor", Combine: func(a, b T) T { return a ^ b }}
}

type partial[T any] struct {
	v  T
	ok bool
}

// Reducer accumulates per-worker partial results. Each worker writes only
// its own cache-line padded slot, so accumulation needs no locking and
// causes no false sharing. Result folds the slots once the workers are done.
type Reducer[T any] struct {
	op    Op[T]
	slots []parlab.Padded[partial[T]]
}

// NewReducer returns a reducer with one slot per worker.
func NewReducer[T any](workers int, op Op[T]) *Reducer[T] {
	return &Reducer[T]{
		op:    op,
		slots: make([]parlab.Padded[partial[T]], max(workers, 1)),
	}
}

// Add combines v into the slot of worker id.
func (r *Reducer[T]) Add(id int, v T) {
	s := &r.slots[id].V
	if !s.ok {
		s.v, s.ok = v, true
		return
	}
	s.v = r.op.Combine(s.v, v)
}

// Result folds all slots in worker order. It returns the identity when
// nothing was added. It must not race with Add.
func (r *Reducer[T]) Result() T {
	var acc T
	var ok bool
	for i := range r.slots {
		s := r.slots[i].V
		if !s.ok {
			continue
		}
		if !ok {
			acc, ok = s.v, true
			continue
		}
		acc = r.op.Combine(acc, s.v)
	}
	if !ok {
		return r.op.Identity
	}
	return acc
}

// Reset empties every slot.
func (r *Reducer[T]) Reset() {
	clear(r.slots)
}

// Reduce combines one value from every worker of w's team and returns the
// result to all of them. Every worker of the team must call it.
func Reduce[T any](w *Worker, op Op[T], v T) T {
	c, key, _ := w.enter()
	c.once.Do(func() {
		c.data = make([]parlab.Padded[T], w.r.size)
	})
	slots := c.data.([]parlab.Padded[T])
	slots[w.id].V = v
	w.Barrier()

	acc := slots[0].V
	for i := 1; i < len(slots); i++ {
		acc = op.Combine(acc, slots[i].V)
	}
	w.leave(key)
	return acc
}

// ReduceRange runs fn for every i in [lo, hi) on a team of n workers and
// reduces the results with op. The loop uses the static schedule unless
// loop options say otherwise.
func ReduceRange[T any](
	ctx context.Context,
	n, lo, hi int,
	op Op[T],
	fn func(i int) T,
	loop []ConstructOption,
	opts ...Option,
) (T, error) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	r := NewReducer(n, op)
	err := Run(ctx, n, func(w *Worker) error {
		w.For(lo, hi, func(i int) {
			r.Add(w.ID(), fn(i))
		}, loop...)
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.Result(), nil
}
