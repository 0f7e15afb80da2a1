package team

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceRange_Sum(t *testing.T) {
	for name, sched := range map[string]ConstructOption{
		"static":  Static(),
		"dynamic": Dynamic(16),
		"guided":  Guided(4),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := ReduceRange(context.Background(), 4, 1, 1001, Sum[int](),
				func(i int) int { return i }, []ConstructOption{sched})
			require.NoError(t, err)
			require.Equal(t, 500500, got)
		})
	}
}

func TestReduceRange_Ops(t *testing.T) {
	ctx := context.Background()
	values := []int{7, -3, 12, 5, 0, 9, -8, 4}
	at := func(i int) int { return values[i] }

	minV, err := ReduceRange(ctx, 3, 0, len(values), Min[int](), at, nil)
	require.NoError(t, err)
	require.Equal(t, -8, minV)

	maxV, err := ReduceRange(ctx, 3, 0, len(values), Max[int](), at, nil)
	require.NoError(t, err)
	require.Equal(t, 12, maxV)

	prod, err := ReduceRange(ctx, 4, 1, 11, Prod[int64](), func(i int) int64 { return int64(i) }, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3628800, prod)

	or, err := ReduceRange(ctx, 4, 0, 8, BitOr[uint8](), func(i int) uint8 { return 1 << i }, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0xff, or)

	and, err := ReduceRange(ctx, 4, 0, 8, BitAnd[uint8](), func(i int) uint8 { return ^uint8(1 << i) }, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, and)

	xor, err := ReduceRange(ctx, 2, 0, 4, BitXor[int](), func(i int) int { return i }, nil)
	require.NoError(t, err)
	require.Equal(t, 0^1^2^3, xor)
}

func TestReduceRange_Float(t *testing.T) {
	got, err := ReduceRange(context.Background(), 4, 0, 1_000_000, Sum[float64](),
		func(i int) float64 {
			x := (float64(i) + 0.5) / 1_000_000
			return 4 / (1 + x*x)
		}, []ConstructOption{Static()})
	require.NoError(t, err)
	require.InDelta(t, math.Pi, got/1_000_000, 1e-9)
}

func TestReducer_EmptyYieldsIdentity(t *testing.T) {
	require.Equal(t, 0, NewReducer(4, Sum[int]()).Result())
	require.Equal(t, 1.0, NewReducer(4, Prod[float64]()).Result())
	require.Equal(t, ^uint32(0), NewReducer(4, BitAnd[uint32]()).Result())
	require.Equal(t, "", NewReducer(2, Min[string]()).Result())
}

func TestReducer_MinIgnoresEmptySlots(t *testing.T) {
	r := NewReducer(4, Min[int]())
	r.Add(2, 40)
	r.Add(2, 30)
	r.Add(3, 35)
	require.Equal(t, 30, r.Result())

	r.Reset()
	require.Equal(t, 0, r.Result())
	r.Add(0, 5)
	require.Equal(t, 5, r.Result())
}

func TestReduce_Collective(t *testing.T) {
	const n = 5
	err := Run(context.Background(), n, func(w *Worker) error {
		sum := Reduce(w, Sum[int](), w.ID())
		assert.Equal(t, n*(n-1)/2, sum)

		hi := Reduce(w, Max[int](), w.ID()*10)
		assert.Equal(t, (n-1)*10, hi)
		return nil
	})
	require.NoError(t, err)
}
