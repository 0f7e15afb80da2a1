package diag

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestLoadProfile_Summary(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewLoadProfile(4, clock)

	stop := p.Track(0)
	clock.Advance(40 * time.Millisecond)
	stop()
	p.Add(1, 20*time.Millisecond)
	p.Add(2, 10*time.Millisecond)
	p.Add(3, 10*time.Millisecond)

	want := []time.Duration{40 * time.Millisecond, 20 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond}
	if diff := cmp.Diff(want, p.Busy()); diff != "" {
		t.Fatalf("busy mismatch (-want +got):\n%s", diff)
	}

	s := p.Summary()
	require.Equal(t, 10*time.Millisecond, s.Min)
	require.Equal(t, 40*time.Millisecond, s.Max)
	require.Equal(t, 20*time.Millisecond, s.Mean)
	require.InDelta(t, 2.0, s.Imbalance, 1e-9)
	require.InDelta(t, 2.0, p.Imbalance(), 1e-9)
}

func TestLoadProfile_Balanced(t *testing.T) {
	p := NewLoadProfile(3, clockwork.NewFakeClock())
	require.Equal(t, 1.0, p.Imbalance())

	for id := range 3 {
		p.Add(id, time.Second)
	}
	require.InDelta(t, 1.0, p.Imbalance(), 1e-9)

	one := NewLoadProfile(3, nil)
	one.Add(2, time.Second)
	require.InDelta(t, 3.0, one.Imbalance(), 1e-9)
}

func TestMeasureFalseSharing(t *testing.T) {
	res, err := MeasureFalseSharing(context.Background(), 2, 10_000)
	require.NoError(t, err)
	require.Equal(t, 2, res.Workers)
	require.Positive(t, res.Packed)
	require.Positive(t, res.Padded)
	require.Positive(t, res.Slowdown())

	require.Zero(t, FalseSharingResult{}.Slowdown())
}

func TestMeasureFalseSharing_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Cancellation is cooperative; the counters do not poll the context.
	res, err := FalseSharing{Workers: 0, Iterations: 10}.Measure(ctx)
	require.NoError(t, err)
	require.Positive(t, res.Workers)
}
