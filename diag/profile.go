package diag

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/llxisdsh/parlab"
)

// LoadProfile records how long each worker of a team was busy. Each worker
// writes only its own padded slot.
type LoadProfile struct {
	clock clockwork.Clock
	busy  []parlab.Padded[time.Duration]
}

// NewLoadProfile returns a profile for the given number of workers. A nil
// clock means the real clock.
func NewLoadProfile(workers int, clock clockwork.Clock) *LoadProfile {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LoadProfile{
		clock: clock,
		busy:  make([]parlab.Padded[time.Duration], max(workers, 1)),
	}
}

// Track starts timing worker id and returns the function that stops it.
//
//	defer profile.Track(w.ID())()
func (p *LoadProfile) Track(id int) func() {
	start := p.clock.Now()
	return func() {
		p.busy[id].V += p.clock.Since(start)
	}
}

// Add adds d to the busy time of worker id.
func (p *LoadProfile) Add(id int, d time.Duration) {
	p.busy[id].V += d
}

// Busy returns the busy time of every worker.
func (p *LoadProfile) Busy() []time.Duration {
	out := make([]time.Duration, len(p.busy))
	for i := range p.busy {
		out[i] = p.busy[i].V
	}
	return out
}

// LoadSummary describes the spread of busy times across workers.
type LoadSummary struct {
	Min, Max, Mean time.Duration
	Imbalance      float64
}

// Summary returns the minimum, maximum and mean busy time. Imbalance is
// max/mean: 1 for a perfectly balanced team, n when one of n workers did
// all the work. A profile with no busy time reports 1.
func (p *LoadProfile) Summary() LoadSummary {
	busy := p.Busy()
	s := LoadSummary{Min: busy[0], Max: busy[0]}
	var total time.Duration
	for _, d := range busy {
		s.Min = min(s.Min, d)
		s.Max = max(s.Max, d)
		total += d
	}
	s.Mean = total / time.Duration(len(busy))
	s.Imbalance = 1
	if total > 0 {
		s.Imbalance = float64(s.Max) * float64(len(busy)) / float64(total)
	}
	return s
}

// Imbalance returns Summary().Imbalance.
func (p *LoadProfile) Imbalance() float64 {
	return p.Summary().Imbalance
}
