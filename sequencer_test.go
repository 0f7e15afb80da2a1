package parlab

import (
	"sync"
	"testing"
	"time"
)

func TestSequencer_OrdersGoroutines(t *testing.T) {
	var s Sequencer
	const n = 32
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	wg.Add(n)
	// Start in reverse so the scheduler cannot produce the order by accident.
	for i := n - 1; i >= 0; i-- {
		go func() {
			defer wg.Done()
			s.WaitFor(uint64(i))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			s.Advance()
		}()
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
	if s.Current() != n {
		t.Fatalf("current = %d, want %d", s.Current(), n)
	}
}

func TestSequencer_AddWakesAllReached(t *testing.T) {
	var s Sequencer
	var wg sync.WaitGroup
	for _, target := range []uint64{1, 2, 3} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.WaitFor(target)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	s.Add(3)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters not woken by Add")
	}
}

func TestSequencer_WaitForPastTarget(t *testing.T) {
	var s Sequencer
	s.Add(5)
	s.WaitFor(2)
	if s.Add(0) != 5 {
		t.Fatalf("Add(0) = %d, want 5", s.Add(0))
	}
}
