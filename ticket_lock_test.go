package parlab

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestTicketLock(t *testing.T) {
	var m TicketLock
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	var counter int64
	for range n {
		go func() {
			defer wg.Done()
			m.Lock()
			counter++
			m.Unlock()
		}()
	}
	wg.Wait()
	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
	if w := m.Waiting(); w != 0 {
		t.Fatalf("waiting = %d, want 0", w)
	}
}

func TestTicketLock_TryLock(t *testing.T) {
	var m TicketLock
	if !m.TryLock() {
		t.Fatal("TryLock failed on a free lock")
	}
	if m.TryLock() {
		t.Fatal("TryLock succeeded on a held lock")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatal("TryLock failed after Unlock")
	}
	m.Unlock()
}

func TestTicketLock_FIFO(t *testing.T) {
	var m TicketLock
	m.Lock()

	const n = 5
	order := make([]int, 0, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock()
			order = append(order, i)
			m.Unlock()
		}()
		// Wait until goroutine i has taken its ticket before starting i+1.
		deadline := time.Now().Add(time.Second)
		for m.Waiting() != i+2 {
			if time.Now().After(deadline) {
				t.Fatalf("goroutine %d never queued", i)
			}
			runtime.Gosched()
		}
	}

	m.Unlock()
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("acquisition order = %v, want ascending", order)
		}
	}
}
