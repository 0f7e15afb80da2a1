package opt

import (
	"sync"
	"testing"
	"time"
	"unsafe"
)

func TestSema_BlockUntilRelease(t *testing.T) {
	var s Sema

	done := make(chan struct{})
	go func() {
		s.Acquire()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Acquire returned before Release")
	case <-time.After(50 * time.Millisecond):
	}

	s.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Release")
	}
}

func TestSema_ManyWaiters(t *testing.T) {
	var s Sema
	const n = 10

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			s.Acquire()
		}()
	}

	// Releases may land before the waiters park; the count carries over.
	for range n {
		s.Release()
	}

	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("not all waiters woke up")
	}
}

func TestPad_FillsCacheLine(t *testing.T) {
	if unsafe.Sizeof(Pad_{}) != CacheLineSize_ {
		t.Fatalf("Pad_ size = %d, want %d", unsafe.Sizeof(Pad_{}), CacheLineSize_)
	}
	if CacheLineSize_ < 32 {
		t.Fatalf("implausible cache line size %d", CacheLineSize_)
	}
}
