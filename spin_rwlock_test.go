package parlab

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"
)

func TestSpinRWLockSize(t *testing.T) {
	var l SpinRWLock
	if size := unsafe.Sizeof(l); size != 4 {
		t.Errorf("SpinRWLock size = %d, want 4", size)
	}
}

func TestSpinRWLock_ReadersAndWriters(t *testing.T) {
	var rw SpinRWLock
	var readers, writers int32
	const loops = 500

	var wg sync.WaitGroup
	n := runtime.GOMAXPROCS(0)
	wg.Add(n + 2)
	for range n {
		go func() {
			defer wg.Done()
			for range loops {
				rw.RLock()
				atomic.AddInt32(&readers, 1)
				if atomic.LoadInt32(&writers) != 0 {
					t.Errorf("reader observed active writer")
				}
				atomic.AddInt32(&readers, -1)
				rw.RUnlock()
			}
		}()
	}
	for range 2 {
		go func() {
			defer wg.Done()
			for range loops {
				rw.Lock()
				if atomic.AddInt32(&writers, 1) != 1 {
					t.Errorf("multiple writers active")
				}
				if atomic.LoadInt32(&readers) != 0 {
					t.Errorf("writer observed active readers")
				}
				atomic.AddInt32(&writers, -1)
				rw.Unlock()
			}
		}()
	}
	wg.Wait()

	if rw.Readers() != 0 || rw.WriterPending() {
		t.Fatalf("lock not released: readers=%d writer=%v", rw.Readers(), rw.WriterPending())
	}
}

// A waiting writer turns new readers away, the opposite of RWLock.
func TestSpinRWLock_WriterNotOvertaken(t *testing.T) {
	var rw SpinRWLock
	rw.RLock()

	writerIn := make(chan struct{})
	go func() {
		rw.Lock()
		close(writerIn)
		rw.Unlock()
	}()

	deadline := time.Now().Add(time.Second)
	for !rw.WriterPending() {
		if time.Now().After(deadline) {
			t.Fatal("writer never announced itself")
		}
		runtime.Gosched()
	}

	if rw.TryRLock() {
		t.Fatal("late reader got in ahead of a waiting writer")
	}

	rw.RUnlock()
	select {
	case <-writerIn:
	case <-time.After(time.Second):
		t.Fatal("writer did not acquire the lock after the reader left")
	}
}

func TestSpinRWLock_TryLock(t *testing.T) {
	var rw SpinRWLock
	if !rw.TryLock() {
		t.Fatal("TryLock failed on a free lock")
	}
	if rw.TryLock() || rw.TryRLock() {
		t.Fatal("lock acquired twice")
	}
	rw.Unlock()

	rw.RLock()
	if rw.TryLock() {
		t.Fatal("TryLock succeeded with a reader inside")
	}
	if !rw.TryRLock() {
		t.Fatal("TryRLock failed with only readers inside")
	}
	if rw.Readers() != 2 {
		t.Fatalf("readers = %d, want 2", rw.Readers())
	}
	rw.RUnlock()
	rw.RUnlock()
}
