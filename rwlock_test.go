package parlab

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRWLock_Basic(t *testing.T) {
	var a int
	var rw RWLock
	if s := rw.State(); s != Free {
		t.Fatalf("zero value state = %v, want free", s)
	}

	rw.Lock()
	if s := rw.State(); s != ExclusiveWrite {
		t.Fatalf("state = %v, want exclusive-write", s)
	}
	a = 1
	rw.Unlock()

	rw.RLock()
	rw.RLock()
	if s := rw.State(); s != SharedRead {
		t.Fatalf("state = %v, want shared-read", s)
	}
	if n := rw.Readers(); n != 2 {
		t.Fatalf("readers = %d, want 2", n)
	}
	_ = a
	rw.RUnlock()
	rw.RUnlock()

	if s := rw.State(); s != Free {
		t.Fatalf("state = %v, want free", s)
	}
}

func TestRWLock_InitDestroy(t *testing.T) {
	rw := NewRWLock()
	rw.Lock()
	rw.Unlock()
	rw.Destroy()

	rw.Init()
	rw.RLock()
	if rw.Readers() != 1 {
		t.Fatalf("readers = %d, want 1", rw.Readers())
	}
	rw.RUnlock()
	if !rw.TryLock() {
		t.Fatal("TryLock failed on a re-initialized lock")
	}
	rw.Unlock()
}

func TestRWLock_TryLock(t *testing.T) {
	var rw RWLock

	rw.RLock()
	if rw.TryLock() {
		t.Fatal("TryLock succeeded while a reader holds the lock")
	}
	if !rw.TryRLock() {
		t.Fatal("TryRLock failed while only readers hold the lock")
	}
	rw.RUnlock()
	rw.RUnlock()

	rw.Lock()
	if rw.TryRLock() {
		t.Fatal("TryRLock succeeded while a writer holds the lock")
	}
	if rw.TryLock() {
		t.Fatal("TryLock succeeded while a writer holds the lock")
	}
	rw.Unlock()

	if !rw.TryRLock() {
		t.Fatal("TryRLock failed on a free lock")
	}
	rw.RUnlock()
}

// A first reader parked behind a writer holds readMu; TryRLock must still
// return at once.
func TestRWLock_TryRLockWithParkedReader(t *testing.T) {
	var rw RWLock
	rw.Lock()

	entered := make(chan struct{})
	go func() {
		rw.RLock()
		close(entered)
		rw.RUnlock()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for rw.Readers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("reader never started entering")
		}
		runtime.Gosched()
	}

	result := make(chan bool, 1)
	go func() { result <- rw.TryRLock() }()
	select {
	case ok := <-result:
		if ok {
			t.Fatal("TryRLock succeeded while a writer holds the lock")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("TryRLock blocked while a writer holds the lock")
	}

	if n := rw.Readers(); n != 1 {
		t.Fatalf("readers = %d, want the entering reader counted", n)
	}
	select {
	case <-entered:
		t.Fatal("reader got in while a writer holds the lock")
	default:
	}

	rw.Unlock()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("reader not admitted after the writer left")
	}
}

func TestRWLock_ReadersAndWriters(t *testing.T) {
	var rw RWLock
	var readers int32
	var writers int32

	const loops = 1000
	readerN := runtime.GOMAXPROCS(0)
	writerN := 2

	var wg sync.WaitGroup
	wg.Add(readerN + writerN)

	for range readerN {
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

	for range writerN {
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
}

// All readers must be inside at the same time to trip the barrier; a lock
// that serialized readers would hang here.
func TestRWLock_ReadersShareTheLock(t *testing.T) {
	var rw RWLock
	const n = 8
	b := NewBarrier(n)

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		wg.Add(n)
		for range n {
			go func() {
				defer wg.Done()
				rw.RLock()
				b.Wait()
				rw.RUnlock()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("readers did not hold the lock concurrently")
	}
	if rw.Readers() != 0 {
		t.Fatalf("readers = %d after all returned", rw.Readers())
	}
}

func TestRWLock_ReaderTimeVsMutex(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const n = 8
	const hold = 10 * time.Millisecond

	run := func(lock, unlock func()) time.Duration {
		var wg sync.WaitGroup
		wg.Add(n)
		start := time.Now()
		for range n {
			go func() {
				defer wg.Done()
				lock()
				time.Sleep(hold)
				unlock()
			}()
		}
		wg.Wait()
		return time.Since(start)
	}

	var rw RWLock
	var mu sync.Mutex
	shared := run(rw.RLock, rw.RUnlock)
	serial := run(mu.Lock, mu.Unlock)

	if serial < n*hold {
		t.Fatalf("mutex run took %v, expected at least %v", serial, n*hold)
	}
	if shared >= serial/2 {
		t.Fatalf("readers took %v, mutex took %v; expected sub-linear reader time", shared, serial)
	}
}

func TestRWLock_NoLostUpdates(t *testing.T) {
	for _, writes := range []int{1_000, 10_000, 100_000} {
		for _, goroutines := range []int{2, 4, 8} {
			t.Run(fmt.Sprintf("writes=%d/goroutines=%d", writes, goroutines), func(t *testing.T) {
				var rw RWLock
				counter := 0

				var wg sync.WaitGroup
				wg.Add(goroutines)
				for range goroutines {
					go func() {
						defer wg.Done()
						for range writes / goroutines {
							rw.Lock()
							counter++
							rw.Unlock()
						}
					}()
				}
				wg.Wait()

				if counter != writes {
					t.Fatalf("counter = %d, want %d", counter, writes)
				}
			})
		}
	}
}

func TestRWLock_MixedLoadNoTornReads(t *testing.T) {
	const (
		goroutines = 4
		iterations = 10_000
		width      = 64
	)
	var rw RWLock
	var data [width]int
	var torn atomic.Int64

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for id := range goroutines {
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(id), 42))
			for range iterations {
				if r.IntN(10) == 0 {
					rw.Lock()
					for i := range data {
						data[i] = id + 1
					}
					rw.Unlock()
					continue
				}
				rw.RLock()
				first := data[0]
				for _, v := range data[1:] {
					if v != first {
						torn.Add(1)
						break
					}
				}
				rw.RUnlock()
			}
		}()
	}
	wg.Wait()

	if n := torn.Load(); n != 0 {
		t.Fatalf("%d reads observed a partially written array", n)
	}
}

func TestRWLock_PairingReturnsToFree(t *testing.T) {
	sequences := []struct {
		name string
		ops  func(rw *RWLock)
	}{
		{"single read", func(rw *RWLock) { rw.RLock(); rw.RUnlock() }},
		{"single write", func(rw *RWLock) { rw.Lock(); rw.Unlock() }},
		{"nested reads", func(rw *RWLock) {
			for range 5 {
				rw.RLock()
			}
			for range 5 {
				rw.RUnlock()
			}
		}},
		{"interleaved", func(rw *RWLock) {
			rw.RLock()
			rw.RLock()
			rw.RUnlock()
			rw.RUnlock()
			rw.Lock()
			rw.Unlock()
			rw.RLock()
			rw.RUnlock()
		}},
		{"unlock from another goroutine", func(rw *RWLock) {
			rw.RLock()
			done := make(chan struct{})
			go func() {
				rw.RUnlock()
				close(done)
			}()
			<-done
		}},
	}

	for _, s := range sequences {
		t.Run(s.name, func(t *testing.T) {
			var rw RWLock
			s.ops(&rw)
			if rw.Readers() != 0 {
				t.Fatalf("readers = %d, want 0", rw.Readers())
			}
			if rw.State() != Free {
				t.Fatalf("state = %v, want free", rw.State())
			}
			if !rw.TryLock() {
				t.Fatal("write mutex still held")
			}
			rw.Unlock()
		})
	}
}

func TestRWLock_TaggedArrayScenario(t *testing.T) {
	const (
		goroutines = 4
		cycles     = 1000
		width      = 32
	)
	var rw RWLock
	var data [width]int
	lastWriter := -1
	var inconsistent atomic.Int64

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for id := range goroutines {
		go func() {
			defer wg.Done()
			for i := range cycles {
				if i%10 == 0 {
					rw.Lock()
					for j := range data {
						data[j] = id
					}
					lastWriter = id
					rw.Unlock()
				}

				rw.RLock()
				for _, v := range data[1:] {
					if v != data[0] {
						inconsistent.Add(1)
						break
					}
				}
				rw.RUnlock()
			}
		}()
	}
	wg.Wait()

	if n := inconsistent.Load(); n != 0 {
		t.Fatalf("%d reads saw mixed writer ids", n)
	}
	for j, v := range data {
		if v != lastWriter {
			t.Fatalf("data[%d] = %d, want last writer %d", j, v, lastWriter)
		}
	}
}

// A reader that arrives while a writer waits still gets in, so a writer can
// be overtaken indefinitely by overlapping readers.
func TestRWLock_WriterCanBeOvertaken(t *testing.T) {
	var rw RWLock
	rw.RLock()

	writerIn := make(chan struct{})
	go func() {
		rw.Lock()
		close(writerIn)
		rw.Unlock()
	}()

	select {
	case <-writerIn:
		t.Fatal("writer acquired the lock while a reader held it")
	case <-time.After(20 * time.Millisecond):
	}

	if !rw.TryRLock() {
		t.Fatal("late reader was refused; expected no writer preference")
	}
	rw.RUnlock()

	select {
	case <-writerIn:
		t.Fatal("writer acquired the lock while the late reader held it")
	case <-time.After(20 * time.Millisecond):
	}

	rw.RUnlock()
	select {
	case <-writerIn:
	case <-time.After(time.Second):
		t.Fatal("writer did not acquire the lock after readers left")
	}
}

func TestRWLock_RLocker(t *testing.T) {
	var rw RWLock
	l := rw.RLocker()
	l.Lock()
	if rw.State() != SharedRead {
		t.Fatalf("state = %v, want shared-read", rw.State())
	}
	l.Unlock()
	if rw.State() != Free {
		t.Fatalf("state = %v, want free", rw.State())
	}
}

func TestLockState_String(t *testing.T) {
	for s, want := range map[LockState]string{
		Free:           "free",
		SharedRead:     "shared-read",
		ExclusiveWrite: "exclusive-write",
		LockState(9):   "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}

func benchmarkReadMostly(b *testing.B, rlock, runlock, lock, unlock func()) {
	var shared [16]int
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%100 == 0 {
				lock()
				shared[i%len(shared)]++
				unlock()
			} else {
				rlock()
				_ = shared[i%len(shared)]
				runlock()
			}
			i++
		}
	})
}

func BenchmarkReadMostly_RWLock(b *testing.B) {
	var rw RWLock
	benchmarkReadMostly(b, rw.RLock, rw.RUnlock, rw.Lock, rw.Unlock)
}

func BenchmarkReadMostly_SpinRWLock(b *testing.B) {
	var rw SpinRWLock
	benchmarkReadMostly(b, rw.RLock, rw.RUnlock, rw.Lock, rw.Unlock)
}

func BenchmarkReadMostly_SyncRWMutex(b *testing.B) {
	var rw sync.RWMutex
	benchmarkReadMostly(b, rw.RLock, rw.RUnlock, rw.Lock, rw.Unlock)
}

func BenchmarkReadMostly_SyncMutex(b *testing.B) {
	var mu sync.Mutex
	benchmarkReadMostly(b, mu.Lock, mu.Unlock, mu.Lock, mu.Unlock)
}
