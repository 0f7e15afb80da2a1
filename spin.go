package parlab

import (
	"time"
	_ "unsafe" // for linkname
)

// noCopy makes go vet's copylocks check flag copies of the structs that
// carry it. Keep it as a named field, never embedded.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// trySpin spins once if the runtime thinks it is worth it.
func trySpin(spins *int) bool {
	if !runtime_canSpin(*spins) {
		return false
	}
	*spins++
	runtime_doSpin()
	return true
}

// spinSleep is the backoff once active spinning is exhausted.
const spinSleep = 500 * time.Microsecond

// delay is one backoff step of a spinning waiter.
func delay(spins *int) {
	if trySpin(spins) {
		return
	}
	*spins = 0
	time.Sleep(spinSleep)
}

//go:linkname runtime_canSpin sync.runtime_canSpin
func runtime_canSpin(i int) bool

//go:linkname runtime_doSpin sync.runtime_doSpin
func runtime_doSpin()
