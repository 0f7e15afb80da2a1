package parlab

import (
	"github.com/llxisdsh/parlab/internal/opt"
)

// CacheLineSize is the cache line size of the target architecture.
const CacheLineSize = int(opt.CacheLineSize_)

// Padded holds a value followed by a full cache line of padding, so that
// adjacent elements of a []Padded[T] never share a line. Per-worker slots
// built from it avoid false sharing.
type Padded[T any] struct {
	V T
	_ opt.Pad_
}
