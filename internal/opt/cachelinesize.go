package opt

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize_ is used in structure padding to prevent false sharing.
// It's automatically calculated using the `golang.org/x/sys` package.
const CacheLineSize_ = unsafe.Sizeof(cpu.CacheLinePad{})

// Pad_ fills a whole cache line. Place it between fields that are written
// by different goroutines.
type Pad_ [CacheLineSize_]byte
