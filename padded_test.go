package parlab

import (
	"testing"
	"unsafe"
)

func TestPadded_SeparatesSlots(t *testing.T) {
	var slots [4]Padded[int64]
	a := uintptr(unsafe.Pointer(&slots[0].V))
	b := uintptr(unsafe.Pointer(&slots[1].V))
	if d := b - a; d < uintptr(CacheLineSize) {
		t.Fatalf("adjacent slots %d bytes apart, want at least %d", d, CacheLineSize)
	}
}

func TestCacheLineSize(t *testing.T) {
	if CacheLineSize < 32 || CacheLineSize&(CacheLineSize-1) != 0 {
		t.Fatalf("CacheLineSize = %d, want a power of two >= 32", CacheLineSize)
	}
}
