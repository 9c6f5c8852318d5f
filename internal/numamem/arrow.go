package numamem

import (
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowAllocator implements arrow's memory.Allocator on top of node-bound memory so
// Arrow builders and buffers live on a chosen node. Requests that cannot be placed
// are served from the heap, the same way Allocate does.
type ArrowAllocator struct {
	bytes     *Allocator[byte]
	node      int
	allocated atomic.Int64
}

// NewArrowAllocator returns an Arrow allocator placing buffers on node, sharing a's
// platform and region registry
func NewArrowAllocator[T any](a *Allocator[T], node int) *ArrowAllocator {
	return &ArrowAllocator{bytes: Rebind[byte](a), node: node}
}

// Node returns the target node
func (a *ArrowAllocator) Node() int { return a.node }

// Allocate returns size zeroed bytes, 64-byte aligned
func (a *ArrowAllocator) Allocate(size int) []byte {
	a.allocated.Add(int64(size))
	if size == 0 {
		return heapAligned[byte](0, false)
	}
	buf, err := a.bytes.AllocateOnNode(size, a.node)
	if err != nil {
		a.bytes.s.logger.Debug().Err(err).Int("size", size).Int("node", a.node).Msg("arrow buffer placed on heap")
		return a.bytes.heap(size)
	}
	return buf
}

// Reallocate resizes b, copying its contents
func (a *ArrowAllocator) Reallocate(size int, b []byte) []byte {
	if size == len(b) {
		return b
	}
	newBuf := a.Allocate(size)
	copy(newBuf, b)
	a.Free(b)
	return newBuf
}

// Free releases b
func (a *ArrowAllocator) Free(b []byte) {
	a.allocated.Add(-int64(len(b)))
	a.bytes.Deallocate(b)
}

// Allocated returns bytes currently allocated through a
func (a *ArrowAllocator) Allocated() int64 {
	return a.allocated.Load()
}

// AssertSize returns an error when the outstanding byte count differs from sz
func (a *ArrowAllocator) AssertSize(sz int) error {
	if int(a.Allocated()) != sz {
		return fmt.Errorf("allocator size mismatch: expected %d, got %d", sz, a.Allocated())
	}
	return nil
}

var _ memory.Allocator = (*ArrowAllocator)(nil)
