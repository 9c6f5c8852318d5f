// Package numamem places typed buffers on NUMA nodes.
//
// The node-specific entry points (AllocateOnNode, AllocateOnCPUNode, AllocateLocal,
// DeallocateNUMA) return errors. Allocate and Deallocate form the fallback layer:
// they are the only calls that downgrade a failed placement to ordinary heap memory.
//
// Node-bound memory is mapped outside the Go heap, so element types that contain Go
// pointers (strings, slices, maps, interfaces...) are only ever served from the heap.
package numamem

import (
	"math"
	"reflect"
	"sync"
	"unsafe"

	"github.com/rs/zerolog"

	nkerr "github.com/23skdu/numakit/internal/errors"
	"github.com/23skdu/numakit/internal/metrics"
	"github.com/23skdu/numakit/internal/platform"
	"github.com/23skdu/numakit/internal/topology"
)

// Stats describes node-bound memory that has not been released yet
type Stats struct {
	LiveRegions int
	LiveBytes   int64
	NodeBytes   []int64 // indexed by node
}

// region is one OS mapping handed out as a typed slice.
type region struct {
	mapping []byte
	node    int
}

// state is shared by an allocator and every allocator rebound from it.
type state struct {
	platform platform.Platform
	topo     topology.Topology
	logger   zerolog.Logger

	mu        sync.Mutex
	regions   map[uintptr]region
	liveBytes int64
}

// Allocator hands out []T placed on NUMA nodes. The zero value is not usable; use New.
type Allocator[T any] struct {
	s        *state
	elemSize int
	pointers bool
}

// Option configures an Allocator
type Option func(*state)

// WithLogger sets the logger used to trace fallbacks
func WithLogger(logger zerolog.Logger) Option {
	return func(s *state) { s.logger = logger }
}

// New returns an allocator for T over p. The platform topology is queried once and
// cached; a failed query leaves the allocator in heap-only mode.
func New[T any](p platform.Platform, opts ...Option) *Allocator[T] {
	s := &state{
		platform: p,
		logger:   zerolog.Nop(),
		regions:  make(map[uintptr]region),
	}
	for _, opt := range opts {
		opt(s)
	}
	topo, err := p.Topology()
	if err != nil {
		s.logger.Debug().Err(err).Msg("topology unavailable, node placement disabled")
		topo = topology.SingleNode(1, 0)
	}
	s.topo = topo
	return newTyped[T](s)
}

func newTyped[T any](s *state) *Allocator[T] {
	var zero T
	return &Allocator[T]{
		s:        s,
		elemSize: int(unsafe.Sizeof(zero)),
		pointers: hasPointers(reflect.TypeFor[T]()),
	}
}

// Rebind returns an allocator for U sharing a's platform, topology and region registry
func Rebind[U, T any](a *Allocator[T]) *Allocator[U] {
	return newTyped[U](a.s)
}

// Equal reports whether memory from one allocator may be released through the other.
// Allocators carry no per-instance placement state, so any two are interchangeable.
func Equal[T, U any](_ *Allocator[T], _ *Allocator[U]) bool {
	return true
}

// Topology returns the cached topology
func (a *Allocator[T]) Topology() topology.Topology { return a.s.topo }

// AllocateOnNode returns count elements backed by node's memory, 64-byte aligned.
// count 0 returns nil. Without NUMA the memory comes from the heap and no error is
// reported.
func (a *Allocator[T]) AllocateOnNode(count, node int) ([]T, error) {
	if count < 0 {
		return nil, nkerr.NewInvalidArgumentError("allocate_on_numa_node", "negative count").WithContext("count", count)
	}
	if count == 0 {
		return nil, nil
	}
	if a.elemSize > 0 && count > math.MaxInt/a.elemSize {
		return nil, nkerr.NewInvalidArgumentError("allocate_on_numa_node", "size overflows").
			WithContext("count", count).
			WithContext("element_size", a.elemSize)
	}
	if !a.s.topo.Available() || a.elemSize == 0 {
		metrics.NodeMemoryFallbacksTotal.WithLabelValues("no_numa").Inc()
		return a.heap(count), nil
	}
	if node < 0 || node >= a.s.topo.NodeCount() {
		return nil, nkerr.NewInvalidArgumentError("allocate_on_numa_node", "node out of range").
			WithContext("node", node).
			WithContext("node_count", a.s.topo.NodeCount())
	}
	if a.pointers {
		return nil, nkerr.NewUnsupportedError("allocate_on_numa_node", "element type contains Go pointers").
			WithContext("type", reflect.TypeFor[T]().String())
	}

	size := count * a.elemSize
	mapping, err := a.s.platform.AllocOnNode(size, node)
	if err != nil {
		return nil, err
	}
	base := unsafe.Pointer(&mapping[0])
	if uintptr(base)%Alignment != 0 {
		_ = a.s.platform.FreeOnNode(mapping)
		return nil, nkerr.NewUnsupportedError("allocate_on_numa_node", "platform returned misaligned memory").
			WithContext("address", uintptr(base))
	}

	a.s.mu.Lock()
	a.s.regions[uintptr(base)] = region{mapping: mapping, node: node}
	a.s.liveBytes += int64(size)
	a.s.mu.Unlock()

	metrics.NodeMemoryAllocatedBytesTotal.WithLabelValues("node").Add(float64(size))
	metrics.NodeMemoryLiveBytes.Add(float64(size))
	return unsafe.Slice((*T)(base), count), nil
}

// AllocateOnCPUNode places count elements on the node owning cpu. Without NUMA, or
// for a CPU outside the topology, the memory comes from the heap.
func (a *Allocator[T]) AllocateOnCPUNode(count, cpu int) ([]T, error) {
	node, ok := a.s.topo.NodeOfCPU(cpu)
	if a.s.topo.Available() && !ok && count > 0 {
		a.s.logger.Debug().Int("cpu", cpu).Msg("cpu outside topology, allocating on heap")
		metrics.NodeMemoryFallbacksTotal.WithLabelValues("unknown_cpu").Inc()
		return a.heap(count), nil
	}
	return a.AllocateOnNode(count, node)
}

// AllocateLocal places count elements on the node of the CPU the caller runs on
func (a *Allocator[T]) AllocateLocal(count int) ([]T, error) {
	cpu, err := a.s.platform.CurrentCPU()
	if err != nil {
		return nil, err
	}
	return a.AllocateOnCPUNode(count, cpu)
}

// Allocate returns count elements, node-local when possible and from the heap
// otherwise. It only fails by panicking when the heap itself is exhausted.
func (a *Allocator[T]) Allocate(count int) []T {
	if count <= 0 {
		return nil
	}
	buf, err := a.AllocateLocal(count)
	if err == nil {
		return buf
	}

	reason := "error"
	if a.pointers {
		reason = "pointer_type"
	}
	a.s.logger.Debug().Err(err).Int("count", count).Str("reason", reason).Msg("node-local allocation failed, using heap")
	metrics.NodeMemoryFallbacksTotal.WithLabelValues(reason).Inc()
	return a.heap(count)
}

// DeallocateNUMA releases node-bound memory. Heap memory is left to the garbage
// collector and releasing it is not an error. A slice starting inside a node-bound
// region must be released through the slice the allocator returned.
func (a *Allocator[T]) DeallocateNUMA(buf []T) error {
	if len(buf) == 0 {
		return nil
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	a.s.mu.Lock()
	r, ok := a.s.regions[base]
	if ok {
		delete(a.s.regions, base)
		a.s.liveBytes -= int64(len(r.mapping))
	}
	var owner uintptr
	if !ok {
		owner = a.s.regionContaining(base)
	}
	a.s.mu.Unlock()
	if owner != 0 {
		return nkerr.NewInvalidArgumentError("deallocate_numa", "slice does not start at its region base").
			WithContext("address", base).
			WithContext("region", owner)
	}
	if !ok {
		return nil
	}

	metrics.NodeMemoryLiveBytes.Sub(float64(len(r.mapping)))
	if err := a.s.platform.FreeOnNode(r.mapping); err != nil {
		return err
	}
	return nil
}

// Deallocate releases buf, swallowing release errors
func (a *Allocator[T]) Deallocate(buf []T) {
	if err := a.DeallocateNUMA(buf); err != nil {
		metrics.NodeMemoryReleaseErrorsTotal.Inc()
		a.s.logger.Debug().Err(err).Msg("node memory release failed")
	}
}

// NodeOf reports the node backing buf according to the platform
func (a *Allocator[T]) NodeOf(buf []T) (int, error) {
	if len(buf) == 0 {
		return 0, nkerr.NewInvalidArgumentError("numa_node_of_memory", "empty buffer")
	}
	return a.s.platform.NodeOfAddress(unsafe.Pointer(unsafe.SliceData(buf)))
}

// Stats returns the live node-bound regions of the shared registry
func (a *Allocator[T]) Stats() Stats {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	st := Stats{
		LiveRegions: len(a.s.regions),
		LiveBytes:   a.s.liveBytes,
		NodeBytes:   make([]int64, a.s.topo.NodeCount()),
	}
	for _, r := range a.s.regions {
		if r.node < len(st.NodeBytes) {
			st.NodeBytes[r.node] += int64(len(r.mapping))
		}
	}
	return st
}

// regionContaining returns the base of the region holding addr, or 0. Callers hold mu.
func (s *state) regionContaining(addr uintptr) uintptr {
	for base, r := range s.regions {
		if addr > base && addr < base+uintptr(len(r.mapping)) {
			return base
		}
	}
	return 0
}

// heap panics with a ResourceUnavailable error when count elements cannot be
// addressed, as make would for an impossible length.
func (a *Allocator[T]) heap(count int) []T {
	if a.elemSize > 0 && count > (math.MaxInt-Alignment)/a.elemSize {
		panic(nkerr.NewResourceUnavailableError("allocate", "out of memory").
			WithContext("count", count).
			WithContext("element_size", a.elemSize))
	}
	buf := heapAligned[T](count, a.pointers)
	metrics.NodeMemoryAllocatedBytesTotal.WithLabelValues("heap").Add(float64(count * a.elemSize))
	return buf
}
