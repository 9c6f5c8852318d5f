package platform

import (
	"sync"
	"unsafe"

	nkerr "github.com/23skdu/numakit/internal/errors"
	"github.com/23skdu/numakit/internal/topology"
)

// staticPageSize aligns simulated node memory.
const staticPageSize = 4096

// Static is a Platform over a fixed topology. It never touches the OS: bindings are
// recorded, node memory comes from the Go heap and page placement is remembered per region.
type Static struct {
	topo topology.Topology

	mu         sync.Mutex
	currentCPU int
	bindings   map[ThreadID]int
	bindCount  int
	regions    map[uintptr]staticRegion
	nodeAllocs map[int]int

	allocErr     error
	bindErr      error
	currentErr   error
	topologyErr  error
	addressErr   error
	cpuCountErr  error
	nextThreadID ThreadID
}

type staticRegion struct {
	backing []byte
	size    int
	node    int
}

// StaticOption configures a Static platform
type StaticOption func(*Static)

// WithCurrentCPU sets the CPU the calling thread appears to run on
func WithCurrentCPU(cpu int) StaticOption {
	return func(s *Static) { s.currentCPU = cpu }
}

// WithAllocError makes AllocOnNode fail with err
func WithAllocError(err error) StaticOption {
	return func(s *Static) { s.allocErr = err }
}

// WithBindError makes every bind call fail with err
func WithBindError(err error) StaticOption {
	return func(s *Static) { s.bindErr = err }
}

// WithCurrentError makes CurrentCPU and CurrentNode fail with err
func WithCurrentError(err error) StaticOption {
	return func(s *Static) { s.currentErr = err }
}

// WithTopologyError makes Topology fail with err
func WithTopologyError(err error) StaticOption {
	return func(s *Static) { s.topologyErr = err }
}

// WithAddressError makes NodeOfAddress fail with err
func WithAddressError(err error) StaticOption {
	return func(s *Static) { s.addressErr = err }
}

// WithCPUCountError makes CPUCount fail with err
func WithCPUCountError(err error) StaticOption {
	return func(s *Static) { s.cpuCountErr = err }
}

// NewStatic returns a platform that reports topo
func NewStatic(topo topology.Topology, opts ...StaticOption) *Static {
	s := &Static{
		topo:         topo,
		bindings:     make(map[ThreadID]int),
		regions:      make(map[uintptr]staticRegion),
		nodeAllocs:   make(map[int]int),
		nextThreadID: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Platform = (*Static)(nil)

func (s *Static) checkCPU(op string, cpu int) error {
	if cpu < 0 || cpu > s.topo.MaxCPU() {
		return nkerr.NewInvalidArgumentError(op, "cpu index out of range").
			WithContext("cpu", cpu).
			WithContext("cpu_count", s.topo.CPUCount())
	}
	return nil
}

// BindCurrentThread records the binding and moves the simulated current CPU
func (s *Static) BindCurrentThread(cpu int) error {
	if err := s.checkCPU("bind_current_thread", cpu); err != nil {
		return err
	}
	if s.bindErr != nil {
		return s.bindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[0] = cpu
	s.bindCount++
	s.currentCPU = cpu
	return nil
}

// BindThread records a binding for tid
func (s *Static) BindThread(tid ThreadID, cpu int) error {
	if err := s.checkCPU("bind_thread", cpu); err != nil {
		return err
	}
	if s.bindErr != nil {
		return s.bindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[tid] = cpu
	s.bindCount++
	return nil
}

// BindCurrentThreadToNode moves the simulated current CPU to the first CPU of node
func (s *Static) BindCurrentThreadToNode(node int) error {
	cpus := s.topo.NodeCPUs(node)
	if len(cpus) == 0 {
		return nkerr.NewInvalidArgumentError("bind_current_thread_to_node", "node has no cpus or is out of range").
			WithContext("node", node)
	}
	if s.bindErr != nil {
		return s.bindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindCount++
	s.currentCPU = cpus[0]
	return nil
}

// CurrentThreadID hands out increasing ids, one per call
func (s *Static) CurrentThreadID() ThreadID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextThreadID
	s.nextThreadID++
	return id
}

// CPUCount returns the number of CPUs in the topology
func (s *Static) CPUCount() (int, error) {
	if s.cpuCountErr != nil {
		return 0, s.cpuCountErr
	}
	return s.topo.CPUCount(), nil
}

// Topology returns the fixed topology
func (s *Static) Topology() (topology.Topology, error) {
	if s.topologyErr != nil {
		return topology.Topology{}, s.topologyErr
	}
	return s.topo, nil
}

// CurrentCPU returns the simulated current CPU
func (s *Static) CurrentCPU() (int, error) {
	if s.currentErr != nil {
		return 0, s.currentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCPU, nil
}

// CurrentNode returns the node of the simulated current CPU
func (s *Static) CurrentNode() (int, error) {
	if s.currentErr != nil {
		return 0, s.currentErr
	}
	if !s.topo.Available() {
		return 0, nkerr.NewUnsupportedError("current_numa_node", "NUMA not available")
	}
	cpu, _ := s.CurrentCPU()
	node, ok := s.topo.NodeOfCPU(cpu)
	if !ok {
		return 0, nkerr.NewInvalidArgumentError("current_numa_node", "current cpu not in topology").WithContext("cpu", cpu)
	}
	return node, nil
}

// NodeOfAddress returns the node a region was allocated on
func (s *Static) NodeOfAddress(p unsafe.Pointer) (int, error) {
	if p == nil {
		return 0, nkerr.NewInvalidArgumentError("numa_node_of_memory", "nil address")
	}
	if s.addressErr != nil {
		return 0, s.addressErr
	}
	addr := uintptr(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	for base, r := range s.regions {
		if addr >= base && addr < base+uintptr(r.size) {
			return r.node, nil
		}
	}
	return 0, nkerr.NewInvalidArgumentError("numa_node_of_memory", "address not allocated on a node").
		WithContext("address", addr)
}

// AllocOnNode returns page-aligned heap memory tagged with node
func (s *Static) AllocOnNode(size, node int) ([]byte, error) {
	if size <= 0 {
		return nil, nkerr.NewInvalidArgumentError("alloc_on_node", "size must be positive").WithContext("size", size)
	}
	if node < 0 || node >= s.topo.NodeCount() {
		return nil, nkerr.NewInvalidArgumentError("alloc_on_node", "node out of range").
			WithContext("node", node).
			WithContext("node_count", s.topo.NodeCount())
	}
	if s.allocErr != nil {
		return nil, s.allocErr
	}

	backing := make([]byte, size+staticPageSize-1)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&backing[0])) % staticPageSize); rem != 0 {
		off = staticPageSize - rem
	}
	b := backing[off : off+size : off+size]

	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[uintptr(unsafe.Pointer(&b[0]))] = staticRegion{backing: backing, size: size, node: node}
	s.nodeAllocs[node]++
	return b, nil
}

// FreeOnNode forgets a region; freeing unknown memory is an error
func (s *Static) FreeOnNode(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	base := uintptr(unsafe.Pointer(&b[0]))
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[base]
	if !ok || r.size != len(b) {
		return nkerr.NewInvalidArgumentError("free_on_node", "region was not allocated on a node").
			WithContext("address", base)
	}
	delete(s.regions, base)
	return nil
}

// Binding returns the CPU tid was last bound to; tid 0 is the calling thread
func (s *Static) Binding(tid ThreadID) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpu, ok := s.bindings[tid]
	return cpu, ok
}

// BindCount returns how many bind calls succeeded
func (s *Static) BindCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindCount
}

// LiveRegions returns the number of node regions not yet freed
func (s *Static) LiveRegions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regions)
}

// NodeAllocations returns how many regions were ever allocated on node
func (s *Static) NodeAllocations(node int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeAllocs[node]
}
