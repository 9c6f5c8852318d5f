// Package cpualloc hands out CPU indices to application threads according to a
// NUMA-aware policy: least-loaded node selection, co-location with a memory hint,
// and one reserved ("isolated") CPU per node for latency-critical threads.
//
// All methods are safe for concurrent use. Counters are plain atomics; the
// allocator never blocks apart from the platform call that resolves a memory hint.
package cpualloc

import (
	"strconv"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"

	nkerr "github.com/23skdu/numakit/internal/errors"
	"github.com/23skdu/numakit/internal/metrics"
	"github.com/23skdu/numakit/internal/platform"
	"github.com/23skdu/numakit/internal/topology"
)

// Stats is a point-in-time copy of the allocator counters. Fields are read
// independently and are not mutually consistent under concurrent load.
type Stats struct {
	TotalAllocations    uint64
	IsolatedAllocations uint64
	NodeAllocations     []uint64
}

// Allocator selects CPUs for threads
type Allocator struct {
	platform  platform.Platform
	strategy  Strategy
	logger    zerolog.Logger
	exclusive bool

	topo     topology.Topology
	nodeCPUs [][]int // ascending, per node
	ordinary [][]int // nodeCPUs minus isolated CPUs

	// indexed by CPU, sized MaxCPU+1 at construction
	isolated []bool
	claimed  []atomic.Bool

	nodeCounters  []atomic.Uint64
	total         atomic.Uint64
	isolatedCount atomic.Uint64
	roundRobin    atomic.Uint64
}

// Option configures an Allocator
type Option func(*Allocator)

// WithLogger sets the logger used for fallback tracing
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Allocator) { a.logger = logger }
}

// WithExclusiveIsolation makes isolated CPUs single-use: a claimed isolated CPU is
// not handed out again until ReleaseIsolatedCPU returns it.
func WithExclusiveIsolation() Option {
	return func(a *Allocator) { a.exclusive = true }
}

// New snapshots the platform topology and reserves the highest CPU of every node.
// A failed topology query leaves the allocator on a single-node view that serves
// reverse round-robin.
func New(p platform.Platform, s Strategy, opts ...Option) *Allocator {
	a := &Allocator{
		platform: p,
		strategy: s,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	topo, err := p.Topology()
	if err != nil {
		count, cerr := p.CPUCount()
		if cerr != nil || count < 1 {
			count = 1
		}
		a.logger.Debug().Err(err).Int("cpus", count).Msg("topology unavailable, using single-node view")
		topo = topology.SingleNode(count, 0)
	}
	a.topo = topo

	nodes := topo.NodeCount()
	a.nodeCPUs = make([][]int, nodes)
	a.ordinary = make([][]int, nodes)
	a.nodeCounters = make([]atomic.Uint64, nodes)
	a.isolated = make([]bool, topo.MaxCPU()+1)
	a.claimed = make([]atomic.Bool, topo.MaxCPU()+1)

	for node := 0; node < nodes; node++ {
		cpus := topo.NodeCPUs(node)
		a.nodeCPUs[node] = cpus
		if len(cpus) == 0 {
			continue
		}
		a.isolated[cpus[len(cpus)-1]] = true
	}
	for node, cpus := range a.nodeCPUs {
		for _, cpu := range cpus {
			if !a.isolated[cpu] {
				a.ordinary[node] = append(a.ordinary[node], cpu)
			}
		}
	}

	a.logger.Debug().
		Stringer("strategy", s).
		Int("nodes", nodes).
		Bool("numa", topo.Available()).
		Bool("exclusive_isolation", a.exclusive).
		Msg("cpu allocator ready")
	return a
}

// Topology returns the snapshot taken at construction
func (a *Allocator) Topology() topology.Topology { return a.topo }

// Strategy returns the allocator's strategy
func (a *Allocator) Strategy() Strategy { return a.strategy }

// IsIsolated reports whether cpu is reserved for latency-critical threads
func (a *Allocator) IsIsolated(cpu int) bool {
	return cpu >= 0 && cpu < len(a.isolated) && a.isolated[cpu]
}

// IsolatedCPUs returns the reserved CPUs in ascending order
func (a *Allocator) IsolatedCPUs() []int {
	var cpus []int
	for cpu, iso := range a.isolated {
		if iso {
			cpus = append(cpus, cpu)
		}
	}
	return cpus
}

// FreeIsolatedCPUs returns how many isolated CPUs can still be handed out. Without
// exclusive isolation every isolated CPU is always free.
func (a *Allocator) FreeIsolatedCPUs() int {
	free := 0
	for cpu, iso := range a.isolated {
		if iso && (!a.exclusive || !a.claimed[cpu].Load()) {
			free++
		}
	}
	return free
}

// Exclusive reports whether isolated CPUs are single-use
func (a *Allocator) Exclusive() bool { return a.exclusive }

// AllocateOptimalCPU returns a CPU for a thread of the given priority. hint, when
// non-nil, is the address of memory the thread will work on; the CPU is then taken
// from the node backing it. It never fails.
func (a *Allocator) AllocateOptimalCPU(priority Priority, hint unsafe.Pointer) int {
	a.total.Add(1)

	if a.strategy == RoundRobin {
		return a.allocateRoundRobin("strategy")
	}
	if a.topo.NodeCount() <= 1 || !a.topo.Available() {
		return a.allocateRoundRobin("single_node")
	}

	node := a.targetNode(hint)

	if a.latencyCritical(priority) {
		if cpu, ok := a.claimIsolatedOnNode(node); ok {
			a.isolatedCount.Add(1)
			a.record(node, "isolated")
			return cpu
		}
	}
	return a.allocateOrdinary(node)
}

// AllocateCPUOnNode returns an ordinary CPU of node. An unknown node falls back to
// reverse round-robin over all CPUs.
func (a *Allocator) AllocateCPUOnNode(node int) int {
	if node < 0 || node >= a.topo.NodeCount() {
		a.logger.Debug().Int("node", node).Msg("invalid node, falling back to round robin")
		return a.allocateRoundRobin("invalid_node")
	}
	return a.allocateOrdinary(node)
}

// AllocateIsolatedCPU returns an isolated CPU, trying the least-loaded node first
// and then every node in index order.
func (a *Allocator) AllocateIsolatedCPU() (int, error) {
	first := a.LeastLoadedNode()
	if cpu, ok := a.claimIsolatedOnNode(first); ok {
		a.isolatedCount.Add(1)
		a.record(first, "isolated")
		return cpu, nil
	}
	for node := 0; node < a.topo.NodeCount(); node++ {
		if node == first {
			continue
		}
		if cpu, ok := a.claimIsolatedOnNode(node); ok {
			a.isolatedCount.Add(1)
			a.record(node, "isolated")
			return cpu, nil
		}
	}
	metrics.IsolatedCPUUnavailableTotal.Inc()
	return -1, nkerr.NewResourceUnavailableError("allocate_isolated_cpu", "no isolated cpu available").
		WithContext("nodes", a.topo.NodeCount()).
		WithContext("exclusive", a.exclusive)
}

// ReleaseIsolatedCPU returns a claimed isolated CPU. Without exclusive isolation
// nothing is ever claimed and the call is a no-op.
func (a *Allocator) ReleaseIsolatedCPU(cpu int) error {
	if !a.exclusive {
		return nil
	}
	if !a.IsIsolated(cpu) {
		return nkerr.NewInvalidArgumentError("release_isolated_cpu", "cpu is not isolated").WithContext("cpu", cpu)
	}
	if !a.claimed[cpu].CompareAndSwap(true, false) {
		return nkerr.NewInvalidArgumentError("release_isolated_cpu", "isolated cpu is not claimed").WithContext("cpu", cpu)
	}
	metrics.IsolatedCPUsClaimed.Dec()
	return nil
}

// LeastLoadedNode returns the node with the smallest allocation counter; ties go to
// the lowest index. Nodes without CPUs are skipped.
func (a *Allocator) LeastLoadedNode() int {
	best := 0
	var bestLoad uint64
	found := false
	for node := range a.nodeCounters {
		if len(a.nodeCPUs[node]) == 0 {
			continue
		}
		load := a.nodeCounters[node].Load()
		if !found || load < bestLoad {
			best, bestLoad, found = node, load, true
		}
	}
	return best
}

// Stats returns a snapshot of the counters
func (a *Allocator) Stats() Stats {
	s := Stats{
		TotalAllocations:    a.total.Load(),
		IsolatedAllocations: a.isolatedCount.Load(),
		NodeAllocations:     make([]uint64, len(a.nodeCounters)),
	}
	for i := range a.nodeCounters {
		s.NodeAllocations[i] = a.nodeCounters[i].Load()
	}
	return s
}

// ResetCounters zeroes every counter, the round-robin position included. It is not
// synchronized with in-flight allocations and does not release isolated claims.
func (a *Allocator) ResetCounters() {
	a.total.Store(0)
	a.isolatedCount.Store(0)
	a.roundRobin.Store(0)
	for i := range a.nodeCounters {
		a.nodeCounters[i].Store(0)
	}
}

func (a *Allocator) latencyCritical(p Priority) bool {
	switch p {
	case CriticalPath, HighFrequency:
		return true
	case MarketData:
		return a.strategy == IsolatedCritical
	default:
		return false
	}
}

// targetNode resolves hint to its node, or picks the least-loaded node.
func (a *Allocator) targetNode(hint unsafe.Pointer) int {
	if hint == nil || a.strategy == LoadBalanced {
		return a.LeastLoadedNode()
	}
	node, err := a.platform.NodeOfAddress(hint)
	if err != nil || node < 0 || node >= a.topo.NodeCount() {
		a.logger.Debug().Err(err).Int("node", node).Msg("memory hint unresolved, using node 0")
		metrics.CPUAllocationFallbacksTotal.WithLabelValues("hint_unresolved").Inc()
		return 0
	}
	return node
}

// claimIsolatedOnNode scans node's CPUs from the highest index down and returns
// the first isolated one. In exclusive mode the CPU must also be unclaimed.
func (a *Allocator) claimIsolatedOnNode(node int) (int, bool) {
	if node < 0 || node >= len(a.nodeCPUs) {
		return -1, false
	}
	cpus := a.nodeCPUs[node]
	for i := len(cpus) - 1; i >= 0; i-- {
		cpu := cpus[i]
		if !a.isolated[cpu] {
			continue
		}
		if !a.exclusive {
			return cpu, true
		}
		if a.claimed[cpu].CompareAndSwap(false, true) {
			metrics.IsolatedCPUsClaimed.Inc()
			return cpu, true
		}
	}
	return -1, false
}

// allocateOrdinary indexes node's non-isolated CPUs with the node counter.
// A node without CPUs is not charged.
func (a *Allocator) allocateOrdinary(node int) int {
	if len(a.nodeCPUs[node]) == 0 {
		a.logger.Debug().Int("node", node).Msg("node has no cpus, falling back to round robin")
		return a.allocateRoundRobin("no_candidates")
	}
	slot := a.nodeCounters[node].Add(1) - 1

	candidates := a.ordinary[node]
	if len(candidates) == 0 {
		candidates = a.nodeCPUs[node]
		metrics.CPUAllocationFallbacksTotal.WithLabelValues("no_candidates").Inc()
	}

	cpu := candidates[slot%uint64(len(candidates))]
	a.record(node, "ordinary")
	return cpu
}

// allocateRoundRobin issues CPUs from cpuCount-1 downward, wrapping at zero.
func (a *Allocator) allocateRoundRobin(reason string) int {
	metrics.CPUAllocationFallbacksTotal.WithLabelValues(reason).Inc()

	n := a.roundRobin.Add(1) - 1
	count, err := a.platform.CPUCount()
	if err != nil || count < 1 {
		a.logger.Debug().Err(err).Msg("cpu count unavailable, returning cpu 0")
		return 0
	}
	cpu := (count - 1) - int(n%uint64(count))

	node := -1
	if nd, ok := a.topo.NodeOfCPU(cpu); ok {
		node = nd
	}
	a.record(node, "round_robin")
	return cpu
}

func (a *Allocator) record(node int, kind string) {
	metrics.CPUAllocationsTotal.WithLabelValues(strconv.Itoa(node), kind).Inc()
}
