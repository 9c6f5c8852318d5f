package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// CPU Allocator Metrics
// =============================================================================

var (
	// CPUAllocationsTotal counts CPUs handed out by node and kind
	CPUAllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numakit_cpu_allocations_total",
			Help: "Total number of CPUs issued by the allocator",
		},
		[]string{"node", "kind"}, // kind: "ordinary", "isolated", "round_robin"
	)

	// CPUAllocationFallbacksTotal counts degraded allocation decisions
	CPUAllocationFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numakit_cpu_allocation_fallbacks_total",
			Help: "Allocation decisions that fell back to a degraded path",
		},
		[]string{"reason"}, // "strategy", "single_node", "hint_unresolved", "invalid_node", "no_candidates"
	)

	// IsolatedCPUsClaimed tracks isolated CPUs currently claimed in exclusive mode
	IsolatedCPUsClaimed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "numakit_isolated_cpus_claimed",
			Help: "Isolated CPUs currently claimed by exclusive allocators",
		},
	)

	// IsolatedCPUUnavailableTotal counts isolated requests that found nothing
	IsolatedCPUUnavailableTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "numakit_isolated_cpu_unavailable_total",
			Help: "Isolated CPU requests rejected because no isolated CPU was free",
		},
	)
)

// =============================================================================
// Thread Pinning Metrics
// =============================================================================

var (
	// ThreadBindingsTotal counts OS thread binding attempts
	ThreadBindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numakit_thread_bindings_total",
			Help: "Total number of thread affinity binding attempts",
		},
		[]string{"status"}, // "ok", "error"
	)

	// PinnedWorkers tracks goroutines currently running on pinned threads
	PinnedWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "numakit_pinned_workers",
			Help: "Workers currently running on a pinned OS thread",
		},
	)
)

// =============================================================================
// NUMA Memory Metrics
// =============================================================================

var (
	// NodeMemoryAllocatedBytesTotal counts bytes allocated by placement path
	NodeMemoryAllocatedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numakit_memory_allocated_bytes_total",
			Help: "Bytes allocated by the NUMA-aware memory allocator",
		},
		[]string{"path"}, // "node", "heap"
	)

	// NodeMemoryLiveBytes tracks off-heap node-bound bytes not yet released
	NodeMemoryLiveBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "numakit_memory_live_bytes",
			Help: "Node-bound bytes currently mapped by the allocator",
		},
	)

	// NodeMemoryFallbacksTotal counts allocations downgraded to the heap
	NodeMemoryFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "numakit_memory_fallbacks_total",
			Help: "Allocations that fell back to ordinary heap memory",
		},
		[]string{"reason"}, // "no_numa", "unknown_cpu", "error", "pointer_type"
	)

	// NodeMemoryReleaseErrorsTotal counts failed releases swallowed by Deallocate
	NodeMemoryReleaseErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "numakit_memory_release_errors_total",
			Help: "Node memory releases that failed",
		},
	)

	// MemoryBandwidthBytesPerSecond records the last bench run by placement
	MemoryBandwidthBytesPerSecond = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "numakit_memory_bandwidth_bytes_per_second",
			Help: "Write bandwidth measured by the memory placement bench",
		},
		[]string{"placement"}, // "local", "remote", "heap"
	)
)
