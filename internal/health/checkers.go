package health

import (
	"context"
	"time"

	"github.com/23skdu/numakit/internal/cpualloc"
	"github.com/23skdu/numakit/internal/numamem"
	"github.com/23skdu/numakit/internal/platform"
)

func component(name string, status HealthStatus, message string, meta map[string]interface{}) *ComponentHealth {
	return &ComponentHealth{
		Name:        name,
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
		Metadata:    meta,
	}
}

// TopologyChecker checks that the platform topology is discoverable and consistent.
// A host without NUMA is degraded: every placement falls back to a single node.
type TopologyChecker struct {
	platform platform.Platform
}

func NewTopologyChecker(p platform.Platform) *TopologyChecker {
	return &TopologyChecker{platform: p}
}

func (tc *TopologyChecker) Name() string { return "topology" }

func (tc *TopologyChecker) Check(_ context.Context) *ComponentHealth {
	topo, err := tc.platform.Topology()
	if err != nil {
		return component(tc.Name(), StatusUnhealthy, err.Error(), nil)
	}
	meta := map[string]interface{}{
		"nodes": topo.NodeCount(),
		"cpus":  topo.CPUCount(),
		"numa":  topo.Available(),
	}
	if err := topo.Validate(); err != nil {
		return component(tc.Name(), StatusUnhealthy, err.Error(), meta)
	}
	if !topo.Available() {
		return component(tc.Name(), StatusDegraded, "NUMA not available, single-node placement", meta)
	}
	return component(tc.Name(), StatusHealthy, "NUMA topology consistent", meta)
}

// IsolationChecker reports degraded when no isolated CPU can be handed out
type IsolationChecker struct {
	alloc *cpualloc.Allocator
}

func NewIsolationChecker(a *cpualloc.Allocator) *IsolationChecker {
	return &IsolationChecker{alloc: a}
}

func (ic *IsolationChecker) Name() string { return "isolation" }

func (ic *IsolationChecker) Check(_ context.Context) *ComponentHealth {
	isolated := ic.alloc.IsolatedCPUs()
	free := ic.alloc.FreeIsolatedCPUs()
	meta := map[string]interface{}{
		"isolated_cpus": isolated,
		"free":          free,
		"exclusive":     ic.alloc.Exclusive(),
	}
	if len(isolated) == 0 {
		return component(ic.Name(), StatusUnhealthy, "no isolated cpus", meta)
	}
	if free == 0 {
		return component(ic.Name(), StatusDegraded, "all isolated cpus claimed", meta)
	}
	return component(ic.Name(), StatusHealthy, "isolated cpus available", meta)
}

// PlacementChecker checks that the calling thread's CPU and node are observable
type PlacementChecker struct {
	platform platform.Platform
}

func NewPlacementChecker(p platform.Platform) *PlacementChecker {
	return &PlacementChecker{platform: p}
}

func (pc *PlacementChecker) Name() string { return "placement" }

func (pc *PlacementChecker) Check(_ context.Context) *ComponentHealth {
	cpu, err := pc.platform.CurrentCPU()
	if err != nil {
		return component(pc.Name(), StatusDegraded, "current cpu not observable: "+err.Error(), nil)
	}
	meta := map[string]interface{}{"cpu": cpu}
	if node, err := pc.platform.CurrentNode(); err == nil {
		meta["node"] = node
	}
	return component(pc.Name(), StatusHealthy, "thread placement observable", meta)
}

// MemoryStatser is implemented by numamem allocators
type MemoryStatser interface {
	Stats() numamem.Stats
}

// MemoryChecker reports node-bound memory and degrades past a byte limit
type MemoryChecker struct {
	mem   MemoryStatser
	limit int64
}

// NewMemoryChecker returns a checker over mem; limit <= 0 disables the bound
func NewMemoryChecker(mem MemoryStatser, limit int64) *MemoryChecker {
	return &MemoryChecker{mem: mem, limit: limit}
}

func (mc *MemoryChecker) Name() string { return "node_memory" }

func (mc *MemoryChecker) Check(_ context.Context) *ComponentHealth {
	st := mc.mem.Stats()
	meta := map[string]interface{}{
		"live_regions": st.LiveRegions,
		"live_bytes":   st.LiveBytes,
		"node_bytes":   st.NodeBytes,
	}
	if mc.limit > 0 && st.LiveBytes > mc.limit {
		meta["limit_bytes"] = mc.limit
		return component(mc.Name(), StatusDegraded, "node-bound memory over limit", meta)
	}
	return component(mc.Name(), StatusHealthy, "node-bound memory within bounds", meta)
}
