package topology

import (
	"fmt"
	"sort"
	"strings"

	nkerr "github.com/23skdu/numakit/internal/errors"
)

// Topology is an immutable snapshot of the machine's NUMA layout.
// Copies share backing storage, which is never written after construction;
// every accessor hands out copies.
type Topology struct {
	nodeCPUs  [][]int
	cpuNode   map[int]int
	memoryMB  []uint64
	available bool
}

// New builds a topology from per-node CPU lists and per-node memory sizes.
// CPU lists are sorted ascending. A CPU listed under more than one node is rejected.
// available is forced to false for single-node layouts.
func New(nodeCPUs [][]int, memoryMB []uint64, available bool) (Topology, error) {
	if len(nodeCPUs) == 0 {
		return Topology{}, nkerr.NewInvalidArgumentError("topology.new", "at least one node is required")
	}
	if len(memoryMB) > len(nodeCPUs) {
		return Topology{}, nkerr.NewInvalidArgumentError("topology.new", "more memory entries than nodes").
			WithContext("nodes", len(nodeCPUs)).
			WithContext("memory_entries", len(memoryMB))
	}

	t := Topology{
		nodeCPUs:  make([][]int, len(nodeCPUs)),
		cpuNode:   make(map[int]int),
		memoryMB:  make([]uint64, len(nodeCPUs)),
		available: available && len(nodeCPUs) > 1,
	}
	copy(t.memoryMB, memoryMB)

	for node, cpus := range nodeCPUs {
		list := append([]int(nil), cpus...)
		sort.Ints(list)
		for _, cpu := range list {
			if cpu < 0 {
				return Topology{}, nkerr.NewInvalidArgumentError("topology.new", "negative cpu index").
					WithContext("cpu", cpu).WithContext("node", node)
			}
			if owner, dup := t.cpuNode[cpu]; dup {
				return Topology{}, nkerr.NewInvalidArgumentError("topology.new", "cpu listed twice").
					WithContext("cpu", cpu).WithContext("node", node).WithContext("owner", owner)
			}
			t.cpuNode[cpu] = node
		}
		t.nodeCPUs[node] = list
	}
	return t, nil
}

// SingleNode returns the fallback layout: one node owning CPUs [0, cpuCount).
func SingleNode(cpuCount int, memoryMB uint64) Topology {
	cpus := make([]int, cpuCount)
	for i := range cpus {
		cpus[i] = i
	}
	t, _ := New([][]int{cpus}, []uint64{memoryMB}, false)
	return t
}

// Uniform returns a synthetic layout of nodes with contiguous CPU ranges,
// e.g. Uniform(2, 8, 0) maps CPUs 0-7 to node 0 and 8-15 to node 1.
func Uniform(nodes, cpusPerNode int, memoryMBPerNode uint64) (Topology, error) {
	if nodes < 1 || cpusPerNode < 1 {
		return Topology{}, nkerr.NewInvalidArgumentError("topology.uniform", "nodes and cpus per node must be positive").
			WithContext("nodes", nodes).WithContext("cpus_per_node", cpusPerNode)
	}
	nodeCPUs := make([][]int, nodes)
	memory := make([]uint64, nodes)
	for n := 0; n < nodes; n++ {
		nodeCPUs[n] = make([]int, cpusPerNode)
		for i := range nodeCPUs[n] {
			nodeCPUs[n][i] = n*cpusPerNode + i
		}
		memory[n] = memoryMBPerNode
	}
	return New(nodeCPUs, memory, true)
}

// NodeCount returns the number of NUMA nodes (0 only for the zero value)
func (t Topology) NodeCount() int { return len(t.nodeCPUs) }

// Available reports whether the platform exposes more than one NUMA node
func (t Topology) Available() bool { return t.available }

// CPUCount returns the number of CPUs mapped to a node
func (t Topology) CPUCount() int { return len(t.cpuNode) }

// NodeCPUs returns the ascending CPU list of node, or nil for an unknown node
func (t Topology) NodeCPUs(node int) []int {
	if node < 0 || node >= len(t.nodeCPUs) {
		return nil
	}
	return append([]int(nil), t.nodeCPUs[node]...)
}

// NodeOfCPU returns the node owning cpu
func (t Topology) NodeOfCPU(cpu int) (int, bool) {
	node, ok := t.cpuNode[cpu]
	return node, ok
}

// NodeMemoryMB returns the memory of node in megabytes (0 when unknown)
func (t Topology) NodeMemoryMB(node int) uint64 {
	if node < 0 || node >= len(t.memoryMB) {
		return 0
	}
	return t.memoryMB[node]
}

// CPUs returns every mapped CPU in ascending order
func (t Topology) CPUs() []int {
	cpus := make([]int, 0, len(t.cpuNode))
	for cpu := range t.cpuNode {
		cpus = append(cpus, cpu)
	}
	sort.Ints(cpus)
	return cpus
}

// MaxCPU returns the highest mapped CPU index, or -1 when no CPU is mapped
func (t Topology) MaxCPU() int {
	highest := -1
	for cpu := range t.cpuNode {
		if cpu > highest {
			highest = cpu
		}
	}
	return highest
}

// Validate checks that the CPU-to-node map and the node CPU lists are exact inverses.
func (t Topology) Validate() error {
	listed := 0
	for node, cpus := range t.nodeCPUs {
		seen := make(map[int]struct{}, len(cpus))
		for _, cpu := range cpus {
			if _, dup := seen[cpu]; dup {
				return nkerr.NewInvalidArgumentError("topology.validate", "cpu repeated in node list").
					WithContext("cpu", cpu).WithContext("node", node)
			}
			seen[cpu] = struct{}{}
			if owner, ok := t.cpuNode[cpu]; !ok || owner != node {
				return nkerr.NewInvalidArgumentError("topology.validate", "cpu map disagrees with node list").
					WithContext("cpu", cpu).WithContext("node", node)
			}
			listed++
		}
	}
	if listed != len(t.cpuNode) {
		return nkerr.NewInvalidArgumentError("topology.validate", "cpu map has entries missing from node lists").
			WithContext("mapped", len(t.cpuNode)).WithContext("listed", listed)
	}
	return nil
}

// String returns a human-readable representation of the topology.
func (t Topology) String() string {
	if !t.available {
		return fmt.Sprintf("Single NUMA node (no NUMA): CPUs %s, %d MB", FormatCPUList(t.NodeCPUs(0)), t.NodeMemoryMB(0))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d NUMA nodes:\n", t.NodeCount()))
	for node, cpus := range t.nodeCPUs {
		sb.WriteString(fmt.Sprintf("  Node %d: CPUs %s, %d MB\n", node, FormatCPUList(cpus), t.NodeMemoryMB(node)))
	}
	return sb.String()
}
