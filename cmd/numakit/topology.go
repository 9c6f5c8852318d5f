package main

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/23skdu/numakit/internal/topology"
)

type nodeReport struct {
	Node        int    `json:"node"`
	CPUs        string `json:"cpus"`
	CPUCount    int    `json:"cpu_count"`
	MemoryMB    uint64 `json:"memory_mb"`
	IsolatedCPU int    `json:"isolated_cpu"`
}

type topologyReport struct {
	NUMAAvailable bool         `json:"numa_available"`
	NodeCount     int          `json:"node_count"`
	CPUCount      int          `json:"cpu_count"`
	Nodes         []nodeReport `json:"nodes"`
}

func newTopologyReport(topo topology.Topology, isIsolated func(int) bool) topologyReport {
	r := topologyReport{
		NUMAAvailable: topo.Available(),
		NodeCount:     topo.NodeCount(),
		CPUCount:      topo.CPUCount(),
	}
	for node := 0; node < topo.NodeCount(); node++ {
		cpus := topo.NodeCPUs(node)
		isolated := -1
		for _, cpu := range cpus {
			if isIsolated(cpu) {
				isolated = cpu
			}
		}
		r.Nodes = append(r.Nodes, nodeReport{
			Node:        node,
			CPUs:        topology.FormatCPUList(cpus),
			CPUCount:    len(cpus),
			MemoryMB:    topo.NodeMemoryMB(node),
			IsolatedCPU: isolated,
		})
	}
	return r
}

func (a *app) topology(args []string) error {
	fs := flag.NewFlagSet("topology", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print the topology as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	topo, err := a.platform.Topology()
	if err != nil {
		return err
	}
	alloc := a.newCPUAllocator()
	report := newTopologyReport(topo, alloc.IsIsolated)

	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprint(a.out, topo.String())
	if !topo.Available() {
		fmt.Fprintln(a.out)
	}
	fmt.Fprintf(a.out, "Total CPUs: %d\n", report.CPUCount)
	for _, n := range report.Nodes {
		if n.IsolatedCPU >= 0 {
			fmt.Fprintf(a.out, "  Node %d reserves CPU %d for latency-critical threads\n", n.Node, n.IsolatedCPU)
		}
	}
	return nil
}
