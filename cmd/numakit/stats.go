package main

import (
	"fmt"
	"io"

	"github.com/23skdu/numakit/internal/cpualloc"
)

func printStats(w io.Writer, s cpualloc.Stats) {
	fmt.Fprintln(w, "=== CPU allocation stats ===")
	fmt.Fprintf(w, "Total allocations: %d\n", s.TotalAllocations)
	fmt.Fprintf(w, "Isolated allocations: %d\n", s.IsolatedAllocations)
	for node, count := range s.NodeAllocations {
		fmt.Fprintf(w, "  Node %d: %d\n", node, count)
	}
}
