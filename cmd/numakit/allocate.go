package main

import (
	"flag"
	"fmt"
	"unsafe"

	"github.com/23skdu/numakit/internal/cpualloc"
	"github.com/23skdu/numakit/internal/numamem"
)

func (a *app) allocate(args []string) error {
	fs := flag.NewFlagSet("allocate", flag.ContinueOnError)
	n := fs.Int("n", 8, "Number of CPUs to allocate")
	priorityName := fs.String("priority", "normal", "Thread priority: normal, high_frequency, market_data, critical_path")
	node := fs.Int("node", -1, "Allocate ordinary CPUs of this node instead of using the optimal policy")
	hintNode := fs.Int("hint-node", -1, "Colocate with a buffer allocated on this node")
	isolated := fs.Bool("isolated", false, "Allocate isolated CPUs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	priority, err := cpualloc.ParsePriority(*priorityName)
	if err != nil {
		return err
	}

	alloc := a.newCPUAllocator()
	topo := alloc.Topology()

	var hint unsafe.Pointer
	if *hintNode >= 0 {
		mem := numamem.New[float64](a.platform, numamem.WithLogger(a.logger))
		buf, err := hintBuffer(mem, *hintNode)
		if err != nil {
			return err
		}
		defer mem.Deallocate(buf)
		hint = cpualloc.Hint(buf)
	}

	for i := 0; i < *n; i++ {
		var cpu int
		switch {
		case *isolated:
			cpu, err = alloc.AllocateIsolatedCPU()
			if err != nil {
				fmt.Fprintf(a.out, "#%d: %v\n", i, err)
				continue
			}
		case *node >= 0:
			cpu = alloc.AllocateCPUOnNode(*node)
		default:
			cpu = alloc.AllocateOptimalCPU(priority, hint)
		}
		owner := "?"
		if nd, ok := topo.NodeOfCPU(cpu); ok {
			owner = fmt.Sprint(nd)
		}
		mark := ""
		if alloc.IsIsolated(cpu) {
			mark = " (isolated)"
		}
		fmt.Fprintf(a.out, "#%d: cpu %d node %s%s\n", i, cpu, owner, mark)
	}

	printStats(a.out, alloc.Stats())
	return nil
}

// hintBuffer allocates a buffer on node and writes it, so its pages exist and the
// kernel can report where they live.
func hintBuffer(mem *numamem.Allocator[float64], node int) ([]float64, error) {
	buf, err := mem.AllocateOnNode(1024, node)
	if err != nil {
		return nil, err
	}
	for i := range buf {
		buf[i] = float64(i)
	}
	return buf, nil
}
