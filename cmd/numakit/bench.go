package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/23skdu/numakit/internal/metrics"
	"github.com/23skdu/numakit/internal/numamem"
	"github.com/23skdu/numakit/internal/pinning"
)

type benchResult struct {
	Placement   string
	Node        int
	Bytes       int64
	Elapsed     time.Duration
	BytesPerSec float64
}

var benchSink uint64

// bench measures write bandwidth from a thread on node 0 into memory placed on its
// own node, on the farthest node and on the Go heap.
func (a *app) bench(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	sizeMB := fs.Int("size-mb", a.cfg.BenchSizeMB, "Buffer size in MB")
	passes := fs.Int("passes", a.cfg.BenchPasses, "Write passes over the buffer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sizeMB <= 0 || *passes <= 0 {
		return fmt.Errorf("size-mb and passes must be positive")
	}

	alloc := a.newCPUAllocator()
	topo := alloc.Topology()
	mem := numamem.New[uint64](a.platform, numamem.WithLogger(a.logger))
	pinner := pinning.New(alloc, a.platform, pinning.WithLogger(a.logger), pinning.WithBestEffort())
	count := *sizeMB << 20 / 8

	var results []benchResult
	g, _ := pinner.NewGroup(context.Background())
	g.GoOnNode(0, func(ctx context.Context, w pinning.Pinned) error {
		describe(a.out, "Bench thread", w)

		placements := []struct {
			name string
			node int
		}{{"local", 0}}
		if topo.Available() && topo.NodeCount() > 1 {
			placements = append(placements, struct {
				name string
				node int
			}{"remote", topo.NodeCount() - 1})
		}
		for _, pl := range placements {
			buf, err := mem.AllocateOnNode(count, pl.node)
			if err != nil {
				fmt.Fprintf(a.out, "%s (node %d): skipped: %v\n", pl.name, pl.node, err)
				continue
			}
			results = append(results, measureWrites(pl.name, pl.node, buf, *passes))
			mem.Deallocate(buf)
		}
		results = append(results, measureWrites("heap", -1, make([]uint64, count), *passes))
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "=== Write bandwidth (%d MB x %d passes) ===\n", *sizeMB, *passes)
	for _, r := range results {
		metrics.MemoryBandwidthBytesPerSecond.WithLabelValues(r.Placement).Set(r.BytesPerSec)
		fmt.Fprintf(a.out, "%-6s node %2d: %10.1f MB/s (%s)\n", r.Placement, r.Node, r.BytesPerSec/(1<<20), r.Elapsed)
	}
	return nil
}

func measureWrites(placement string, node int, buf []uint64, passes int) benchResult {
	start := time.Now()
	for p := 0; p < passes; p++ {
		salt := uint64(p)
		for i := range buf {
			buf[i] = uint64(i) ^ salt
		}
	}
	elapsed := time.Since(start)
	benchSink += buf[len(buf)-1]

	bytes := int64(len(buf)) * 8 * int64(passes)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(bytes) / elapsed.Seconds()
	}
	return benchResult{
		Placement:   placement,
		Node:        node,
		Bytes:       bytes,
		Elapsed:     elapsed,
		BytesPerSec: rate,
	}
}
