package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/numakit/internal/cpualloc"
	"github.com/23skdu/numakit/internal/numamem"
	"github.com/23skdu/numakit/internal/pinning"
)

type marketData struct {
	Timestamp uint64
	SymbolID  uint32
	Price     float64
	Volume    uint64
}

type tradeOrder struct {
	OrderID  uint64
	SymbolID uint32
	Price    float64
	Quantity uint64
	Side     byte
}

const (
	demoTicks  = 10000
	demoOrders = 5000
)

// demo walks through a trading engine: a market data thread on an isolated CPU, an
// order thread on a high-frequency CPU, both writing to node-local buffers.
func (a *app) demo(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	alloc := a.newCPUAllocator()
	pinner := pinning.New(alloc, a.platform, pinning.WithLogger(a.logger), pinning.WithBestEffort())
	topo := alloc.Topology()
	fmt.Fprintf(a.out, "=== NUMA topology ===\n%s\n", topo.String())

	ticks := numamem.New[marketData](a.platform, numamem.WithLogger(a.logger))
	orders := numamem.Rebind[tradeOrder](ticks)

	g, _ := pinner.NewGroup(context.Background())
	g.GoIsolated(func(ctx context.Context, w pinning.Pinned) error {
		describe(a.out, "Market data thread", w)
		buf := ticks.Allocate(demoTicks)
		defer ticks.Deallocate(buf)

		start := time.Now()
		changes := 0
		for i := range buf {
			buf[i] = marketData{
				Timestamp: uint64(time.Now().UnixMicro()),
				SymbolID:  uint32(i % 1000),
				Price:     100.0 + float64(i%100)*0.01,
				Volume:    uint64(1000 + i%5000),
			}
			if i > 0 && buf[i].Price != buf[i-1].Price {
				changes++
			}
		}
		elapsed := time.Since(start)
		fmt.Fprintf(a.out, "Processed %d ticks in %s (%d ns/tick, %d price changes)\n",
			len(buf), elapsed, elapsed.Nanoseconds()/int64(len(buf)), changes)

		return a.snapshotPrices(ticks, w, buf)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	g, _ = pinner.NewGroup(context.Background())
	g.Go(cpualloc.HighFrequency, nil, func(ctx context.Context, w pinning.Pinned) error {
		describe(a.out, "Order thread", w)
		buf, err := orders.AllocateLocal(demoOrders)
		if err != nil {
			a.logger.Debug().Err(err).Msg("order buffer not node-local")
			buf = orders.Allocate(demoOrders)
		}
		defer orders.Deallocate(buf)

		start := time.Now()
		valid := 0
		for i := range buf {
			side := byte('S')
			if i%2 == 1 {
				side = 'B'
			}
			buf[i] = tradeOrder{
				OrderID:  uint64(i + 1),
				SymbolID: uint32(i % 500),
				Price:    100.0 + float64(i%50)*0.05,
				Quantity: uint64(100 + i%1000),
				Side:     side,
			}
			if buf[i].Price > 0 && buf[i].Quantity > 0 {
				valid++
			}
		}
		elapsed := time.Since(start)
		fmt.Fprintf(a.out, "Processed %d orders in %s (%d ns/order, %d valid)\n",
			len(buf), elapsed, elapsed.Nanoseconds()/int64(len(buf)), valid)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	printStats(a.out, alloc.Stats())
	return nil
}

func describe(out io.Writer, name string, w pinning.Pinned) {
	if !w.Bound {
		fmt.Fprintf(out, "%s running unpinned\n", name)
		return
	}
	kind := "CPU"
	if w.Isolated {
		kind = "isolated CPU"
	}
	fmt.Fprintf(out, "%s on %s %d (node %d)\n", name, kind, w.CPU, w.Node)
}

// snapshotPrices copies the tick prices into an Arrow column on the worker's node.
func (a *app) snapshotPrices(ticks *numamem.Allocator[marketData], w pinning.Pinned, buf []marketData) error {
	node := w.Node
	if node < 0 {
		node = 0
	}
	mem := memory.NewCheckedAllocator(numamem.NewArrowAllocator(ticks, node))

	b := array.NewFloat64Builder(mem)
	b.Reserve(len(buf))
	for i := range buf {
		b.UnsafeAppend(buf[i].Price)
	}
	prices := b.NewFloat64Array()
	b.Release()

	var sum float64
	for i := 0; i < prices.Len(); i++ {
		sum += prices.Value(i)
	}
	fmt.Fprintf(a.out, "Arrow price snapshot: %d values on node %d, mean %.4f\n", prices.Len(), node, sum/float64(prices.Len()))
	prices.Release()

	if mem.CurrentAlloc() != 0 {
		return fmt.Errorf("arrow snapshot leaked %d bytes", mem.CurrentAlloc())
	}
	return nil
}
