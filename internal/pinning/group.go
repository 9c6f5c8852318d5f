package pinning

import (
	"context"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/23skdu/numakit/internal/cpualloc"
	"github.com/23skdu/numakit/internal/metrics"
)

// Worker is the body of a pinned goroutine. It runs on the thread described by w.
type Worker func(ctx context.Context, w Pinned) error

// Group runs workers on pinned threads. The first worker error (a failed pin
// included) cancels the group context.
type Group struct {
	pinner *Pinner
	g      *errgroup.Group
	ctx    context.Context
}

// NewGroup returns a group bound to ctx and the derived context handed to workers
func (p *Pinner) NewGroup(ctx context.Context) (*Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{pinner: p, g: g, ctx: gctx}, gctx
}

// Go starts fn on a thread pinned for priority, colocated with hint when non-nil
func (g *Group) Go(priority cpualloc.Priority, hint unsafe.Pointer, fn Worker) {
	g.run(func() (Pinned, error) { return g.pinner.Pin(priority, hint) }, fn)
}

// GoOnNode starts fn on a thread pinned to an ordinary CPU of node
func (g *Group) GoOnNode(node int, fn Worker) {
	g.run(func() (Pinned, error) { return g.pinner.PinOnNode(node) }, fn)
}

// GoIsolated starts fn on an isolated CPU; the claim is returned when fn exits
func (g *Group) GoIsolated(fn Worker) {
	g.run(g.pinner.PinIsolated, fn)
}

// Wait blocks until every worker has returned and reports the first error
func (g *Group) Wait() error {
	return g.g.Wait()
}

func (g *Group) run(pin func() (Pinned, error), fn Worker) {
	g.g.Go(func() error {
		w, err := pin()
		if err != nil {
			if !g.pinner.bestEffort {
				return err
			}
			g.pinner.logger.Warn().Err(err).Int("cpu", w.CPU).Msg("running worker unpinned")
			return fn(g.ctx, Pinned{CPU: -1, Node: -1})
		}
		metrics.PinnedWorkers.Inc()
		defer metrics.PinnedWorkers.Dec()
		defer func() {
			if err := g.pinner.Release(w); err != nil {
				g.pinner.logger.Warn().Err(err).Int("cpu", w.CPU).Msg("failed to release isolated cpu")
			}
		}()
		return fn(g.ctx, w)
	})
}
