// Package pinning ties the CPU allocator to thread binding: a goroutine asks for a
// CPU, locks itself to its OS thread and binds that thread to the CPU.
//
// A bound thread keeps its affinity for its whole life. Pinned goroutines are
// expected to return without calling runtime.UnlockOSThread so the runtime retires
// the thread instead of handing a pinned thread to other goroutines.
package pinning

import (
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/23skdu/numakit/internal/cpualloc"
	nkerr "github.com/23skdu/numakit/internal/errors"
	"github.com/23skdu/numakit/internal/metrics"
	"github.com/23skdu/numakit/internal/platform"
)

// Pinned describes the calling thread after a successful pin
type Pinned struct {
	CPU      int
	Node     int // -1 when the CPU is outside the topology
	ThreadID platform.ThreadID
	Isolated bool
	Bound    bool // false only for best-effort workers whose binding failed

	claim *claim // set by PinIsolated, shared by every copy of the handle
}

// claim is one isolated CPU grant. It can be returned once.
type claim struct {
	released atomic.Bool
}

// Pinner allocates CPUs and binds the calling thread to them
type Pinner struct {
	alloc      *cpualloc.Allocator
	platform   platform.Platform
	logger     zerolog.Logger
	bestEffort bool
}

// Option configures a Pinner
type Option func(*Pinner)

// WithLogger sets the pinner logger
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pinner) { p.logger = logger }
}

// WithBestEffort lets group workers run unpinned when binding fails instead of
// failing the group
func WithBestEffort() Option {
	return func(p *Pinner) { p.bestEffort = true }
}

// New returns a Pinner. alloc should have been built over the same platform.
func New(alloc *cpualloc.Allocator, p platform.Platform, opts ...Option) *Pinner {
	pn := &Pinner{
		alloc:    alloc,
		platform: p,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(pn)
	}
	return pn
}

// Allocator returns the CPU allocator used by the pinner
func (p *Pinner) Allocator() *cpualloc.Allocator { return p.alloc }

// Pin selects a CPU for priority, colocated with hint when it is non-nil, and binds
// the calling thread to it.
func (p *Pinner) Pin(priority cpualloc.Priority, hint unsafe.Pointer) (Pinned, error) {
	cpu := p.alloc.AllocateOptimalCPU(priority, hint)
	return p.bind(cpu, false)
}

// PinOnNode binds the calling thread to an ordinary CPU of node
func (p *Pinner) PinOnNode(node int) (Pinned, error) {
	return p.bind(p.alloc.AllocateCPUOnNode(node), false)
}

// PinIsolated claims an isolated CPU and binds the calling thread to it. The claim is
// returned on bind failure; otherwise the caller gives it back with Release.
func (p *Pinner) PinIsolated() (Pinned, error) {
	cpu, err := p.alloc.AllocateIsolatedCPU()
	if err != nil {
		return Pinned{CPU: -1, Node: -1}, err
	}
	w, err := p.bind(cpu, true)
	if err != nil {
		w.claim.released.Store(true)
		if rerr := p.alloc.ReleaseIsolatedCPU(cpu); rerr != nil {
			p.logger.Warn().Err(rerr).Int("cpu", cpu).Msg("failed to return isolated cpu")
		}
		return w, err
	}
	return w, nil
}

// Release returns the isolated CPU claimed by PinIsolated. The thread binding is
// left in place. A handle gives its CPU back once; releasing it again, through any
// copy, fails without touching a later claim on the same CPU.
func (p *Pinner) Release(w Pinned) error {
	if w.claim == nil {
		return nil
	}
	if !w.claim.released.CompareAndSwap(false, true) {
		return nkerr.NewInvalidArgumentError("release", "isolated cpu already released").WithContext("cpu", w.CPU)
	}
	return p.alloc.ReleaseIsolatedCPU(w.CPU)
}

func (p *Pinner) bind(cpu int, claimed bool) (Pinned, error) {
	node := -1
	if nd, ok := p.alloc.Topology().NodeOfCPU(cpu); ok {
		node = nd
	}
	w := Pinned{
		CPU:      cpu,
		Node:     node,
		Isolated: p.alloc.IsIsolated(cpu),
	}
	if claimed {
		w.claim = &claim{}
	}

	if err := p.platform.BindCurrentThread(cpu); err != nil {
		metrics.ThreadBindingsTotal.WithLabelValues("error").Inc()
		p.logger.Debug().Err(err).Int("cpu", cpu).Msg("thread binding failed")
		typ := nkerr.TypeOf(err)
		if typ == "" {
			typ = nkerr.ErrorTypeOS
		}
		return w, nkerr.Wrap(err, typ, "pin", "failed to bind thread").WithContext("cpu", cpu)
	}
	metrics.ThreadBindingsTotal.WithLabelValues("ok").Inc()

	w.Bound = true
	w.ThreadID = p.platform.CurrentThreadID()
	p.logger.Debug().
		Int("cpu", cpu).
		Int("node", node).
		Int("tid", int(w.ThreadID)).
		Bool("isolated", w.Isolated).
		Msg("thread pinned")
	return w, nil
}
