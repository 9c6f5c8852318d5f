// Package platform wraps the operating system's thread-affinity and NUMA calls
// behind one interface. The host implementation is chosen by build tags
// (linux, windows, everything else); Static is an in-memory implementation over
// a synthetic topology.
package platform

import (
	"runtime"
	"unsafe"

	"github.com/rs/zerolog"

	nkerr "github.com/23skdu/numakit/internal/errors"
	"github.com/23skdu/numakit/internal/topology"
)

// ThreadID identifies an OS thread (Linux TID, Windows thread id).
type ThreadID int

// Platform is the set of primitives the allocators are built on.
// Every method reports failure through a *errors.StructuredError.
type Platform interface {
	// BindCurrentThread locks the calling goroutine to its OS thread and pins that thread to cpu.
	BindCurrentThread(cpu int) error
	// BindThread pins the OS thread tid to cpu.
	BindThread(tid ThreadID, cpu int) error
	// BindCurrentThreadToNode locks the calling goroutine and pins its thread to every CPU of node.
	BindCurrentThreadToNode(node int) error
	CurrentThreadID() ThreadID
	CPUCount() (int, error)
	Topology() (topology.Topology, error)
	CurrentNode() (int, error)
	CurrentCPU() (int, error)
	// NodeOfAddress reports the node backing the page that contains p.
	NodeOfAddress(p unsafe.Pointer) (int, error)
	// AllocOnNode maps size bytes of page-aligned memory bound to node.
	AllocOnNode(size, node int) ([]byte, error)
	// FreeOnNode releases a slice previously returned by AllocOnNode, unmodified.
	FreeOnNode(b []byte) error
}

// Host is the Platform of the running machine.
type Host struct {
	logger zerolog.Logger
	thread threadOps
}

// threadOps are the calls that wire the calling goroutine to a pinned OS thread.
type threadOps struct {
	lock       func()
	unlock     func()
	bind       func(cpu int) error
	bindToNode func(node int, cpus []int) error
}

func osThreadOps() threadOps {
	return threadOps{
		lock:       runtime.LockOSThread,
		unlock:     runtime.UnlockOSThread,
		bind:       bindCurrent,
		bindToNode: bindCurrentToNode,
	}
}

// HostOption configures a Host
type HostOption func(*Host)

// WithHostLogger sets the logger used for debug tracing of OS calls
func WithHostLogger(logger zerolog.Logger) HostOption {
	return func(h *Host) { h.logger = logger }
}

// NewHost returns the platform of the running machine
func NewHost(opts ...HostOption) *Host {
	h := &Host{logger: zerolog.Nop(), thread: osThreadOps()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ Platform = (*Host)(nil)

// checkCPU validates cpu against the memoized CPU count.
func checkCPU(op string, cpu int) error {
	count, err := topology.CPUCount()
	if err != nil {
		return err
	}
	if cpu < 0 || cpu >= count {
		return nkerr.NewInvalidArgumentError(op, "cpu index out of range").
			WithContext("cpu", cpu).
			WithContext("cpu_count", count)
	}
	return nil
}

// BindCurrentThread pins the calling goroutine's OS thread to cpu.
// The goroutine stays locked to the thread; callers release it with runtime.UnlockOSThread.
// On failure the goroutine is left unlocked.
func (h *Host) BindCurrentThread(cpu int) error {
	if err := checkCPU("bind_current_thread", cpu); err != nil {
		return err
	}
	h.thread.lock()
	if err := h.thread.bind(cpu); err != nil {
		h.thread.unlock()
		return err
	}
	h.logger.Debug().Int("cpu", cpu).Int("tid", int(currentThreadID())).Msg("thread pinned")
	return nil
}

// BindThread pins the OS thread tid to cpu
func (h *Host) BindThread(tid ThreadID, cpu int) error {
	if err := checkCPU("bind_thread", cpu); err != nil {
		return err
	}
	if err := bindThread(tid, cpu); err != nil {
		return err
	}
	h.logger.Debug().Int("cpu", cpu).Int("tid", int(tid)).Msg("thread pinned")
	return nil
}

// BindCurrentThreadToNode pins the calling goroutine's OS thread to the CPUs of node
func (h *Host) BindCurrentThreadToNode(node int) error {
	topo, err := h.Topology()
	if err != nil {
		return err
	}
	cpus := topo.NodeCPUs(node)
	if len(cpus) == 0 {
		return nkerr.NewInvalidArgumentError("bind_current_thread_to_node", "node has no cpus or is out of range").
			WithContext("node", node).
			WithContext("node_count", topo.NodeCount())
	}
	h.thread.lock()
	if err := h.thread.bindToNode(node, cpus); err != nil {
		h.thread.unlock()
		return err
	}
	h.logger.Debug().Int("node", node).Ints("cpus", cpus).Msg("thread pinned to node")
	return nil
}

// CurrentThreadID returns the OS thread id of the calling goroutine's thread
func (h *Host) CurrentThreadID() ThreadID { return currentThreadID() }

// CPUCount returns the memoized online CPU count
func (h *Host) CPUCount() (int, error) { return topology.CPUCount() }

// Topology returns a fresh topology snapshot
func (h *Host) Topology() (topology.Topology, error) { return topology.Discover() }

// CurrentNode returns the NUMA node the calling thread is running on
func (h *Host) CurrentNode() (int, error) { return currentNode() }

// CurrentCPU returns the CPU the calling thread is running on
func (h *Host) CurrentCPU() (int, error) { return currentCPU() }

// NodeOfAddress returns the NUMA node backing p
func (h *Host) NodeOfAddress(p unsafe.Pointer) (int, error) {
	if p == nil {
		return 0, nkerr.NewInvalidArgumentError("numa_node_of_memory", "nil address")
	}
	return nodeOfAddress(p)
}

// AllocOnNode maps size bytes bound to node
func (h *Host) AllocOnNode(size, node int) ([]byte, error) {
	if size <= 0 {
		return nil, nkerr.NewInvalidArgumentError("alloc_on_node", "size must be positive").WithContext("size", size)
	}
	if node < 0 {
		return nil, nkerr.NewInvalidArgumentError("alloc_on_node", "negative node").WithContext("node", node)
	}
	b, err := allocOnNode(size, node)
	if err != nil {
		return nil, err
	}
	h.logger.Debug().Int("size", size).Int("node", node).Msg("node memory mapped")
	return b, nil
}

// FreeOnNode releases memory returned by AllocOnNode
func (h *Host) FreeOnNode(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return freeOnNode(b)
}
