//go:build linux

package platform

import (
	"unsafe"

	"github.com/lrita/numa"
	"golang.org/x/sys/unix"

	nkerr "github.com/23skdu/numakit/internal/errors"
)

const mpolBind = 2 // MPOL_BIND from linux/mempolicy.h

func bindCurrent(cpu int) error {
	return bindThread(0, cpu)
}

func bindThread(tid ThreadID, cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(int(tid), &set); err != nil {
		return nkerr.WrapOSError(err, "sched_setaffinity", "failed to set thread affinity").
			WithContext("cpu", cpu).
			WithContext("tid", int(tid))
	}
	return nil
}

func bindCurrentToNode(node int, cpus []int) error {
	if numa.Available() {
		if err := numa.RunOnNode(node); err == nil {
			return nil
		}
	}
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return nkerr.WrapOSError(err, "sched_setaffinity", "failed to set node affinity").
			WithContext("node", node)
	}
	return nil
}

func currentThreadID() ThreadID {
	return ThreadID(unix.Gettid())
}

func currentCPU() (int, error) {
	cpu, _ := numa.GetCPUAndNode()
	if cpu < 0 {
		return 0, nkerr.NewUnsupportedError("current_cpu", "getcpu failed")
	}
	return cpu, nil
}

func currentNode() (int, error) {
	if !numa.Available() {
		return 0, nkerr.NewUnsupportedError("current_numa_node", "NUMA not available")
	}
	_, node := numa.GetCPUAndNode()
	return node, nil
}

// nodeOfAddress asks move_pages for the node of the page holding p without moving it.
func nodeOfAddress(p unsafe.Pointer) (int, error) {
	if !numa.Available() {
		return 0, nkerr.NewUnsupportedError("numa_node_of_memory", "NUMA not available")
	}
	pages := []unsafe.Pointer{p}
	status := []int32{0}
	_, _, errno := unix.Syscall6(unix.SYS_MOVE_PAGES,
		0,
		1,
		uintptr(unsafe.Pointer(&pages[0])),
		0,
		uintptr(unsafe.Pointer(&status[0])),
		0)
	if errno != 0 {
		return 0, nkerr.WrapOSError(errno, "move_pages", "failed to query page node")
	}
	if status[0] < 0 {
		// -ENOENT: the page has not been touched yet
		return 0, nkerr.WrapOSError(unix.Errno(-status[0]), "move_pages", "page has no node").
			WithContext("address", uintptr(p))
	}
	return int(status[0]), nil
}

func allocOnNode(size, node int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, nkerr.WrapOSError(err, "mmap", "failed to map memory").WithContext("size", size)
	}

	mask := make([]uint64, node/64+1)
	mask[node/64] |= 1 << uint(node%64)
	_, _, errno := unix.Syscall6(unix.SYS_MBIND,
		uintptr(unsafe.Pointer(&mem[0])),
		uintptr(len(mem)),
		mpolBind,
		uintptr(unsafe.Pointer(&mask[0])),
		uintptr(len(mask)*64+1),
		0)
	if errno != 0 {
		_ = unix.Munmap(mem)
		if errno == unix.EINVAL {
			return nil, nkerr.NewInvalidArgumentError("mbind", "node rejected by kernel").WithContext("node", node)
		}
		return nil, nkerr.WrapOSError(errno, "mbind", "failed to bind memory to node").WithContext("node", node)
	}
	return mem, nil
}

func freeOnNode(b []byte) error {
	if err := unix.Munmap(b); err != nil {
		return nkerr.WrapOSError(err, "munmap", "failed to unmap memory")
	}
	return nil
}
