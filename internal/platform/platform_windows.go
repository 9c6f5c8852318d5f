//go:build windows

package platform

import (
	"math/bits"
	"unsafe"

	"golang.org/x/sys/windows"

	nkerr "github.com/23skdu/numakit/internal/errors"
)

var (
	kernel32                      = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinityMask     = kernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentProcessorNumber = kernel32.NewProc("GetCurrentProcessorNumber")
	procGetNumaProcessorNode      = kernel32.NewProc("GetNumaProcessorNode")
	procGetNumaHighestNodeNumber  = kernel32.NewProc("GetNumaHighestNodeNumber")
	procVirtualAllocExNuma        = kernel32.NewProc("VirtualAllocExNuma")
	procK32QueryWorkingSetEx      = kernel32.NewProc("K32QueryWorkingSetEx")
)

const (
	threadSetInformation   = 0x0020
	threadQueryInformation = 0x0040
)

// workingSetExInformation mirrors PSAPI_WORKING_SET_EX_INFORMATION.
type workingSetExInformation struct {
	VirtualAddress    uintptr
	VirtualAttributes uintptr
}

func affinityMask(op string, cpus []int) (uintptr, error) {
	var mask uintptr
	for _, cpu := range cpus {
		if cpu >= bits.UintSize {
			return 0, nkerr.NewInvalidArgumentError(op, "cpu outside the single processor group").WithContext("cpu", cpu)
		}
		mask |= uintptr(1) << uint(cpu)
	}
	return mask, nil
}

func setAffinity(op string, h windows.Handle, cpus []int) error {
	mask, err := affinityMask(op, cpus)
	if err != nil {
		return err
	}
	prev, _, callErr := procSetThreadAffinityMask.Call(uintptr(h), mask)
	if prev == 0 {
		return nkerr.WrapOSError(callErr, "SetThreadAffinityMask", "failed to set thread affinity").
			WithContext("mask", mask)
	}
	return nil
}

func bindCurrent(cpu int) error {
	return setAffinity("bind_current_thread", windows.CurrentThread(), []int{cpu})
}

func bindThread(tid ThreadID, cpu int) error {
	h, err := windows.OpenThread(threadSetInformation|threadQueryInformation, false, uint32(tid))
	if err != nil {
		return nkerr.WrapOSError(err, "OpenThread", "failed to open thread").WithContext("tid", int(tid))
	}
	defer windows.CloseHandle(h)
	return setAffinity("bind_thread", h, []int{cpu})
}

func bindCurrentToNode(_ int, cpus []int) error {
	return setAffinity("bind_current_thread_to_node", windows.CurrentThread(), cpus)
}

func currentThreadID() ThreadID {
	return ThreadID(windows.GetCurrentThreadId())
}

func currentCPU() (int, error) {
	n, _, _ := procGetCurrentProcessorNumber.Call()
	return int(uint32(n)), nil
}

func numaAvailable() bool {
	var highest uint32
	ret, _, _ := procGetNumaHighestNodeNumber.Call(uintptr(unsafe.Pointer(&highest)))
	return ret != 0 && highest > 0
}

func currentNode() (int, error) {
	if !numaAvailable() {
		return 0, nkerr.NewUnsupportedError("current_numa_node", "NUMA not available")
	}
	cpu, _ := currentCPU()
	var node uint8
	ret, _, err := procGetNumaProcessorNode.Call(uintptr(cpu), uintptr(unsafe.Pointer(&node)))
	if ret == 0 {
		return 0, nkerr.WrapOSError(err, "GetNumaProcessorNode", "failed to read current node")
	}
	return int(node), nil
}

func nodeOfAddress(p unsafe.Pointer) (int, error) {
	if !numaAvailable() {
		return 0, nkerr.NewUnsupportedError("numa_node_of_memory", "NUMA not available")
	}
	info := workingSetExInformation{VirtualAddress: uintptr(p)}
	ret, _, err := procK32QueryWorkingSetEx.Call(
		uintptr(windows.CurrentProcess()),
		uintptr(unsafe.Pointer(&info)),
		unsafe.Sizeof(info))
	if ret == 0 {
		return 0, nkerr.WrapOSError(err, "QueryWorkingSetEx", "failed to query page node")
	}
	if info.VirtualAttributes&1 == 0 {
		return 0, nkerr.NewResourceUnavailableError("numa_node_of_memory", "page not resident").
			WithContext("address", uintptr(p))
	}
	return int((info.VirtualAttributes >> 16) & 0x3f), nil
}

func allocOnNode(size, node int) ([]byte, error) {
	addr, _, err := procVirtualAllocExNuma.Call(
		uintptr(windows.CurrentProcess()),
		0,
		uintptr(size),
		windows.MEM_RESERVE|windows.MEM_COMMIT,
		windows.PAGE_READWRITE,
		uintptr(node))
	if addr == 0 {
		return nil, nkerr.WrapOSError(err, "VirtualAllocExNuma", "failed to allocate memory on node").
			WithContext("size", size).
			WithContext("node", node)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func freeOnNode(b []byte) error {
	if err := windows.VirtualFree(uintptr(unsafe.Pointer(&b[0])), 0, windows.MEM_RELEASE); err != nil {
		return nkerr.WrapOSError(err, "VirtualFree", "failed to release memory")
	}
	return nil
}
