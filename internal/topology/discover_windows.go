//go:build windows

package topology

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32                    = windows.NewLazySystemDLL("kernel32.dll")
	procGetNumaHighestNodeNumber   = modkernel32.NewProc("GetNumaHighestNodeNumber")
	procGetNumaNodeProcessorMask   = modkernel32.NewProc("GetNumaNodeProcessorMask")
	procGetNumaAvailableMemoryNode = modkernel32.NewProc("GetNumaAvailableMemoryNode")
	procGlobalMemoryStatusEx       = modkernel32.NewProc("GlobalMemoryStatusEx")
)

// discoverPlatform walks NUMA nodes 0..highest through kernel32. Processor masks
// cover the first 64 logical processors (processor group 0).
func discoverPlatform(cpuCount int) (Topology, error) {
	var highest uint32
	ret, _, err := procGetNumaHighestNodeNumber.Call(uintptr(unsafe.Pointer(&highest)))
	if ret == 0 {
		return Topology{}, err
	}

	nodes := int(highest) + 1
	nodeCPUs := make([][]int, nodes)
	memory := make([]uint64, nodes)
	for node := 0; node < nodes; node++ {
		var mask uint64
		ret, _, _ := procGetNumaNodeProcessorMask.Call(uintptr(node), uintptr(unsafe.Pointer(&mask)))
		if ret != 0 {
			for cpu := 0; cpu < 64 && cpu < cpuCount; cpu++ {
				if mask&(uint64(1)<<uint(cpu)) != 0 {
					nodeCPUs[node] = append(nodeCPUs[node], cpu)
				}
			}
		}

		var availableBytes uint64
		ret, _, _ = procGetNumaAvailableMemoryNode.Call(uintptr(node), uintptr(unsafe.Pointer(&availableBytes)))
		if ret != 0 {
			memory[node] = availableBytes / (1024 * 1024)
		}
	}

	return New(nodeCPUs, memory, true)
}

func onlineCPUs() int {
	return runtime.NumCPU()
}

// memoryStatusEx mirrors MEMORYSTATUSEX.
type memoryStatusEx struct {
	length               uint32
	memoryLoad           uint32
	totalPhys            uint64
	availPhys            uint64
	totalPageFile        uint64
	availPageFile        uint64
	totalVirtual         uint64
	availVirtual         uint64
	availExtendedVirtual uint64
}

func hostMemoryMB() uint64 {
	status := memoryStatusEx{}
	status.length = uint32(unsafe.Sizeof(status))
	ret, _, _ := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&status)))
	if ret == 0 {
		return 0
	}
	return status.totalPhys / (1024 * 1024)
}
