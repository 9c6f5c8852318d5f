//go:build linux

package topology

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/lrita/numa"
)

// sysfsRoot is swapped for a temporary tree in tests.
var sysfsRoot = "/sys/devices/system"

var numaLib numaLibrary = &realNumaLibrary{}

type numaLibrary interface {
	Available() bool
	Nodes() []int
}

type realNumaLibrary struct{}

func (l *realNumaLibrary) Available() bool {
	return numa.Available()
}

func (l *realNumaLibrary) Nodes() []int {
	var nodes []int
	for word, bits := range numa.NodeMask() {
		for bit := 0; bit < 64; bit++ {
			if bits&(uint64(1)<<uint(bit)) != 0 {
				nodes = append(nodes, word*64+bit)
			}
		}
	}
	return nodes
}

var errNUMAUnavailable = errors.New("NUMA not available")

// discoverPlatform enumerates NUMA nodes reported by the kernel and reads their
// CPU lists and memory sizes from sysfs.
func discoverPlatform(_ int) (Topology, error) {
	if !numaLib.Available() {
		return Topology{}, errNUMAUnavailable
	}
	nodes := numaLib.Nodes()
	if len(nodes) == 0 {
		return Topology{}, errors.New("no NUMA nodes found")
	}

	maxNode := 0
	for _, n := range nodes {
		if n > maxNode {
			maxNode = n
		}
	}

	nodeCPUs := make([][]int, maxNode+1)
	memory := make([]uint64, maxNode+1)
	for _, node := range nodes {
		nodePath := filepath.Join(sysfsRoot, "node", fmt.Sprintf("node%d", node))

		cpuData, err := os.ReadFile(filepath.Join(nodePath, "cpulist"))
		if err != nil {
			// Memory-only nodes may lack a cpulist; keep the node with no CPUs
			continue
		}
		cpus, err := ParseCPUList(string(cpuData))
		if err != nil {
			return Topology{}, fmt.Errorf("node %d: %w", node, err)
		}
		nodeCPUs[node] = cpus

		if mb, ok := nodeMemTotalMB(filepath.Join(nodePath, "meminfo")); ok {
			memory[node] = mb
		}
	}

	return New(nodeCPUs, memory, true)
}

// nodeMemTotalMB reads "Node N MemTotal: X kB" from a per-node meminfo file.
func nodeMemTotalMB(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Node 0 MemTotal: 16318480 kB
		if len(fields) >= 4 && fields[2] == "MemTotal:" {
			kb, err := strconv.ParseUint(fields[3], 10, 64)
			if err != nil {
				return 0, false
			}
			return kb / 1024, true
		}
	}
	return 0, false
}

// onlineCPUs counts CPUs listed in sysfs cpu/online, falling back to the runtime's view.
func onlineCPUs() int {
	data, err := os.ReadFile(filepath.Join(sysfsRoot, "cpu", "online"))
	if err == nil {
		if cpus, err := ParseCPUList(string(data)); err == nil && len(cpus) > 0 {
			return len(cpus)
		}
	}
	return runtime.NumCPU()
}

// hostMemoryMB reads MemTotal from /proc/meminfo.
func hostMemoryMB() uint64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0
			}
			return kb / 1024
		}
	}
	return 0
}
