package topology

import (
	"sync"

	nkerr "github.com/23skdu/numakit/internal/errors"
)

var (
	cpuCountOnce  sync.Once
	cpuCountValue int
)

// CPUCount returns the number of online logical CPUs. The value is computed once per process.
// A count of zero is reported as a device-not-found error.
func CPUCount() (int, error) {
	cpuCountOnce.Do(func() {
		cpuCountValue = onlineCPUs()
	})
	if cpuCountValue <= 0 {
		return 0, nkerr.NewDeviceNotFoundError("cpu_count", "cpu count query returned zero")
	}
	return cpuCountValue, nil
}

// Discover builds a fresh snapshot of the host's NUMA layout.
// A host without NUMA support yields a single node holding every CPU with
// Available() == false; only a failed CPU count is reported as an error.
func Discover() (Topology, error) {
	cpus, err := CPUCount()
	if err != nil {
		return Topology{}, err
	}

	topo, err := discoverPlatform(cpus)
	if err != nil || topo.NodeCount() == 0 || topo.CPUCount() == 0 {
		return SingleNode(cpus, hostMemoryMB()), nil
	}
	return topo, nil
}
