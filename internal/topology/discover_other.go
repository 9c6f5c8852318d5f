//go:build !linux && !windows

package topology

import (
	"errors"
	"runtime"
)

// discoverPlatform has no NUMA source here; Discover falls back to a single node.
// macOS exposes several memory controllers but no NUMA API.
func discoverPlatform(_ int) (Topology, error) {
	return Topology{}, errors.New("NUMA not supported on " + runtime.GOOS)
}

func onlineCPUs() int {
	return runtime.NumCPU()
}
