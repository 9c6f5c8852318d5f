//go:build !linux && !windows && !darwin

package topology

// hostMemoryMB is unknown on this platform; node memory is omitted.
func hostMemoryMB() uint64 {
	return 0
}
