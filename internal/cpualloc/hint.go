package cpualloc

import "unsafe"

// Hint returns the address of the first element of buf for use as the memory hint
// of AllocateOptimalCPU, or nil for an empty slice.
func Hint[T any](buf []T) unsafe.Pointer {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(buf))
}
