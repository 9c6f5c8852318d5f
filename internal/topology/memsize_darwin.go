//go:build darwin

package topology

import "golang.org/x/sys/unix"

func hostMemoryMB() uint64 {
	size, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	return size / (1024 * 1024)
}
