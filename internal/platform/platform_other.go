//go:build !linux && !windows

package platform

import (
	"unsafe"

	nkerr "github.com/23skdu/numakit/internal/errors"
)

func bindCurrent(int) error {
	return nkerr.NewUnsupportedError("bind_current_thread", "thread affinity not supported on this platform")
}

func bindThread(ThreadID, int) error {
	return nkerr.NewUnsupportedError("bind_thread", "thread affinity not supported on this platform")
}

func bindCurrentToNode(int, []int) error {
	return nkerr.NewUnsupportedError("bind_current_thread_to_node", "thread affinity not supported on this platform")
}

func currentThreadID() ThreadID { return 0 }

func currentCPU() (int, error) {
	return 0, nkerr.NewUnsupportedError("current_cpu", "current cpu not exposed on this platform")
}

// A single-node machine: every thread and page is on node 0.
func currentNode() (int, error) { return 0, nil }

func nodeOfAddress(unsafe.Pointer) (int, error) { return 0, nil }

func allocOnNode(int, int) ([]byte, error) {
	return nil, nkerr.NewUnsupportedError("alloc_on_node", "NUMA memory binding not supported on this platform")
}

func freeOnNode([]byte) error {
	return nkerr.NewUnsupportedError("free_on_node", "NUMA memory binding not supported on this platform")
}
