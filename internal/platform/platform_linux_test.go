//go:build linux

package platform

import (
	"errors"
	"runtime"
	"testing"
	"unsafe"

	"github.com/lrita/numa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	nkerr "github.com/23skdu/numakit/internal/errors"
)

// allowedCPU returns the lowest CPU in the process affinity mask.
func allowedCPU(t *testing.T) int {
	t.Helper()
	var set unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &set))
	for cpu := 0; cpu < 1024; cpu++ {
		if set.IsSet(cpu) {
			return cpu
		}
	}
	t.Fatal("empty affinity mask")
	return -1
}

func TestHost_BindCurrentThreadLinux(t *testing.T) {
	h := NewHost()
	target := allowedCPU(t)
	done := make(chan error, 1)
	go func() {
		// The locked thread exits with the goroutine, taking its affinity with it
		if err := h.BindCurrentThread(target); err != nil {
			done <- err
			return
		}
		var set unix.CPUSet
		if err := unix.SchedGetaffinity(0, &set); err != nil {
			done <- err
			return
		}
		if set.Count() != 1 || !set.IsSet(target) {
			done <- errors.New("affinity mask not restricted to target cpu")
			return
		}
		cpu, err := h.CurrentCPU()
		if err != nil {
			done <- err
			return
		}
		if cpu != target {
			done <- errors.New("thread not running on target cpu")
			return
		}
		done <- nil
	}()
	require.NoError(t, <-done)
}

func TestHost_CurrentThreadID(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	assert.Equal(t, ThreadID(unix.Gettid()), NewHost().CurrentThreadID())
}

func TestHost_CurrentNodeWithoutNUMA(t *testing.T) {
	if numa.Available() {
		t.Skip("host has NUMA")
	}
	_, err := NewHost().CurrentNode()
	assert.ErrorIs(t, err, nkerr.ErrUnsupported)
}

func TestHost_AllocOnNodeZero(t *testing.T) {
	if !numa.Available() {
		t.Skip("NUMA not available")
	}
	h := NewHost()
	b, err := h.AllocOnNode(1<<20, 0)
	require.NoError(t, err)
	require.Len(t, b, 1<<20)
	assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%4096)

	b[0] = 1
	node, err := h.NodeOfAddress(unsafe.Pointer(&b[0]))
	require.NoError(t, err)
	assert.Equal(t, 0, node)

	require.NoError(t, h.FreeOnNode(b))
}

func TestHost_NodeOfUntouchedPage(t *testing.T) {
	if !numa.Available() {
		t.Skip("NUMA not available")
	}
	h := NewHost()
	b, err := h.AllocOnNode(4096, 0)
	require.NoError(t, err)
	defer func() { _ = h.FreeOnNode(b) }()

	_, err = h.NodeOfAddress(unsafe.Pointer(&b[0]))
	var errno unix.Errno
	require.ErrorAs(t, err, &errno)
	assert.Equal(t, unix.ENOENT, errno)
}
