package platform

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nkerr "github.com/23skdu/numakit/internal/errors"
)

func TestHost_CPUCount(t *testing.T) {
	h := NewHost()
	count, err := h.CPUCount()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)
}

func TestHost_TopologyMatchesCPUCount(t *testing.T) {
	h := NewHost()
	topo, err := h.Topology()
	require.NoError(t, err)
	require.NoError(t, topo.Validate())
	assert.GreaterOrEqual(t, topo.NodeCount(), 1)
}

func TestHost_BindRejectsOutOfRangeCPU(t *testing.T) {
	h := NewHost()
	count, err := h.CPUCount()
	require.NoError(t, err)

	assert.ErrorIs(t, h.BindCurrentThread(count+100), nkerr.ErrInvalidArgument)
	assert.ErrorIs(t, h.BindCurrentThread(-1), nkerr.ErrInvalidArgument)
	assert.ErrorIs(t, h.BindThread(h.CurrentThreadID(), count+100), nkerr.ErrInvalidArgument)
}

func TestHost_BindToUnknownNode(t *testing.T) {
	h := NewHost()
	topo, err := h.Topology()
	require.NoError(t, err)
	assert.ErrorIs(t, h.BindCurrentThreadToNode(topo.NodeCount()+5), nkerr.ErrInvalidArgument)
}

func TestHost_AllocValidation(t *testing.T) {
	h := NewHost()
	_, err := h.AllocOnNode(0, 0)
	assert.ErrorIs(t, err, nkerr.ErrInvalidArgument)
	_, err = h.AllocOnNode(4096, -1)
	assert.ErrorIs(t, err, nkerr.ErrInvalidArgument)
	assert.NoError(t, h.FreeOnNode(nil))
}

func TestHost_NodeOfNilAddress(t *testing.T) {
	_, err := NewHost().NodeOfAddress(nil)
	assert.ErrorIs(t, err, nkerr.ErrInvalidArgument)
}

// countingThreadOps records lock balance and fails binds with bindErr.
type countingThreadOps struct {
	locks, unlocks int
	bindErr        error
}

func (c *countingThreadOps) ops() threadOps {
	return threadOps{
		lock:       func() { c.locks++ },
		unlock:     func() { c.unlocks++ },
		bind:       func(int) error { return c.bindErr },
		bindToNode: func(int, []int) error { return c.bindErr },
	}
}

func TestHost_FailedBindUnlocksThread(t *testing.T) {
	boom := nkerr.WrapOSError(syscall.EINVAL, "sched_setaffinity", "failed to set thread affinity")
	tests := []struct {
		name string
		bind func(h *Host) error
	}{
		{"cpu", func(h *Host) error { return h.BindCurrentThread(0) }},
		{"node", func(h *Host) error { return h.BindCurrentThreadToNode(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing := &countingThreadOps{bindErr: boom}
			h := NewHost()
			h.thread = failing.ops()
			assert.ErrorIs(t, tt.bind(h), nkerr.ErrOS)
			assert.Equal(t, 1, failing.locks)
			assert.Equal(t, 1, failing.unlocks)

			ok := &countingThreadOps{}
			h.thread = ok.ops()
			require.NoError(t, tt.bind(h))
			assert.Equal(t, 1, ok.locks)
			assert.Zero(t, ok.unlocks, "a pinned goroutine stays locked")
		})
	}
}
