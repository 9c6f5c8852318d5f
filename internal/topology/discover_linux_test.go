//go:build linux

package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNumaLibrary struct {
	available bool
	nodes     []int
}

func (l *mockNumaLibrary) Available() bool { return l.available }
func (l *mockNumaLibrary) Nodes() []int    { return l.nodes }

// withFakeSysfs points discovery at a temporary sysfs tree and a mocked NUMA library.
func withFakeSysfs(t *testing.T, lib numaLibrary, files map[string]string) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	oldRoot, oldLib := sysfsRoot, numaLib
	sysfsRoot, numaLib = root, lib
	t.Cleanup(func() {
		sysfsRoot, numaLib = oldRoot, oldLib
	})
}

func TestDiscoverPlatform_TwoNodes(t *testing.T) {
	withFakeSysfs(t, &mockNumaLibrary{available: true, nodes: []int{0, 1}}, map[string]string{
		"node/node0/cpulist": "0-7\n",
		"node/node0/meminfo": "Node 0 MemTotal:       16777216 kB\nNode 0 MemFree:        1024 kB\n",
		"node/node1/cpulist": "8-15\n",
		"node/node1/meminfo": "Node 1 MemTotal:        8388608 kB\n",
	})

	topo, err := discoverPlatform(16)
	require.NoError(t, err)
	assert.True(t, topo.Available())
	assert.Equal(t, 2, topo.NodeCount())
	assert.Equal(t, []int{8, 9, 10, 11, 12, 13, 14, 15}, topo.NodeCPUs(1))
	assert.Equal(t, uint64(16384), topo.NodeMemoryMB(0))
	assert.Equal(t, uint64(8192), topo.NodeMemoryMB(1))
	require.NoError(t, topo.Validate())
}

func TestDiscoverPlatform_SparseNodeIDs(t *testing.T) {
	withFakeSysfs(t, &mockNumaLibrary{available: true, nodes: []int{0, 2}}, map[string]string{
		"node/node0/cpulist": "0-1",
		"node/node2/cpulist": "2-3",
	})

	topo, err := discoverPlatform(4)
	require.NoError(t, err)
	assert.Equal(t, 3, topo.NodeCount(), "node count is highest node id + 1")
	assert.Empty(t, topo.NodeCPUs(1))
	node, ok := topo.NodeOfCPU(3)
	assert.True(t, ok)
	assert.Equal(t, 2, node)
	assert.Equal(t, uint64(0), topo.NodeMemoryMB(2), "missing meminfo leaves memory unknown")
}

func TestDiscoverPlatform_Unavailable(t *testing.T) {
	withFakeSysfs(t, &mockNumaLibrary{available: false}, nil)

	_, err := discoverPlatform(4)
	assert.ErrorIs(t, err, errNUMAUnavailable)
}

func TestDiscoverPlatform_MalformedCPUList(t *testing.T) {
	withFakeSysfs(t, &mockNumaLibrary{available: true, nodes: []int{0}}, map[string]string{
		"node/node0/cpulist": "zero-three",
	})

	_, err := discoverPlatform(4)
	assert.Error(t, err)
}

func TestDiscoverPlatform_OverlappingNodesRejected(t *testing.T) {
	withFakeSysfs(t, &mockNumaLibrary{available: true, nodes: []int{0, 1}}, map[string]string{
		"node/node0/cpulist": "0-3",
		"node/node1/cpulist": "3-5",
	})

	_, err := discoverPlatform(6)
	assert.Error(t, err)
}

func TestOnlineCPUs_FromSysfs(t *testing.T) {
	withFakeSysfs(t, &mockNumaLibrary{}, map[string]string{
		"cpu/online": "0-5,8\n",
	})
	assert.Equal(t, 7, onlineCPUs())
}

func TestNodeMemTotalMB_MissingFile(t *testing.T) {
	_, ok := nodeMemTotalMB(filepath.Join(t.TempDir(), "meminfo"))
	assert.False(t, ok)
}
