package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nkerr "github.com/23skdu/numakit/internal/errors"
	"github.com/23skdu/numakit/internal/metrics"
	"github.com/23skdu/numakit/internal/numamem"
	"github.com/23skdu/numakit/internal/platform"
	"github.com/23skdu/numakit/internal/topology"
)

// runSimulated runs numakit against a simulated 2x8 layout and returns stdout
func runSimulated(t *testing.T, args ...string) (string, error) {
	t.Helper()
	base := []string{
		"-env", filepath.Join(t.TempDir(), "absent.env"),
		"-simulate", "2x8",
		"-log-level", "error",
	}
	var out bytes.Buffer
	err := run(append(base, args...), &out)
	return out.String(), err
}

func TestTopologyJSON(t *testing.T) {
	out, err := runSimulated(t, "topology", "-json")
	require.NoError(t, err)

	var report topologyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.NUMAAvailable)
	assert.Equal(t, 2, report.NodeCount)
	assert.Equal(t, 16, report.CPUCount)
	require.Len(t, report.Nodes, 2)
	assert.Equal(t, "0-7", report.Nodes[0].CPUs)
	assert.Equal(t, "8-15", report.Nodes[1].CPUs)
	assert.Equal(t, 7, report.Nodes[0].IsolatedCPU)
	assert.Equal(t, 15, report.Nodes[1].IsolatedCPU)
	assert.Equal(t, uint64(4096), report.Nodes[1].MemoryMB)
}

func TestTopologyText(t *testing.T) {
	out, err := runSimulated(t, "topology")
	require.NoError(t, err)
	assert.Contains(t, out, "2 NUMA nodes")
	assert.Contains(t, out, "Node 1: CPUs 8-15")
	assert.Contains(t, out, "Node 0 reserves CPU 7")
	assert.Contains(t, out, "Total CPUs: 16")
}

func TestAllocate(t *testing.T) {
	out, err := runSimulated(t, "allocate", "-n", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "#0: cpu 0 node 0\n")
	assert.Contains(t, out, "#1: cpu 8 node 1\n")
	assert.Contains(t, out, "#2: cpu 1 node 0\n")
	assert.Contains(t, out, "#3: cpu 9 node 1\n")
	assert.Contains(t, out, "Total allocations: 4")
}

func TestAllocate_HintNode(t *testing.T) {
	out, err := runSimulated(t, "allocate", "-n", "2", "-priority", "critical", "-hint-node", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "#0: cpu 15 node 1 (isolated)")
	assert.Contains(t, out, "Isolated allocations: 2")
}

func TestHintBuffer_WritesEveryElement(t *testing.T) {
	topo, err := topology.Uniform(2, 8, 4096)
	require.NoError(t, err)
	mem := numamem.New[float64](platform.NewStatic(topo))

	buf, err := hintBuffer(mem, 1)
	require.NoError(t, err)
	require.Len(t, buf, 1024)
	assert.Equal(t, float64(len(buf)-1), buf[len(buf)-1])

	node, err := mem.NodeOf(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, node)
	mem.Deallocate(buf)

	_, err = hintBuffer(mem, 2)
	assert.ErrorIs(t, err, nkerr.ErrInvalidArgument)
}

func TestAllocate_OnNodeAndRoundRobin(t *testing.T) {
	out, err := runSimulated(t, "allocate", "-n", "2", "-node", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "#0: cpu 8 node 1")
	assert.Contains(t, out, "#1: cpu 9 node 1")

	out, err = runSimulated(t, "-strategy", "round_robin", "allocate", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "#0: cpu 15 node 1 (isolated)")
	assert.Contains(t, out, "#1: cpu 14 node 1")
}

func TestAllocate_ExclusiveIsolation(t *testing.T) {
	t.Setenv("NUMAKIT_EXCLUSIVE_ISOLATION", "true")
	out, err := runSimulated(t, "allocate", "-isolated", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "#0: cpu 7 node 0 (isolated)")
	assert.Contains(t, out, "#1: cpu 15 node 1 (isolated)")
	assert.Contains(t, out, "#2: [resource_unavailable]")
}

func TestAllocate_BadPriority(t *testing.T) {
	_, err := runSimulated(t, "allocate", "-priority", "urgent")
	assert.Error(t, err)
}

func TestDemo(t *testing.T) {
	out, err := runSimulated(t, "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Market data thread on isolated CPU 7 (node 0)")
	assert.Contains(t, out, "Processed 10000 ticks")
	assert.Contains(t, out, "Arrow price snapshot: 10000 values on node 0")
	assert.Contains(t, out, "Order thread on")
	assert.Contains(t, out, "Processed 5000 orders")
	assert.Contains(t, out, "5000 valid")
	assert.Contains(t, out, "Isolated allocations: 2")
}

func TestBench(t *testing.T) {
	out, err := runSimulated(t, "bench", "-size-mb", "1", "-passes", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Bench thread on CPU 0 (node 0)")
	assert.Contains(t, out, "local  node  0")
	assert.Contains(t, out, "remote node  1")
	assert.Contains(t, out, "heap   node -1")
	assert.Positive(t, testutil.ToFloat64(metrics.MemoryBandwidthBytesPerSecond.WithLabelValues("local")))

	_, err = runSimulated(t, "bench", "-passes", "0")
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	_, err := runSimulated(t, "-metrics", "127.0.0.1:0", "topology")
	assert.NoError(t, err)
}

func TestUsageErrors(t *testing.T) {
	_, err := runSimulated(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runSimulated(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = runSimulated(t, "-strategy", "fastest", "topology")
	assert.ErrorIs(t, err, nkerr.ErrConfiguration)

	var out bytes.Buffer
	err = run([]string{"-env", filepath.Join(t.TempDir(), "absent.env"), "-simulate", "0x4", "topology"}, &out)
	assert.ErrorIs(t, err, nkerr.ErrConfiguration)
}

func TestHealth(t *testing.T) {
	out, err := runSimulated(t, "health")
	require.NoError(t, err)

	var h struct {
		Status     string                     `json:"status"`
		Components map[string]json.RawMessage `json:"components"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Len(t, h.Components, 4)
}
