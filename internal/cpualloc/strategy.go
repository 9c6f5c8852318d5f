package cpualloc

import (
	"fmt"
	"strings"
)

// Strategy selects the default bias of an allocator
type Strategy int

const (
	// RoundRobin issues CPUs from the highest index downward, ignoring nodes
	RoundRobin Strategy = iota
	// NUMALocal co-locates with the memory hint, else picks the least-loaded node
	NUMALocal
	// LoadBalanced ignores memory hints and always picks the least-loaded node
	LoadBalanced
	// IsolatedCritical additionally routes MarketData threads to isolated CPUs
	IsolatedCritical
)

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round_robin"
	case NUMALocal:
		return "numa_local"
	case LoadBalanced:
		return "load_balanced"
	case IsolatedCritical:
		return "isolated_critical"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy converts a configuration string to a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "round_robin", "roundrobin":
		return RoundRobin, nil
	case "numa_local", "numalocal", "":
		return NUMALocal, nil
	case "load_balanced", "loadbalanced":
		return LoadBalanced, nil
	case "isolated_critical", "isolatedcritical":
		return IsolatedCritical, nil
	default:
		return NUMALocal, fmt.Errorf("invalid allocation strategy: %s", s)
	}
}

// Priority classifies a thread's latency sensitivity
type Priority int

const (
	Normal Priority = iota
	HighFrequency
	MarketData
	CriticalPath
)

func (p Priority) String() string {
	switch p {
	case Normal:
		return "normal"
	case HighFrequency:
		return "high_frequency"
	case MarketData:
		return "market_data"
	case CriticalPath:
		return "critical_path"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a command-line string to a Priority
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "normal", "":
		return Normal, nil
	case "high_frequency", "hf":
		return HighFrequency, nil
	case "market_data", "md":
		return MarketData, nil
	case "critical_path", "critical":
		return CriticalPath, nil
	default:
		return Normal, fmt.Errorf("invalid thread priority: %s", s)
	}
}
