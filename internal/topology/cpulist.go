package topology

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseCPUList parses Linux CPU list format (e.g., "0-3,8-11" or "0,2,4,6").
func ParseCPUList(cpulist string) ([]int, error) {
	var cpus []int

	cpulist = strings.TrimSpace(cpulist)
	if cpulist == "" {
		return cpus, nil
	}

	for _, part := range strings.Split(cpulist, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			// Range format: "0-3"
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}

			start, err1 := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			end, err2 := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("invalid range numbers: %s", part)
			}
			if start < 0 || end < start {
				return nil, fmt.Errorf("invalid range bounds: %s", part)
			}

			for i := start; i <= end; i++ {
				cpus = append(cpus, i)
			}
		} else {
			// Single CPU
			cpu, err := strconv.Atoi(part)
			if err != nil || cpu < 0 {
				return nil, fmt.Errorf("invalid cpu number: %s", part)
			}
			cpus = append(cpus, cpu)
		}
	}

	return cpus, nil
}

// FormatCPUList renders cpus in Linux CPU list format, collapsing runs into ranges.
func FormatCPUList(cpus []int) string {
	if len(cpus) == 0 {
		return ""
	}
	sorted := append([]int(nil), cpus...)
	sort.Ints(sorted)

	var parts []string
	start, prev := sorted[0], sorted[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, cpu := range sorted[1:] {
		if cpu == prev {
			continue
		}
		if cpu == prev+1 {
			prev = cpu
			continue
		}
		flush()
		start, prev = cpu, cpu
	}
	flush()
	return strings.Join(parts, ",")
}
