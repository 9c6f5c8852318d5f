// Package health reports whether the host can serve NUMA-aware placement: the
// topology is consistent, isolated CPUs remain, thread placement is observable and
// node-bound memory is within bounds.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// SystemHealth represents the overall health
type SystemHealth struct {
	Status     HealthStatus                `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     time.Duration               `json:"uptime"`
	Version    string                      `json:"version"`
	Components map[string]*ComponentHealth `json:"components"`
	System     *SystemInfo                 `json:"system"`
	CheckCount int64                       `json:"check_count"`
}

// SystemInfo provides runtime information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	NumGoroutines int    `json:"num_goroutines"`
	HeapAlloc     uint64 `json:"heap_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// HealthChecker defines the interface for component health checks
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) *ComponentHealth
}

var (
	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "numakit_health_check_duration_seconds",
			Help:    "Duration of health checks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)
	checkStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "numakit_health_check_status",
			Help: "Health check status (1=healthy, 0.5=degraded, 0=unhealthy)",
		},
		[]string{"component"},
	)
)

// HealthManager runs the registered checkers
type HealthManager struct {
	startTime    time.Time
	version      string
	checkers     []HealthChecker
	logger       zerolog.Logger
	checkCounter atomic.Int64
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string, logger zerolog.Logger) *HealthManager {
	return &HealthManager{
		startTime: time.Now(),
		version:   version,
		logger:    logger,
	}
}

// RegisterChecker registers a health checker. Not safe for use concurrently with
// CheckHealth.
func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.checkers = append(hm.checkers, checker)
	sort.Slice(hm.checkers, func(i, j int) bool { return hm.checkers[i].Name() < hm.checkers[j].Name() })
	hm.logger.Debug().Str("component", checker.Name()).Msg("Registered health checker")
}

// CheckHealth runs every checker. The overall status is the worst component status.
func (hm *HealthManager) CheckHealth(ctx context.Context) *SystemHealth {
	count := hm.checkCounter.Add(1)
	checkStart := time.Now()

	health := &SystemHealth{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Uptime:     time.Since(hm.startTime),
		Version:    hm.version,
		Components: make(map[string]*ComponentHealth, len(hm.checkers)),
		System:     systemInfo(),
		CheckCount: count,
	}

	for _, checker := range hm.checkers {
		start := time.Now()
		ch := checker.Check(ctx)
		checkDuration.WithLabelValues(checker.Name()).Observe(time.Since(start).Seconds())
		checkStatus.WithLabelValues(checker.Name()).Set(statusValue(ch.Status))

		health.Components[checker.Name()] = ch
		if ch.Status == StatusUnhealthy {
			health.Status = StatusUnhealthy
		} else if ch.Status == StatusDegraded && health.Status == StatusHealthy {
			health.Status = StatusDegraded
		}
	}

	hm.logger.Debug().
		Str("overall_status", string(health.Status)).
		Int("components_checked", len(hm.checkers)).
		Dur("duration", time.Since(checkStart)).
		Msg("Health check completed")
	return health
}

// HTTPHandler serves CheckHealth as JSON; unhealthy answers 503
func (hm *HealthManager) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := hm.CheckHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			http.Error(w, "Failed to encode health response", http.StatusInternalServerError)
		}
	})
}

func statusValue(s HealthStatus) float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

func systemInfo() *SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &SystemInfo{
		GoVersion:     runtime.Version(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		NumGoroutines: runtime.NumGoroutine(),
		HeapAlloc:     m.HeapAlloc,
		NumGC:         m.NumGC,
	}
}
