package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/23skdu/numakit/internal/config"
	"github.com/23skdu/numakit/internal/cpualloc"
	"github.com/23skdu/numakit/internal/health"
	"github.com/23skdu/numakit/internal/logging"
	"github.com/23skdu/numakit/internal/platform"
)

var errUsage = errors.New("usage: numakit [-env FILE] [-simulate NxC] [-strategy S] [-metrics ADDR] [-log-level L] topology|allocate|demo|bench|health [flags]")

// app carries what every subcommand needs
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	platform platform.Platform
	out      io.Writer
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("numakit", flag.ContinueOnError)
	global.SetOutput(os.Stderr)
	envFile := global.String("env", ".env", "Optional dotenv file with NUMAKIT_* settings")
	simulate := global.String("simulate", "", "Simulate a NODESxCPUS layout (e.g. 2x8) instead of the host")
	strategy := global.String("strategy", "", "CPU allocation strategy: round_robin, numa_local, load_balanced, isolated_critical")
	metricsAddr := global.String("metrics", "", "Address to serve Prometheus metrics on")
	logLevel := global.String("log-level", "", "Log level: debug, info, warn, error")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		return errUsage
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *simulate != "" {
		cfg.Simulate = *simulate
	}
	if *strategy != "" {
		cfg.Strategy = *strategy
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging())
	if err != nil {
		return err
	}
	p, err := newPlatform(cfg, logger)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, logger: logger, platform: p, out: out}

	if cfg.MetricsAddr != "" {
		srv, err := serveMetrics(cfg.MetricsAddr, logger, a.healthManager())
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
	}

	switch rest[0] {
	case "topology":
		return a.topology(rest[1:])
	case "allocate":
		return a.allocate(rest[1:])
	case "demo":
		return a.demo(rest[1:])
	case "bench":
		return a.bench(rest[1:])
	case "health":
		return a.health(rest[1:])
	default:
		return fmt.Errorf("unknown command %q: %w", rest[0], errUsage)
	}
}

func newPlatform(cfg config.Config, logger zerolog.Logger) (platform.Platform, error) {
	topo, simulated, err := cfg.SimulatedTopology()
	if err != nil {
		return nil, err
	}
	if simulated {
		logger.Info().Str("layout", cfg.Simulate).Msg("using simulated platform")
		return platform.NewStatic(topo), nil
	}
	return platform.NewHost(platform.WithHostLogger(logger)), nil
}

func (a *app) newCPUAllocator() *cpualloc.Allocator {
	opts := []cpualloc.Option{cpualloc.WithLogger(a.logger)}
	if a.cfg.ExclusiveIsolation {
		opts = append(opts, cpualloc.WithExclusiveIsolation())
	}
	return cpualloc.New(a.platform, a.cfg.StrategyValue(), opts...)
}

// serveMetrics starts the /metrics and /healthz endpoints in the background
func serveMetrics(addr string, logger zerolog.Logger, hm *health.HealthManager) (*http.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", hm.HTTPHandler())
	srv := &http.Server{Handler: mux}

	logger.Info().Str("address", lis.Addr().String()).Msg("Starting metrics server")
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv, nil
}
