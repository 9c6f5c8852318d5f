package main

import (
	"context"
	"encoding/json"
	"flag"

	"github.com/23skdu/numakit/internal/health"
	"github.com/23skdu/numakit/internal/numamem"
)

const version = "0.1.0"

func (a *app) healthManager() *health.HealthManager {
	hm := health.NewHealthManager(version, a.logger)
	hm.RegisterChecker(health.NewTopologyChecker(a.platform))
	hm.RegisterChecker(health.NewIsolationChecker(a.newCPUAllocator()))
	hm.RegisterChecker(health.NewPlacementChecker(a.platform))
	hm.RegisterChecker(health.NewMemoryChecker(numamem.New[byte](a.platform), 0))
	return hm
}

func (a *app) health(args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(a.healthManager().CheckHealth(context.Background()))
}
