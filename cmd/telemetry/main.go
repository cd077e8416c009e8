package main

import (
	"context"
	"os"

	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/role"
	"github.com/downfa11-org/xstream/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer util.Sync()

	cfg, err := config.LoadClientConfig(os.Args[1:])
	if err != nil {
		util.Error("Failed to load config: %v", err)
		return 2
	}
	r, err := role.ParseRole(cfg.Role)
	if err != nil {
		util.Error("%v", err)
		return 2
	}

	ctx, stop := util.SignalContext(context.Background())
	defer stop()

	backend, err := role.OpenBackend(ctx, cfg)
	if err != nil {
		util.Error("Failed to connect: %v", err)
		return 1
	}
	defer func() {
		if err := backend.Close(); err != nil {
			util.Warn("close backend: %v", err)
		}
	}()

	runner, err := role.NewRunner(r, cfg, backend)
	if err != nil {
		util.Error("%v", err)
		return 2
	}
	util.Info("Running as %s on stream '%s'", r, cfg.StreamKey)
	if err := runner.Run(ctx); err != nil {
		util.Error("[%s] %v", r, err)
		return 1
	}
	return 0
}
