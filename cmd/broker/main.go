package main

import (
	"context"
	"os"

	"github.com/downfa11-org/xstream/pkg/broker"
	"github.com/downfa11-org/xstream/pkg/config"
	"github.com/downfa11-org/xstream/pkg/server"
	"github.com/downfa11-org/xstream/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer util.Sync()

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		util.Error("Failed to load config: %v", err)
		return 2
	}
	util.Info("Starting broker: %s", cfg)

	b := broker.NewBroker(cfg)
	if err := b.Open(); err != nil {
		util.Error("Failed to open storage: %v", err)
		return 1
	}
	defer func() {
		if err := b.Close(); err != nil {
			util.Error("Error closing storage: %v", err)
		}
	}()

	ctx, stop := util.SignalContext(context.Background())
	defer stop()
	b.StartMonitor(ctx)

	if err := server.RunServer(ctx, cfg, b); err != nil {
		util.Error("Broker failed: %v", err)
		return 1
	}
	util.Info("Broker stopped gracefully")
	return 0
}
