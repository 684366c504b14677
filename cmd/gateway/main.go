// Copyright 2025 The SOLLOL Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command gateway wires the routing core together and runs its background
// maintenance loop. It deliberately does not expose the Ollama-compatible
// HTTP surface described in the design: that's a separate front-end,
// layered on top of HybridRouter.Route.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/hackall360/sollol/internal/adaptive"
	"github.com/hackall360/sollol/internal/analyzer"
	"github.com/hackall360/sollol/internal/catalog"
	"github.com/hackall360/sollol/internal/config"
	"github.com/hackall360/sollol/internal/coordinator"
	"github.com/hackall360/sollol/internal/ggufresolver"
	"github.com/hackall360/sollol/internal/health"
	"github.com/hackall360/sollol/internal/learning"
	"github.com/hackall360/sollol/internal/node"
	"github.com/hackall360/sollol/internal/router"
	"github.com/hackall360/sollol/internal/scorer"
	"github.com/hackall360/sollol/pkg/logger"
)

const exitConfigError = 2

func main() {
	log := logger.New("gateway")
	instanceID := uuid.NewString()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Error("", "configuration error", err, nil)
		os.Exit(exitConfigError)
	}

	reg := node.NewRegistry()
	for _, ep := range cfg.OllamaNodes {
		reg.Add(node.Node{Key: node.Key{Host: ep.Host, Port: ep.Port}, GPU: true})
	}
	log.Info("", "node pool seeded", map[string]any{"count": len(cfg.OllamaNodes), "instance_id": instanceID})

	cat := catalog.New()
	cat.ShardingGloballyDisabled = len(cfg.RPCBackends) == 0

	healthMon := health.NewMonitor()
	learningStore := learning.New()
	nodeClient := node.NewHTTPClient(nil)

	var coordMgr *coordinator.Manager
	var coordClient *coordinator.Client
	if len(cfg.RPCBackends) > 0 {
		rpcAddrs := make([]string, len(cfg.RPCBackends))
		for i, ep := range cfg.RPCBackends {
			rpcAddrs[i] = fmt.Sprintf("%s:%d", ep.Host, ep.Port)
		}

		home, _ := os.UserHomeDir()
		resolver := ggufresolver.New(home + "/.ollama/models")

		coordMgr = coordinator.New(
			resolver,
			func() coordinator.ManagedProcess { return coordinator.NewLlamaServerProcess("") },
			cfg.CoordinatorHost,
			cfg.CoordinatorPort,
			rpcAddrs,
		)
		coordClient = coordinator.NewClient(nil)
		log.Info("", "sharded routing enabled", map[string]any{"rpc_backends": len(rpcAddrs)})
	} else {
		log.Info("", "sharded routing disabled: no RPC_BACKENDS configured", nil)
	}

	hr := router.New(router.Config{
		Analyzer:          analyzer.New(cat),
		Catalog:           cat,
		Registry:          reg,
		NodeClient:        nodeClient,
		Scorer:            scorer.New(healthMon, learningStore),
		Health:            healthMon,
		Learning:          learningStore,
		Coordinator:       coordMgr,
		CoordinatorClient: coordClient,
		Logger:            log,
	})
	_ = hr // the HTTP front-end (out of scope) would hold this and call Route per request.

	loop := adaptive.New(reg, nodeClient, healthMon, learningStore, log, adaptive.WithInterval(cfg.AdaptiveInterval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("", "gateway ready", map[string]any{"port": cfg.Port})
	loop.Run(ctx)

	if coordMgr != nil {
		if err := coordMgr.Shutdown(); err != nil {
			log.Error("", "coordinator shutdown error", err, nil)
		}
	}
	log.Info("", "gateway stopped", nil)
}
