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

// Package router implements the top-level routing entrypoint: classify a
// request, then either forward it to the sharded coordinator or distribute
// it across the Ollama node pool.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackall360/sollol/internal/analyzer"
	"github.com/hackall360/sollol/internal/catalog"
	"github.com/hackall360/sollol/internal/coordinator"
	"github.com/hackall360/sollol/internal/health"
	"github.com/hackall360/sollol/internal/learning"
	"github.com/hackall360/sollol/internal/node"
	"github.com/hackall360/sollol/internal/ollamatypes"
	"github.com/hackall360/sollol/internal/scorer"
	"github.com/hackall360/sollol/internal/sollolerr"
	"github.com/hackall360/sollol/pkg/logger"
)

const maxPoolAttempts = 3

// HybridRouter is the composition root for request routing: it owns no
// state of its own beyond references to the components that do.
type HybridRouter struct {
	analyzer    *analyzer.Analyzer
	catalog     *catalog.Catalog
	registry    *node.Registry
	nodeClient  node.Client
	scorer      *scorer.Selector
	health      *health.Monitor
	learning    *learning.Store
	coordinator *coordinator.Manager
	coordClient *coordinator.Client
	log         *logger.Logger
}

// Config wires a HybridRouter's dependencies.
type Config struct {
	Analyzer          *analyzer.Analyzer
	Catalog           *catalog.Catalog
	Registry          *node.Registry
	NodeClient        node.Client
	Scorer            *scorer.Selector
	Health            *health.Monitor
	Learning          *learning.Store
	Coordinator       *coordinator.Manager // nil disables sharded routing
	CoordinatorClient *coordinator.Client
	Logger            *logger.Logger
}

// New assembles a HybridRouter from its dependencies.
func New(cfg Config) *HybridRouter {
	return &HybridRouter{
		analyzer:    cfg.Analyzer,
		catalog:     cfg.Catalog,
		registry:    cfg.Registry,
		nodeClient:  cfg.NodeClient,
		scorer:      cfg.Scorer,
		health:      cfg.Health,
		learning:    cfg.Learning,
		coordinator: cfg.Coordinator,
		coordClient: cfg.CoordinatorClient,
		log:         cfg.Logger,
	}
}

// Route is the top-level entrypoint: analyze the payload, then dispatch to
// the sharded coordinator or the node pool.
func (r *HybridRouter) Route(ctx context.Context, requestID string, payload []byte) (*ollamatypes.Response, error) {
	if requestID == "" {
		// Every routing decision carries a stable id so an (out-of-scope)
		// HTTP surface or log aggregator can correlate it, even when the
		// caller didn't supply one of its own.
		requestID = uuid.NewString()
	}

	taskCtx, err := r.analyzer.Analyze(payload)
	if err != nil {
		return nil, err
	}

	if r.coordinator != nil && r.catalog.RequiresSharding(taskCtx.Model) {
		return r.routeSharded(ctx, requestID, taskCtx)
	}
	return r.routePool(ctx, requestID, taskCtx)
}

func (r *HybridRouter) routeSharded(ctx context.Context, requestID string, taskCtx analyzer.TaskContext) (*ollamatypes.Response, error) {
	info, err := r.coordinator.Ensure(ctx, taskCtx.Model)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("http://%s", info.Endpoint)

	var content string
	switch taskCtx.TaskType {
	case analyzer.TaskChat, analyzer.TaskClassification, analyzer.TaskSummarization:
		result, err := r.coordClient.Chat(ctx, endpoint, taskCtx.Request)
		if err != nil {
			return nil, sollolerr.Wrap(sollolerr.UpstreamFailure, "coordinator chat request failed", err)
		}
		content = result.Content()
	default:
		result, err := r.coordClient.Generate(ctx, endpoint, taskCtx.Request)
		if err != nil {
			return nil, sollolerr.Wrap(sollolerr.UpstreamFailure, "coordinator generate request failed", err)
		}
		content = result
	}

	resp := &ollamatypes.Response{
		Model:     taskCtx.Model,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Done:      true,
		Routing: ollamatypes.RoutingMeta{
			RequestID:       requestID,
			Backend:         "sharded",
			Coordinator:     info.Endpoint,
			RPCBackendCount: info.RPCBackendCount,
		},
	}
	if taskCtx.TaskType == analyzer.TaskChat {
		resp.Message = &ollamatypes.Message{Role: "assistant", Content: content}
	} else {
		resp.Response = content
	}
	return resp, nil
}

func (r *HybridRouter) routePool(ctx context.Context, requestID string, taskCtx analyzer.TaskContext) (*ollamatypes.Response, error) {
	candidates := r.registry.Available()

	var lastErr error
	attempted := false
	for attempt := 1; attempt <= maxPoolAttempts; attempt++ {
		if len(candidates) == 0 {
			break
		}

		decision, err := r.scorer.Select(taskCtx, candidates)
		if err != nil {
			lastErr = err
			break
		}

		attempted = true
		start := time.Now()
		resp, err := r.execute(ctx, decision.Key, taskCtx)
		elapsed := time.Since(start)

		if ctx.Err() != nil {
			// Cancellation is not failure: no learning update, no
			// availability flip.
			return nil, sollolerr.Wrap(sollolerr.Cancelled, "request cancelled", ctx.Err())
		}

		if err == nil {
			r.learning.Record(string(taskCtx.TaskType), taskCtx.Model, float64(elapsed.Milliseconds()))
			if n, ok := r.registry.Get(decision.Key); ok {
				r.health.Observe(decision.Key.String(), float64(elapsed.Milliseconds()), n.IsGPUEffective())
			}

			resp.Routing = ollamatypes.RoutingMeta{
				RequestID: requestID,
				Backend:   "pool",
				Host:      decision.Key.Host,
				Port:      decision.Key.Port,
				Score:     decision.Score,
				Reasoning: decision.Reasoning,
			}
			if r.log != nil {
				r.log.InfoDuration(requestID, "pool request succeeded", elapsed, map[string]any{
					"node":  decision.Key.String(),
					"model": taskCtx.Model,
				})
			}
			return resp, nil
		}

		lastErr = err
		r.registry.MarkUnavailable(decision.Key, err.Error())
		candidates = removeKey(candidates, decision.Key)

		if attempt < maxPoolAttempts {
			select {
			case <-ctx.Done():
				return nil, sollolerr.Wrap(sollolerr.Cancelled, "request cancelled during backoff", ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}

	if lastErr == nil {
		lastErr = sollolerr.New(sollolerr.NoCapacity, "no available nodes")
	}

	// A node actually returning an error is UpstreamFailure (spec §7); only
	// when no candidate was ever tried - the pool was empty, or the scorer
	// itself found nothing that qualified - is this a capacity problem.
	if attempted {
		return nil, sollolerr.Wrap(sollolerr.UpstreamFailure, "all pool attempts exhausted", lastErr)
	}
	return nil, sollolerr.Wrap(sollolerr.NoCapacity, "no node available to attempt", lastErr)
}

func (r *HybridRouter) execute(ctx context.Context, key node.Key, taskCtx analyzer.TaskContext) (*ollamatypes.Response, error) {
	switch taskCtx.TaskType {
	case analyzer.TaskEmbedding:
		embedResp, err := r.nodeClient.Embed(ctx, key, taskCtx.Request)
		if err != nil {
			return nil, err
		}
		return &ollamatypes.Response{
			Model:      embedResp.Model,
			CreatedAt:  embedResp.CreatedAt,
			Embedding:  embedResp.Embedding,
			Embeddings: embedResp.Embeddings,
			Done:       true,
			Usage:      embedResp.Usage,
		}, nil
	case analyzer.TaskGeneration:
		return r.nodeClient.Generate(ctx, key, taskCtx.Request)
	default:
		return r.nodeClient.Chat(ctx, key, taskCtx.Request)
	}
}

func removeKey(nodes []node.Node, key node.Key) []node.Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if n.Key != key {
			out = append(out, n)
		}
	}
	return out
}
