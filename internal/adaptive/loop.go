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

// Package adaptive runs the periodic background probe that keeps
// NodeRegistry telemetry fresh and ages out stale learning samples.
package adaptive

import (
	"context"
	"time"

	"github.com/hackall360/sollol/internal/health"
	"github.com/hackall360/sollol/internal/learning"
	"github.com/hackall360/sollol/internal/node"
	"github.com/hackall360/sollol/internal/ollamatypes"
	"github.com/hackall360/sollol/pkg/logger"
)

// GPUCapabilityProbe classifies a node's effective GPU capability and
// returns one of health.EstimateGPUCapability's three levels. The probe
// itself — issuing whatever test call that classification needs — is left
// to the caller; Loop only invokes it and folds the result into
// Node.GPUCapability. A nil probe (the default) means Loop never touches
// GPUCapability, matching the out-of-scope discovery/probing mechanism.
type GPUCapabilityProbe func(ctx context.Context, n node.Node) (string, error)

// EmbeddingGPUProbe builds a GPUCapabilityProbe that times one embedding
// call and one 50-item batch embedding call through client against model,
// then classifies the pair with health.EstimateGPUCapability — the
// FlockParser small-vs-batch embedding timing pattern node_health.py's
// estimate_gpu_capability is grounded on.
func EmbeddingGPUProbe(client node.Client, model string) GPUCapabilityProbe {
	batch := make([]string, 50)
	for i := range batch {
		batch[i] = "test"
	}

	return func(ctx context.Context, n node.Node) (string, error) {
		smallStart := time.Now()
		if _, err := client.Embed(ctx, n.Key, ollamatypes.Request{Model: model, Input: []string{"test"}}); err != nil {
			return "", err
		}
		smallSeconds := time.Since(smallStart).Seconds()

		batchStart := time.Now()
		if _, err := client.Embed(ctx, n.Key, ollamatypes.Request{Model: model, Input: batch}); err != nil {
			return "", err
		}
		batchSeconds := time.Since(batchStart).Seconds()

		return health.EstimateGPUCapability(smallSeconds, batchSeconds), nil
	}
}

const (
	defaultInterval    = 30 * time.Second
	defaultProbeTimeout = 3 * time.Second
	defaultAgeHorizon  = time.Hour
	probeEMAAlpha      = 0.8
)

// Loop periodically probes every registered node and refreshes its
// telemetry, grounded on the same ticker+select+ctx.Done pattern used
// elsewhere in this codebase for background workers.
type Loop struct {
	registry *node.Registry
	client   node.Client
	health   *health.Monitor
	learning *learning.Store
	log      *logger.Logger

	interval    time.Duration
	probeTimeout time.Duration
	ageHorizon  time.Duration
	gpuProbe    GPUCapabilityProbe
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval overrides the default 30s probe cadence.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithProbeTimeout overrides the per-node probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(l *Loop) { l.probeTimeout = d }
}

// WithAgeHorizon overrides how far back learning samples are kept.
func WithAgeHorizon(d time.Duration) Option {
	return func(l *Loop) { l.ageHorizon = d }
}

// WithGPUCapabilityProbe installs probe, invoked for every available GPU
// node on each tick; its result is folded into Node.GPUCapability. Without
// this option, GPUCapability is never set.
func WithGPUCapabilityProbe(probe GPUCapabilityProbe) Option {
	return func(l *Loop) { l.gpuProbe = probe }
}

// New creates a Loop over registry, probing each node via client.
func New(registry *node.Registry, client node.Client, h *health.Monitor, l *learning.Store, log *logger.Logger, opts ...Option) *Loop {
	loop := &Loop{
		registry:     registry,
		client:       client,
		health:       h,
		learning:     l,
		log:          log,
		interval:     defaultInterval,
		probeTimeout: defaultProbeTimeout,
		ageHorizon:   defaultAgeHorizon,
	}
	for _, opt := range opts {
		opt(loop)
	}
	return loop
}

// Run blocks, probing every node on each tick, until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	for _, n := range l.registry.All() {
		l.probe(ctx, n)
	}
	l.learning.AgeOut(l.ageHorizon)
}

func (l *Loop) probe(ctx context.Context, n node.Node) {
	probeCtx, cancel := context.WithTimeout(ctx, l.probeTimeout)
	defer cancel()

	start := time.Now()
	err := l.client.HealthCheck(probeCtx, n.Key)
	elapsed := time.Since(start)

	available := err == nil
	latencyMS := float64(elapsed.Milliseconds())

	successRate := n.SuccessRate
	if available {
		successRate = n.SuccessRate*probeEMAAlpha + 1.0*(1-probeEMAAlpha)
	} else {
		successRate = n.SuccessRate * probeEMAAlpha
	}

	patch := node.Patch{
		Available:   &available,
		LatencyMS:   &latencyMS,
		SuccessRate: &successRate,
	}

	if available && l.gpuProbe != nil && n.IsGPUEffective() {
		if capability, err := l.gpuProbe(probeCtx, n); err == nil {
			patch.GPUCapability = &capability
		} else if l.log != nil {
			l.log.Warn("", "GPU capability probe failed", map[string]any{
				"node": n.Key.String(),
				"err":  err.Error(),
			})
		}
	}

	l.registry.Update(n.Key, patch)

	if available {
		if l.health.Observe(n.Key.String(), latencyMS, n.IsGPUEffective()) && l.log != nil {
			l.log.Warn("", "VRAM exhaustion detected", map[string]any{
				"node": n.Key.String(),
			})
		}
	}

	if err != nil && l.log != nil {
		l.log.Warn("", "node health probe failed", map[string]any{
			"node": n.Key.String(),
			"err":  err.Error(),
		})
	}
}

// Snapshot is a point-in-time view of pool state suitable for an
// (out-of-scope) /api/stats or /api/health consumer.
type Snapshot struct {
	Hosts          []node.Node
	HealthStats    health.Snapshot
	MonitoredNodes int
}

// Snapshot captures the current registry and health state.
func (l *Loop) Snapshot() Snapshot {
	stats := l.health.Stats()
	return Snapshot{
		Hosts:          l.registry.All(),
		HealthStats:    stats,
		MonitoredNodes: stats.MonitoredNodes,
	}
}
