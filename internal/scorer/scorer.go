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

// Package scorer picks the best NodeRegistry entry for a TaskContext and
// explains the pick.
package scorer

import (
	"fmt"
	"sort"

	"github.com/hackall360/sollol/internal/analyzer"
	"github.com/hackall360/sollol/internal/health"
	"github.com/hackall360/sollol/internal/learning"
	"github.com/hackall360/sollol/internal/node"
	"github.com/hackall360/sollol/internal/sollolerr"
)

const (
	weightLatency  = 0.30
	weightSuccess  = 0.25
	weightLoad     = 0.15
	weightVRAM     = 0.15
	weightPriority = 0.10
	weightAffinity = 0.05

	highPriorityThreshold   = 8
	highPrioritySuccessFloor = 0.9
)

// Decision is the outcome of one Select call: the chosen node's key plus
// the score and human-readable reasoning to attach as routing metadata.
type Decision struct {
	Key       node.Key
	Score     float64
	Reasoning string
}

// term is one named contribution to a node's score, kept so Select can
// report the top two in its reasoning string.
type term struct {
	name  string
	value float64
}

// Selector scores candidate nodes against a TaskContext.
type Selector struct {
	health   *health.Monitor
	learning *learning.Store
}

// New creates a Selector backed by the given health monitor and learning store.
func New(h *health.Monitor, l *learning.Store) *Selector {
	return &Selector{health: h, learning: l}
}

// Select picks the best candidate for ctx. candidates must be non-empty
// available nodes; Select does not itself consult the registry.
func (s *Selector) Select(ctx analyzer.TaskContext, candidates []node.Node) (Decision, error) {
	type scored struct {
		n     node.Node
		score float64
		terms []term
	}

	highPriority := ctx.Priority >= highPriorityThreshold

	var qualified []scored
	for _, n := range candidates {
		if highPriority && n.SuccessRate < highPrioritySuccessFloor {
			continue
		}

		terms := s.terms(ctx, n)
		total := 0.0
		for _, tm := range terms {
			total += tm.value
		}
		if s.health != nil {
			total -= s.health.Penalty(n.Key.String()) / 100
		}

		if highPriority {
			total *= 1 + float64(ctx.Priority-7)*0.05
		}

		qualified = append(qualified, scored{n: n, score: total, terms: terms})
	}

	if len(qualified) == 0 {
		return Decision{}, sollolerr.New(sollolerr.NoCapacity, "no node satisfies the selection constraints")
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		if qualified[i].score != qualified[j].score {
			return qualified[i].score > qualified[j].score
		}
		if qualified[i].n.LatencyMS != qualified[j].n.LatencyMS {
			return qualified[i].n.LatencyMS < qualified[j].n.LatencyMS
		}
		return qualified[i].n.Key.Less(qualified[j].n.Key)
	})

	best := qualified[0]
	return Decision{
		Key:       best.n.Key,
		Score:     best.score,
		Reasoning: reasoning(best.terms),
	}, nil
}

func (s *Selector) terms(ctx analyzer.TaskContext, n node.Node) []term {
	latencyScore := 1 / (1 + n.LatencyMS/1000)
	loadScore := 1 - n.CPULoad

	vramScore := 1.0
	if ctx.RequiresGPU {
		requiredMiB := ctx.Profile.EstimatedMemoryGiB * 1024
		if requiredMiB > 0 {
			vramScore = clamp01(float64(n.FreeVRAMMiB) / requiredMiB)
		}
	}

	affinity := 0.0
	if s.learning != nil {
		stats := s.learning.Stats(string(ctx.TaskType), ctx.Model)
		if stats.Count > 0 && n.LatencyMS < stats.Mean {
			affinity = weightAffinity
		}
	}

	return []term{
		{"latency", latencyScore * weightLatency},
		{"success rate", n.SuccessRate * weightSuccess},
		{"load", loadScore * weightLoad},
		{"vram headroom", vramScore * weightVRAM},
		{"operator priority", n.Priority * weightPriority},
		{"task affinity", affinity},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// reasoning names the two highest-contributing terms.
func reasoning(terms []term) string {
	sorted := make([]term, len(terms))
	copy(sorted, terms)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].value > sorted[j].value })

	if len(sorted) < 2 {
		return ""
	}
	return fmt.Sprintf("%s (%.3f), %s (%.3f)",
		sorted[0].name, sorted[0].value,
		sorted[1].name, sorted[1].value)
}
