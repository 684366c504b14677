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

// Package node holds the authoritative set of Ollama-protocol backend nodes
// and their live telemetry.
package node

import (
	"fmt"
	"time"
)

// Key identifies a node by its (host, port) pair.
type Key struct {
	Host string
	Port int
}

// String renders the key as "host:port", used for baselines, learning
// keys, and log fields.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

// Less orders keys lexicographically by (host, port), used for the
// scorer's tie-break rule.
func (k Key) Less(other Key) bool {
	if k.Host != other.Host {
		return k.Host < other.Host
	}
	return k.Port < other.Port
}

// Node is one Ollama-protocol inference endpoint and its live telemetry.
//
// A Node is either available or unavailable for selection, never both;
// LatencyMS, SuccessRate, and FreeVRAMMiB are only meaningful once at least
// one sample has been observed.
type Node struct {
	Key Key

	// GPU indicates the node has a GPU. ForceCPU, when true, means the
	// operator has pinned this node to CPU execution regardless of
	// hardware — it is never treated as a candidate for VRAM-exhaustion
	// detection (see internal/health).
	GPU      bool
	ForceCPU bool

	FreeVRAMMiB  int
	CPULoad      float64 // 0..1
	LatencyMS    float64 // moving average
	SuccessRate  float64 // 0..1
	Available    bool
	LastUpdated  time.Time
	Priority     float64 // operator-assigned weight, default 1.0
	GPUCapability string  // "Full GPU" | "GPU (VRAM constrained)" | "CPU only" | ""
}

// IsGPUEffective reports whether this node should be treated as a GPU node
// for health-monitoring and scoring purposes.
func (n Node) IsGPUEffective() bool {
	return n.GPU && !n.ForceCPU
}

// Patch carries a partial telemetry update; a nil field means "leave
// unchanged". NodeRegistry.Update merges a Patch into a Node atomically.
type Patch struct {
	LatencyMS     *float64
	SuccessRate   *float64
	CPULoad       *float64
	FreeVRAMMiB   *int
	Available     *bool
	GPUCapability *string
}
