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

package scorer

import (
	"testing"

	"github.com/hackall360/sollol/internal/analyzer"
	"github.com/hackall360/sollol/internal/catalog"
	"github.com/hackall360/sollol/internal/health"
	"github.com/hackall360/sollol/internal/learning"
	"github.com/hackall360/sollol/internal/node"
)

func baseCtx() analyzer.TaskContext {
	return analyzer.TaskContext{
		TaskType: analyzer.TaskChat,
		Model:    "llama3.1:8b",
		Priority: 5,
		Profile:  catalog.New().Profile("llama3.1:8b"),
	}
}

func TestSelectPrefersLowerLatency(t *testing.T) {
	s := New(health.NewMonitor(), learning.New())
	fast := node.Node{Key: node.Key{Host: "fast", Port: 1}, LatencyMS: 50, SuccessRate: 0.99, Priority: 1}
	slow := node.Node{Key: node.Key{Host: "slow", Port: 1}, LatencyMS: 2000, SuccessRate: 0.99, Priority: 1}

	d, err := s.Select(baseCtx(), []node.Node{slow, fast})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if d.Key != fast.Key {
		t.Errorf("Select() = %v, want the faster node", d.Key)
	}
}

func TestSelectNoCapacityOnEmptyCandidates(t *testing.T) {
	s := New(health.NewMonitor(), learning.New())
	_, err := s.Select(baseCtx(), nil)
	if err == nil {
		t.Fatal("expected NoCapacity error on empty candidate list")
	}
}

func TestSelectHighPriorityDisqualifiesLowSuccessRate(t *testing.T) {
	s := New(health.NewMonitor(), learning.New())
	unreliable := node.Node{Key: node.Key{Host: "unreliable", Port: 1}, LatencyMS: 10, SuccessRate: 0.5, Priority: 1}
	reliable := node.Node{Key: node.Key{Host: "reliable", Port: 1}, LatencyMS: 500, SuccessRate: 0.95, Priority: 1}

	ctx := baseCtx()
	ctx.Priority = 9

	d, err := s.Select(ctx, []node.Node{unreliable, reliable})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if d.Key != reliable.Key {
		t.Errorf("Select() = %v, want reliable node (unreliable disqualified at high priority)", d.Key)
	}
}

func TestSelectHighPriorityAllDisqualifiedFailsNoCapacity(t *testing.T) {
	s := New(health.NewMonitor(), learning.New())
	unreliable := node.Node{Key: node.Key{Host: "h", Port: 1}, LatencyMS: 10, SuccessRate: 0.5, Priority: 1}

	ctx := baseCtx()
	ctx.Priority = 9

	_, err := s.Select(ctx, []node.Node{unreliable})
	if err == nil {
		t.Fatal("expected NoCapacity when every candidate is disqualified")
	}
}

func TestSelectTieBreakLexicographic(t *testing.T) {
	s := New(health.NewMonitor(), learning.New())
	a := node.Node{Key: node.Key{Host: "a", Port: 1}, LatencyMS: 100, SuccessRate: 0.9, Priority: 1}
	b := node.Node{Key: node.Key{Host: "b", Port: 1}, LatencyMS: 100, SuccessRate: 0.9, Priority: 1}

	d, err := s.Select(baseCtx(), []node.Node{b, a})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if d.Key != a.Key {
		t.Errorf("Select() = %v, want lexicographically first node on a tie", d.Key)
	}
}

func TestSelectHealthPenaltyDemotesExhaustedNode(t *testing.T) {
	h := health.NewMonitor()
	h.UpdateBaseline("exhausted:1", 100, true)
	h.DetectVRAMExhaustion("exhausted:1", 3000)

	s := New(h, learning.New())
	exhausted := node.Node{Key: node.Key{Host: "exhausted", Port: 1}, LatencyMS: 50, SuccessRate: 0.99, Priority: 1}
	healthy := node.Node{Key: node.Key{Host: "healthy", Port: 1}, LatencyMS: 800, SuccessRate: 0.9, Priority: 1}

	d, err := s.Select(baseCtx(), []node.Node{exhausted, healthy})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if d.Key != healthy.Key {
		t.Errorf("Select() = %v, want healthy node once exhausted node is penalized", d.Key)
	}
}

func TestSelectIsDeterministicGivenFixedState(t *testing.T) {
	s := New(health.NewMonitor(), learning.New())
	a := node.Node{Key: node.Key{Host: "a", Port: 1}, LatencyMS: 120, SuccessRate: 0.95, Priority: 1}
	b := node.Node{Key: node.Key{Host: "b", Port: 1}, LatencyMS: 80, SuccessRate: 0.92, Priority: 1}

	ctx := baseCtx()
	first, err := s.Select(ctx, []node.Node{a, b})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := s.Select(ctx, []node.Node{a, b})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if again.Key != first.Key || again.Score != first.Score {
			t.Fatalf("Select() not deterministic: first=%+v again=%+v", first, again)
		}
	}
}

func TestSelectReasoningNamesTopTwoTerms(t *testing.T) {
	s := New(health.NewMonitor(), learning.New())
	n := node.Node{Key: node.Key{Host: "a", Port: 1}, LatencyMS: 10, SuccessRate: 1.0, Priority: 1}

	d, err := s.Select(baseCtx(), []node.Node{n})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if d.Reasoning == "" {
		t.Error("expected non-empty reasoning string")
	}
}
