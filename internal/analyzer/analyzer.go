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

// Package analyzer turns an opaque inbound Ollama-protocol payload into a
// TaskContext the scorer and router can act on.
package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/hackall360/sollol/internal/catalog"
	"github.com/hackall360/sollol/internal/ollamatypes"
	"github.com/hackall360/sollol/internal/sollolerr"
)

// TaskType classifies the kind of work a request represents.
type TaskType string

const (
	TaskGeneration     TaskType = "generation"
	TaskChat           TaskType = "chat"
	TaskEmbedding      TaskType = "embedding"
	TaskClassification TaskType = "classification"
	TaskSummarization  TaskType = "summarization"
	TaskUnknown        TaskType = "unknown"
)

// Complexity buckets requests by estimated input size.
type Complexity string

const (
	Light  Complexity = "light"
	Medium Complexity = "medium"
	Heavy  Complexity = "heavy"
)

const (
	lightThresholdChars  = 500
	mediumThresholdChars = 4000

	defaultModel    = "llama3.2"
	defaultPriority = 5
	minPriority     = 1
	maxPriority     = 10

	// requiresGPUMemGiB is the memory threshold above which a generation or
	// chat request is flagged as GPU-requiring.
	requiresGPUMemGiB = 4.0
)

var summarizationCues = []string{"summarize", "summary", "tl;dr", "tldr", "condense"}
var classificationCues = []string{"classify", "categorize", "which category", "label this", "sentiment"}

// TaskContext is the analyzer's output: everything downstream components
// need to score and route the request.
type TaskContext struct {
	TaskType     TaskType
	Complexity   Complexity
	Model        string
	Priority     int
	RequiresGPU  bool
	Profile      catalog.Profile
	Request      ollamatypes.Request
}

// Analyzer classifies inbound payloads.
type Analyzer struct {
	catalog *catalog.Catalog
}

// New creates an Analyzer backed by cat for model profile resolution.
func New(cat *catalog.Catalog) *Analyzer {
	if cat == nil {
		cat = catalog.New()
	}
	return &Analyzer{catalog: cat}
}

// priorityPayload captures the optional priority/options field without
// requiring the caller to know the full request shape up front.
type priorityPayload struct {
	Priority *int `json:"priority"`
	Options  *struct {
		Priority *int `json:"priority"`
	} `json:"options"`
}

// Analyze parses raw into a TaskContext. raw must be a valid JSON object
// matching the Ollama chat/generate/embed request shape; anything else
// fails with sollolerr.BadRequest. An embed "input" must be a JSON array of
// strings: a single bare string input also fails with sollolerr.BadRequest.
func (a *Analyzer) Analyze(raw []byte) (TaskContext, error) {
	var req ollamatypes.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return TaskContext{}, sollolerr.Wrap(sollolerr.BadRequest, "invalid request payload", err)
	}
	req.Raw = json.RawMessage(raw)

	if len(req.Messages) == 0 && req.Prompt == "" && len(req.Input) == 0 {
		return TaskContext{}, sollolerr.New(sollolerr.BadRequest, "payload has no messages, prompt, or input")
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}

	taskType := classifyTaskType(req)
	complexity := classifyComplexity(req.TotalContentLength())
	priority := extractPriority(raw)
	profile := a.catalog.Profile(model)

	requiresGPU := (taskType == TaskGeneration || taskType == TaskChat) && profile.EstimatedMemoryGiB > requiresGPUMemGiB

	return TaskContext{
		TaskType:    taskType,
		Complexity:  complexity,
		Model:       model,
		Priority:    priority,
		RequiresGPU: requiresGPU,
		Profile:     profile,
		Request:     req,
	}, nil
}

func classifyTaskType(req ollamatypes.Request) TaskType {
	switch {
	case len(req.Messages) > 0:
		content := req.LastUserContent()
		if containsAny(content, classificationCues) {
			return TaskClassification
		}
		if containsAny(content, summarizationCues) {
			return TaskSummarization
		}
		return TaskChat
	case req.Prompt != "":
		if containsAny(req.Prompt, classificationCues) {
			return TaskClassification
		}
		if containsAny(req.Prompt, summarizationCues) {
			return TaskSummarization
		}
		return TaskGeneration
	case len(req.Input) > 0:
		return TaskEmbedding
	default:
		return TaskUnknown
	}
}

func containsAny(text string, cues []string) bool {
	lower := strings.ToLower(text)
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func classifyComplexity(totalChars int) Complexity {
	switch {
	case totalChars < lightThresholdChars:
		return Light
	case totalChars < mediumThresholdChars:
		return Medium
	default:
		return Heavy
	}
}

func extractPriority(raw []byte) int {
	var p priorityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return defaultPriority
	}

	val := defaultPriority
	if p.Priority != nil {
		val = *p.Priority
	} else if p.Options != nil && p.Options.Priority != nil {
		val = *p.Options.Priority
	}

	return clamp(val, minPriority, maxPriority)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
