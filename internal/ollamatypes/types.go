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

// Package ollamatypes defines the request/response shapes exchanged with
// Ollama-protocol nodes and the routing metadata this module attaches to
// every response. The raw inbound payload is kept as opaque JSON
// (json.RawMessage) alongside the parsed view (see design note on
// dynamic-typed payloads). The node and coordinator clients do not forward
// it: they build each outbound body from the parsed fields only, so inbound
// fields outside that view are not passed on.
package ollamatypes

import "encoding/json"

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the parsed view of an inbound /api/chat, /api/generate, or
// /api/embed payload. Messages, Prompt, and Input are each populated when
// that field was present in the original JSON; a payload may carry more
// than one of them. Input decodes only from a JSON array of strings.
type Request struct {
	Model    string          `json:"model"`
	Messages []Message       `json:"messages,omitempty"`
	Prompt   string          `json:"prompt,omitempty"`
	Input    []string        `json:"input,omitempty"`
	Stream   bool            `json:"stream,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// LastUserContent returns the content of the last user-authored message, or
// the prompt/input text for generate/embed requests. Used by the analyzer
// for keyword and length heuristics.
func (r *Request) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	if r.Prompt != "" {
		return r.Prompt
	}
	if len(r.Input) > 0 {
		return r.Input[len(r.Input)-1]
	}
	return ""
}

// TotalContentLength sums the character length of all content in the request,
// used by the analyzer to estimate complexity.
func (r *Request) TotalContentLength() int {
	total := len(r.Prompt)
	for _, m := range r.Messages {
		total += len(m.Content)
	}
	for _, s := range r.Input {
		total += len(s)
	}
	return total
}

// Usage carries token accounting, when a backend reports it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// RoutingMeta is the `_routing` block attached to every response, per
// spec §6 and §4.8.
type RoutingMeta struct {
	RequestID       string  `json:"request_id"`
	Backend         string  `json:"backend"` // "pool" or "sharded"
	Host            string  `json:"host,omitempty"`
	Port            int     `json:"port,omitempty"`
	Score           float64 `json:"score,omitempty"`
	Reasoning       string  `json:"reasoning,omitempty"`
	Coordinator     string  `json:"coordinator,omitempty"`
	RPCBackendCount int     `json:"rpc_backend_count,omitempty"`
}

// Response is the unified shape returned to the (out-of-scope) HTTP surface
// for chat/generate/embed requests, carrying routing metadata alongside the
// pass-through content. Embedding/Embeddings are populated only for the
// /api/embed case, mirroring EmbedResponse, so HybridRouter.Route can hand
// every task type back through a single return type without dropping the
// one field an embed caller actually needs.
type Response struct {
	Model      string      `json:"model"`
	CreatedAt  string      `json:"created_at"`
	Message    *Message    `json:"message,omitempty"`
	Response   string      `json:"response,omitempty"`
	Embedding  []float64   `json:"embedding,omitempty"`
	Embeddings [][]float64 `json:"embeddings,omitempty"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason,omitempty"`
	Usage      *Usage      `json:"usage,omitempty"`
	Routing    RoutingMeta `json:"_routing"`
}

// EmbedResponse is the unified shape for /api/embed results.
type EmbedResponse struct {
	Model      string      `json:"model"`
	CreatedAt  string      `json:"created_at"`
	Embedding  []float64   `json:"embedding,omitempty"`
	Embeddings [][]float64 `json:"embeddings,omitempty"`
	Usage      *Usage      `json:"usage,omitempty"`
}
