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

package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hackall360/sollol/internal/ollamatypes"
)

// Client executes an analyzed request against a single node, speaking the
// Ollama HTTP protocol. Implementations must respect ctx's deadline.
//
// The router depends on this interface, not on net/http directly, so tests
// can substitute a fake node without a listening server.
type Client interface {
	Chat(ctx context.Context, key Key, req ollamatypes.Request) (*ollamatypes.Response, error)
	Generate(ctx context.Context, key Key, req ollamatypes.Request) (*ollamatypes.Response, error)
	Embed(ctx context.Context, key Key, req ollamatypes.Request) (*ollamatypes.EmbedResponse, error)
	HealthCheck(ctx context.Context, key Key) error
}

// HTTPClient is the default Client, talking plain Ollama HTTP.
type HTTPClient struct {
	httpClient *http.Client
}

// NewHTTPClient builds an HTTPClient. If httpClient is nil, a client with a
// generous default timeout (the caller's context deadline governs the
// per-request timeout in practice) is used.
func NewHTTPClient(httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPClient{httpClient: httpClient}
}

func (c *HTTPClient) baseURL(key Key) string {
	return fmt.Sprintf("http://%s:%d", key.Host, key.Port)
}

func (c *HTTPClient) post(ctx context.Context, url string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("node returned status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Chat forwards a chat request to the node's /api/chat endpoint.
func (c *HTTPClient) Chat(ctx context.Context, key Key, req ollamatypes.Request) (*ollamatypes.Response, error) {
	body := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
	}
	var resp ollamatypes.Response
	if err := c.post(ctx, c.baseURL(key)+"/api/chat", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Generate forwards a generation request to the node's /api/generate endpoint.
func (c *HTTPClient) Generate(ctx context.Context, key Key, req ollamatypes.Request) (*ollamatypes.Response, error) {
	body := map[string]any{
		"model":  req.Model,
		"prompt": req.Prompt,
		"stream": false,
	}
	var resp ollamatypes.Response
	if err := c.post(ctx, c.baseURL(key)+"/api/generate", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Embed forwards an embedding request to the node's /api/embed endpoint.
func (c *HTTPClient) Embed(ctx context.Context, key Key, req ollamatypes.Request) (*ollamatypes.EmbedResponse, error) {
	var input any = req.Input
	if len(req.Input) == 1 {
		input = req.Input[0]
	}
	body := map[string]any{
		"model": req.Model,
		"input": input,
	}
	var resp ollamatypes.EmbedResponse
	if err := c.post(ctx, c.baseURL(key)+"/api/embed", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthCheck probes the node's liveness endpoint.
func (c *HTTPClient) HealthCheck(ctx context.Context, key Key) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(key)+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("node health check returned status %d", resp.StatusCode)
	}
	return nil
}
