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

package coordinator

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

// ChatResult is the coordinator's OpenAI-compatible chat completion
// response, trimmed to the fields the router needs to translate back into
// Ollama shape.
type ChatResult struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Content returns the first choice's message content, or "" if none.
func (r ChatResult) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Client talks to a running coordinator's llama-server HTTP API.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a coordinator Client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{httpClient: httpClient}
}

// Chat sends messages to the coordinator's OpenAI-compatible
// /v1/chat/completions endpoint.
func (c *Client) Chat(ctx context.Context, endpoint string, req ollamatypes.Request) (ChatResult, error) {
	body := map[string]any{
		"messages":    req.Messages,
		"max_tokens":  512,
		"temperature": 0.7,
		"stream":      false,
	}

	var result ChatResult
	if err := c.post(ctx, endpoint+"/v1/chat/completions", body, &result); err != nil {
		return ChatResult{}, err
	}
	return result, nil
}

// Generate sends a prompt to the coordinator's /completion endpoint.
func (c *Client) Generate(ctx context.Context, endpoint string, req ollamatypes.Request) (string, error) {
	body := map[string]any{
		"prompt":      req.Prompt,
		"n_predict":   512,
		"temperature": 0.7,
		"stream":      false,
	}

	var result struct {
		Content string `json:"content"`
	}
	if err := c.post(ctx, endpoint+"/completion", body, &result); err != nil {
		return "", err
	}
	return result.Content, nil
}

func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode coordinator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build coordinator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read coordinator response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("coordinator returned status %d: %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}
