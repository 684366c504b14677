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

// Package ggufresolver locates the GGUF weights file Ollama already pulled
// for a model, so the coordinator can load the exact same blob without a
// separate download step.
package ggufresolver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const ggufMediaType = "application/vnd.ollama.image.model"

// manifest mirrors the subset of Ollama's manifest JSON this resolver
// needs: a list of content-addressed layers, one of which is the GGUF
// model blob.
type manifest struct {
	Layers []struct {
		MediaType string `json:"mediaType"`
		Digest    string `json:"digest"`
	} `json:"layers"`
}

// Resolver finds a model's GGUF path in a local Ollama models directory.
type Resolver struct {
	modelsDir string
}

// New creates a Resolver rooted at modelsDir (Ollama's $OLLAMA_MODELS,
// typically ~/.ollama/models).
func New(modelsDir string) *Resolver {
	return &Resolver{modelsDir: modelsDir}
}

// Resolve returns the path to model's GGUF blob under the models directory
// (absolute when modelsDir is absolute).
func (r *Resolver) Resolve(model string) (string, error) {
	manifestPath, err := r.manifestPath(model)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("read manifest for %q: %w", model, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("parse manifest for %q: %w", model, err)
	}

	for _, layer := range m.Layers {
		if layer.MediaType != ggufMediaType {
			continue
		}
		digest := strings.Replace(layer.Digest, ":", "-", 1)
		return filepath.Join(r.modelsDir, "blobs", digest), nil
	}

	return "", fmt.Errorf("no gguf layer found in manifest for %q", model)
}

// manifestPath maps an Ollama model reference to its manifest file under
// models/manifests/registry.ollama.ai/library/<name>/<tag>.
func (r *Resolver) manifestPath(model string) (string, error) {
	name, tag, found := strings.Cut(model, ":")
	if !found {
		tag = "latest"
	}
	if name == "" {
		return "", fmt.Errorf("empty model name")
	}
	return filepath.Join(r.modelsDir, "manifests", "registry.ollama.ai", "library", name, tag), nil
}
