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

package ggufresolver

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, root, name, tag, digest string) {
	t.Helper()
	dir := filepath.Join(root, "manifests", "registry.ollama.ai", "library", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := `{"layers":[
		{"mediaType":"application/vnd.ollama.image.params","digest":"sha256:irrelevant"},
		{"mediaType":"application/vnd.ollama.image.model","digest":"` + digest + `"}
	]}`
	if err := os.WriteFile(filepath.Join(dir, tag), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestResolveFindsModelBlob(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "llama3.1", "405b", "sha256:abc123")

	r := New(root)
	path, err := r.Resolve("llama3.1:405b")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := filepath.Join(root, "blobs", "sha256-abc123")
	if path != want {
		t.Errorf("Resolve() = %q, want %q", path, want)
	}
}

func TestResolveDefaultsToLatestTag(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "llama3.2", "latest", "sha256:def456")

	r := New(root)
	path, err := r.Resolve("llama3.2")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := filepath.Join(root, "blobs", "sha256-def456")
	if path != want {
		t.Errorf("Resolve() = %q, want %q", path, want)
	}
}

func TestResolveMissingManifestFails(t *testing.T) {
	r := New(t.TempDir())
	if _, err := r.Resolve("missing:1b"); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestResolveManifestWithoutModelLayerFails(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "manifests", "registry.ollama.ai", "library", "broken")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	_ = os.WriteFile(filepath.Join(dir, "latest"), []byte(`{"layers":[]}`), 0o644)

	r := New(root)
	if _, err := r.Resolve("broken"); err == nil {
		t.Fatal("expected error when manifest has no gguf layer")
	}
}
