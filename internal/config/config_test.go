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

package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "OLLAMA_NODES", "RPC_BACKENDS", "SOLLOL_ENABLE_RAY", "SOLLOL_ENABLE_DASK", "SOLLOL_ADAPTIVE_INTERVAL_SECONDS"} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Port != defaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Port, defaultPort)
	}
	if cfg.AdaptiveInterval != defaultAdaptiveIntervalSeconds*time.Second {
		t.Errorf("AdaptiveInterval = %v, want default %ds", cfg.AdaptiveInterval, defaultAdaptiveIntervalSeconds)
	}
	if len(cfg.OllamaNodes) != 0 || len(cfg.RPCBackends) != 0 {
		t.Error("expected empty node/backend lists by default")
	}
}

func TestLoadFromEnvParsesNodeLists(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_NODES", "10.0.0.1:11434, 10.0.0.2:11434")
	t.Setenv("RPC_BACKENDS", "10.0.0.3:50052")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if len(cfg.OllamaNodes) != 2 {
		t.Fatalf("len(OllamaNodes) = %d, want 2", len(cfg.OllamaNodes))
	}
	if cfg.OllamaNodes[1].Host != "10.0.0.2" {
		t.Errorf("OllamaNodes[1].Host = %q, want 10.0.0.2 (leading space trimmed)", cfg.OllamaNodes[1].Host)
	}
	if len(cfg.RPCBackends) != 1 || cfg.RPCBackends[0].Port != 50052 {
		t.Errorf("RPCBackends = %+v, want one entry on port 50052", cfg.RPCBackends)
	}
}

func TestLoadFromEnvRejectsMalformedEndpoint(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_NODES", "not-a-valid-endpoint")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error for malformed OLLAMA_NODES entry")
	}
}

func TestLoadFromEnvParsesBooleans(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLLOL_ENABLE_RAY", "true")
	t.Setenv("SOLLOL_ENABLE_DASK", "0")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if !cfg.EnableRay {
		t.Error("expected EnableRay true")
	}
	if cfg.EnableDask {
		t.Error("expected EnableDask false")
	}
}

func TestLoadFromEnvAdaptiveInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLLOL_ADAPTIVE_INTERVAL_SECONDS", "45")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.AdaptiveInterval != 45*time.Second {
		t.Errorf("AdaptiveInterval = %v, want 45s", cfg.AdaptiveInterval)
	}
}
