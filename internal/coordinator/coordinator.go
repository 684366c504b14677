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

// Package coordinator owns the single llama.cpp RPC coordinator process
// that serves sharded (large-model) inference requests.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hackall360/sollol/internal/sollolerr"
)

// State is one point in the coordinator's lifecycle.
type State string

const (
	Idle      State = "idle"
	Starting  State = "starting"
	Ready     State = "ready"
	Switching State = "switching"
	Failed    State = "failed"
)

const (
	defaultReadyTimeout      = 30 * time.Second
	defaultGracefulStopWait  = 5 * time.Second
	defaultGPULayers         = 99
	defaultContextSize       = 8192
	readyPollInterval        = 500 * time.Millisecond
)

// GGUFResolver locates the on-disk GGUF weights file for an Ollama model
// name. It is an external dependency injected by the caller; this package
// only defines the contract.
type GGUFResolver interface {
	Resolve(model string) (path string, err error)
}

// LaunchSpec is everything a ManagedProcess needs to start the coordinator
// binary.
type LaunchSpec struct {
	ModelPath   string
	Host        string
	Port        int
	RPCBackends []string // "host:port" entries
	GPULayers   int
	ContextSize int
}

// ManagedProcess is the process-lifecycle abstraction CoordinatorManager
// drives. A real implementation launches llama-server as a subprocess; a
// test implementation can simulate one without spawning anything.
type ManagedProcess interface {
	Launch(spec LaunchSpec) error
	WaitReady(ctx context.Context, healthURL string, timeout time.Duration) error
	Terminate(timeout time.Duration) error
	Kill() error
}

// Info is a read-only snapshot of coordinator state, safe to attach to
// routing metadata or a stats endpoint.
type Info struct {
	State           State
	Model           string
	Endpoint        string
	RPCBackendCount int
}

// Manager owns at most one coordinator process, guaranteeing it serves the
// requested model before a sharded request is forwarded.
type Manager struct {
	mu    sync.Mutex
	state State
	model string

	host        string
	port        int
	rpcBackends []string
	gpuLayers   int
	contextSize int

	resolver   GGUFResolver
	newProcess func() ManagedProcess
	proc       ManagedProcess

	readyTimeout     time.Duration
	gracefulStopWait time.Duration

	sf singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithReadyTimeout overrides the default 30s readiness poll timeout.
func WithReadyTimeout(d time.Duration) Option {
	return func(m *Manager) { m.readyTimeout = d }
}

// WithGracefulStopWait overrides the default 5s graceful-stop wait before
// killing the process outright.
func WithGracefulStopWait(d time.Duration) Option {
	return func(m *Manager) { m.gracefulStopWait = d }
}

// WithGPULayers overrides the default GPU layer offload hint.
func WithGPULayers(n int) Option {
	return func(m *Manager) { m.gpuLayers = n }
}

// WithContextSize overrides the default context window size.
func WithContextSize(n int) Option {
	return func(m *Manager) { m.contextSize = n }
}

// New creates a Manager. newProcess constructs a fresh ManagedProcess for
// each coordinator launch (a process cannot be restarted after Terminate).
func New(resolver GGUFResolver, newProcess func() ManagedProcess, host string, port int, rpcBackends []string, opts ...Option) *Manager {
	m := &Manager{
		state:            Idle,
		host:             host,
		port:             port,
		rpcBackends:      rpcBackends,
		gpuLayers:        defaultGPULayers,
		contextSize:      defaultContextSize,
		resolver:         resolver,
		newProcess:       newProcess,
		readyTimeout:     defaultReadyTimeout,
		gracefulStopWait: defaultGracefulStopWait,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Info returns the current coordinator state.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{
		State:           m.state,
		Model:           m.model,
		Endpoint:        fmt.Sprintf("%s:%d", m.host, m.port),
		RPCBackendCount: len(m.rpcBackends),
	}
}

// Ensure guarantees the coordinator is Ready(model) before returning.
// Concurrent callers share a single in-flight transition via singleflight —
// at most one ensure executes at a time, since at most one coordinator
// process can exist. A caller that joined a transition for a different
// model waits for it to finish and then runs (or joins) one for its own.
func (m *Manager) Ensure(ctx context.Context, model string) (Info, error) {
	type outcome struct {
		model string
		info  Info
		err   error
	}
	for {
		v, _, _ := m.sf.Do("ensure", func() (any, error) {
			info, err := m.ensure(ctx, model)
			return outcome{model: model, info: info, err: err}, nil
		})
		if res := v.(outcome); res.model == model {
			return res.info, res.err
		}
	}
}

func (m *Manager) ensure(ctx context.Context, model string) (Info, error) {
	m.mu.Lock()
	if m.state == Ready && m.model == model {
		info := Info{State: m.state, Model: m.model, Endpoint: fmt.Sprintf("%s:%d", m.host, m.port), RPCBackendCount: len(m.rpcBackends)}
		m.mu.Unlock()
		return info, nil
	}
	switching := m.state == Ready
	m.mu.Unlock()

	path, err := m.resolver.Resolve(model)
	if err != nil || path == "" {
		m.setState(Failed, "")
		return Info{}, sollolerr.Wrap(sollolerr.ModelNotFound, fmt.Sprintf("could not resolve GGUF for model %q", model), err)
	}

	if switching {
		m.setState(Switching, m.model)
		if err := m.stopCurrent(); err != nil {
			m.setState(Failed, "")
			return Info{}, sollolerr.Wrap(sollolerr.CoordinatorUnavailable, "failed to stop coordinator during model switch", err)
		}
	}

	m.setState(Starting, model)

	proc := m.newProcess()
	spec := LaunchSpec{
		ModelPath:   path,
		Host:        m.host,
		Port:        m.port,
		RPCBackends: m.rpcBackends,
		GPULayers:   m.gpuLayers,
		ContextSize: m.contextSize,
	}
	if err := proc.Launch(spec); err != nil {
		m.setState(Failed, "")
		return Info{}, sollolerr.Wrap(sollolerr.CoordinatorUnavailable, "failed to launch coordinator process", err)
	}

	healthURL := fmt.Sprintf("http://%s:%d/health", m.host, m.port)
	if err := proc.WaitReady(ctx, healthURL, m.readyTimeout); err != nil {
		_ = proc.Kill()
		m.setState(Failed, "")
		return Info{}, sollolerr.Wrap(sollolerr.CoordinatorUnavailable, "coordinator did not become ready in time", err)
	}

	m.mu.Lock()
	m.proc = proc
	m.state = Ready
	m.model = model
	info := Info{State: m.state, Model: m.model, Endpoint: fmt.Sprintf("%s:%d", m.host, m.port), RPCBackendCount: len(m.rpcBackends)}
	m.mu.Unlock()

	return info, nil
}

func (m *Manager) stopCurrent() error {
	m.mu.Lock()
	proc := m.proc
	wait := m.gracefulStopWait
	m.mu.Unlock()

	if proc == nil {
		return nil
	}
	if err := proc.Terminate(wait); err != nil {
		return proc.Kill()
	}
	return nil
}

func (m *Manager) setState(s State, model string) {
	m.mu.Lock()
	m.state = s
	m.model = model
	m.mu.Unlock()
}

// Shutdown stops any running coordinator process unconditionally, used on
// process exit.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	proc := m.proc
	wait := m.gracefulStopWait
	m.mu.Unlock()

	if proc == nil {
		return nil
	}
	if err := proc.Terminate(wait); err != nil {
		return proc.Kill()
	}
	m.setState(Idle, "")
	return nil
}

// Endpoint returns the coordinator's HTTP base URL.
func (m *Manager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("http://%s:%d", m.host, m.port)
}

// JoinRPCBackends renders the configured RPC backend list as the
// comma-joined form llama-server expects on its --rpc flag.
func JoinRPCBackends(backends []string) string {
	return strings.Join(backends, ",")
}
