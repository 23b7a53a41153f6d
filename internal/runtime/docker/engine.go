// Package docker runs Python scripts inside Docker containers.
package docker

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker/docker/client"

	"scriptd/internal/domain/execution"
	runtimex "scriptd/internal/runtime"
)

const (
	defaultImage   = "python:3.12-alpine"
	defaultWorkdir = "/workspace"
	scriptDir      = "/opt/scriptd"
	scriptFilename = "script.py"
)

// Module implements runtime.Module backed by Docker containers.
type Module struct {
	client dockerClient
	engine *containerEngine
	config Config

	pullMu sync.Mutex
	pulled bool
}

var _ runtimex.Module = (*Module)(nil)

// New constructs a Module talking to the Docker daemon configured in the
// environment.
func New(cfg Config) (*Module, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runtime: create client: %w", err)
	}
	return newModuleWithClient(cli, cfg), nil
}

func newModuleWithClient(cli dockerClient, cfg Config) *Module {
	if cfg.Image == "" {
		cfg.Image = defaultImage
	}
	if cfg.Workdir == "" {
		cfg.Workdir = defaultWorkdir
	}
	return &Module{
		client: cli,
		engine: newContainerEngine(cli, cfg.DefaultLimits),
		config: cfg,
	}
}

func (m *Module) Language() execution.Language {
	return execution.LanguagePython
}

// Prepare pulls the image on first use and loads the script source.
func (m *Module) Prepare(ctx context.Context, script execution.ScriptHandle, cfg execution.Config) (runtimex.PreparedScript, error) {
	if script.Language() != execution.LanguagePython {
		return nil, fmt.Errorf("docker runtime: script language %q is not python", script.Language())
	}

	if err := m.ensureImage(ctx); err != nil {
		return nil, err
	}

	source, err := script.ReadSource()
	if err != nil {
		return nil, err
	}

	return &pythonPreparedScript{
		module: m,
		script: script,
		source: source,
		config: cfg,
	}, nil
}

// Close releases the Docker client.
func (m *Module) Close() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	return nil
}

// ensureImage pulls the image until one pull succeeds. A failed pull, such as
// one cut short by a stopped execution, is retried by the next Prepare.
func (m *Module) ensureImage(ctx context.Context) error {
	m.pullMu.Lock()
	defer m.pullMu.Unlock()

	if m.pulled {
		return nil
	}
	if err := m.engine.pullImage(ctx, m.config.Image); err != nil {
		return err
	}
	m.pulled = true
	return nil
}
