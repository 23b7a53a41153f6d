package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	typesimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"scriptd/internal/domain/execution"
)

const stopTimeout = 5 * time.Second

type containerEngine struct {
	cli           dockerClient
	defaultLimits execution.RunLimits
}

// runSpec describes a single container run.
type runSpec struct {
	Image   string
	Workdir string
	// HostDir is bind-mounted read-only on Workdir when set. Relative paths
	// resolve against the process working directory.
	HostDir string
	Command []string
	Env     []string
	// FilesDir receives Files before the container starts.
	FilesDir string
	Files    []fileSpec
	Limits   execution.RunLimits
}

func newContainerEngine(cli dockerClient, defaultLimits execution.RunLimits) *containerEngine {
	return &containerEngine{
		cli:           cli,
		defaultLimits: execution.Config{Limits: defaultLimits}.Normalized().Limits,
	}
}

func (c *containerEngine) pullImage(ctx context.Context, ref string) error {
	reader, err := c.cli.ImagePull(ctx, ref, typesimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	if err != nil {
		return fmt.Errorf("consume pull output for %s: %w", ref, err)
	}
	return nil
}

func (c *containerEngine) effectiveLimits(request execution.RunLimits) execution.RunLimits {
	effective := c.defaultLimits
	overrides := execution.Config{Limits: request}.Normalized().Limits

	if overrides.TimeLimit > 0 {
		effective.TimeLimit = overrides.TimeLimit
	}
	if overrides.MemoryLimitBytes > 0 {
		effective.MemoryLimitBytes = overrides.MemoryLimitBytes
	}

	return effective
}

// runProgram runs spec to completion. The returned result is non-nil whenever
// the container started. Cancellation of ctx stops the container and returns
// the cancellation cause.
func (c *containerEngine) runProgram(ctx context.Context, spec runSpec) (*execution.Result, error) {
	limits := c.effectiveLimits(spec.Limits)

	containerID, cleanup, err := c.createContainer(ctx, spec, limits)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := c.copyFiles(ctx, containerID, spec.FilesDir, spec.Files); err != nil {
		return nil, fmt.Errorf("copy files: %w", err)
	}

	start := time.Now()
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if limits.TimeLimit > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, limits.TimeLimit)
	}
	status, err := c.waitForExit(waitCtx, containerID)
	if cancel != nil {
		cancel()
	}
	if err != nil {
		switch {
		case ctx.Err() != nil:
			result, stopErr := c.stopAndCollect(containerID, start)
			return result, errors.Join(fmt.Errorf("container stopped: %w", context.Cause(ctx)), stopErr)
		case errors.Is(err, context.DeadlineExceeded) && limits.TimeLimit > 0:
			result, stopErr := c.stopAndCollect(containerID, start)
			return result, errors.Join(fmt.Errorf("time limit %s exceeded: %w", limits.TimeLimit, context.DeadlineExceeded), stopErr)
		default:
			return nil, err
		}
	}

	stdout, stderr, err := c.fetchLogs(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	return &execution.Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: status.StatusCode,
		Duration: time.Since(start),
	}, nil
}

func (c *containerEngine) createContainer(ctx context.Context, spec runSpec, limits execution.RunLimits) (string, func(), error) {
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: 1_000_000_000,
		},
	}
	if limits.MemoryLimitBytes > 0 {
		hostConfig.Resources.Memory = limits.MemoryLimitBytes
		hostConfig.Resources.MemorySwap = limits.MemoryLimitBytes
	}
	if spec.HostDir != "" {
		hostDir, err := filepath.Abs(spec.HostDir)
		if err != nil {
			return "", nil, fmt.Errorf("resolve host directory %s: %w", spec.HostDir, err)
		}
		hostConfig.Binds = []string{hostDir + ":" + spec.Workdir + ":ro"}
	}

	resp, err := c.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:        spec.Image,
			Cmd:          spec.Command,
			Env:          spec.Env,
			AttachStdout: true,
			AttachStderr: true,
			WorkingDir:   spec.Workdir,
		},
		hostConfig,
		nil,
		nil,
		"",
	)
	if err != nil {
		return "", nil, fmt.Errorf("create container: %w", err)
	}

	cleanup := func() {
		_ = c.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}

	return resp.ID, cleanup, nil
}

// stopAndCollect stops a container that must not keep running and gathers
// whatever output it produced. It never uses the caller's context, which is
// already done.
func (c *containerEngine) stopAndCollect(containerID string, start time.Time) (*execution.Result, error) {
	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()

	timeout := int(stopTimeout / time.Second)
	if err := c.cli.ContainerStop(stopCtx, containerID, container.StopOptions{Timeout: &timeout}); err != nil && !client.IsErrNotFound(err) {
		return nil, fmt.Errorf("stop container: %w", err)
	}

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 3*stopTimeout)
	defer cancelWait()

	status, waitErr := c.waitForExit(waitCtx, containerID)
	if waitErr != nil && !errors.Is(waitErr, context.DeadlineExceeded) && !client.IsErrNotFound(waitErr) {
		return nil, fmt.Errorf("wait for stopped container: %w", waitErr)
	}

	stdout, stderr, err := c.fetchLogs(context.Background(), containerID)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	exitCode := int64(-1)
	if status != nil {
		exitCode = status.StatusCode
	}

	return &execution.Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}
