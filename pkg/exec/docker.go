package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"agentcore/pkg/logx"
)

// DockerExec implements the Executor interface using Docker containers.
type DockerExec struct {
	logger            *logx.Logger
	image             string
	dockerCmd         string
	containerPrefix   string
	mu                sync.RWMutex
	runningContainers map[string]*exec.Cmd
}

var _ Executor = (*DockerExec)(nil)

// NewDockerExec creates a new Docker executor for the given image.
func NewDockerExec(image string) *DockerExec {
	logger := logx.NewLogger("docker-exec")

	// Auto-detect Docker command; fall back to podman when only it exists.
	dockerCmd := "docker"
	if _, err := exec.LookPath("podman"); err == nil {
		if _, err := exec.LookPath("docker"); err != nil {
			dockerCmd = "podman"
		}
	}

	return &DockerExec{
		logger:            logger,
		image:             image,
		dockerCmd:         dockerCmd,
		containerPrefix:   "agentcore-exec-",
		runningContainers: make(map[string]*exec.Cmd),
	}
}

// Name returns the executor type name.
func (d *DockerExec) Name() ExecutorType {
	return ExecutorTypeDocker
}

// Available checks if Docker is available and the daemon is running.
func (d *DockerExec) Available() bool {
	if _, err := exec.LookPath(d.dockerCmd); err != nil {
		d.logger.Debug("Docker command not found: %v", err)
		return false
	}

	// Check if the daemon is running by trying to list containers.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.dockerCmd, "ps", "-q")
	if err := cmd.Run(); err != nil {
		d.logger.Debug("Docker daemon not available: %v", err)
		return false
	}

	return true
}

// Run executes a command in a fresh container. Like LocalExec, a non-zero
// exit code is reported through Result.ExitCode.
func (d *DockerExec) Run(ctx context.Context, cmd []string, opts *Opts) (Result, error) {
	start := time.Now()

	if len(cmd) == 0 {
		return Result{}, fmt.Errorf("command cannot be empty")
	}
	opts = optsOrDefault(opts)

	containerName := d.generateContainerName()

	dockerArgs, err := d.buildDockerArgs(containerName, cmd, opts)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build docker args: %w", err)
	}

	execCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	dockerCmd := exec.CommandContext(execCtx, d.dockerCmd, dockerArgs...)

	// Track the running container for Shutdown.
	d.mu.Lock()
	d.runningContainers[containerName] = dockerCmd
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.runningContainers, containerName)
		d.mu.Unlock()
		d.cleanupContainer(containerName)
	}()

	var stdout, stderr strings.Builder
	dockerCmd.Stdout = &stdout
	dockerCmd.Stderr = &stderr

	d.logger.Debug("Executing docker command: %s", strings.Join(dockerCmd.Args, " "))
	runErr := dockerCmd.Run()

	result := Result{
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
		Duration:     time.Since(start),
		ExecutorUsed: string(d.Name()),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		if execCtx.Err() != nil {
			return result, fmt.Errorf("docker command aborted: %w", execCtx.Err())
		}
		return result, fmt.Errorf("docker command failed to run: %w", runErr)
	}

	result.ExitCode = 0
	return result, nil
}

// generateContainerName creates a unique container name.
func (d *DockerExec) generateContainerName() string {
	timestamp := time.Now().UnixNano()
	return fmt.Sprintf("%s%d", d.containerPrefix, timestamp)
}

// buildDockerArgs constructs the docker run command arguments.
func (d *DockerExec) buildDockerArgs(containerName string, cmd []string, opts *Opts) ([]string, error) {
	args := []string{"run", "--rm", "--name", containerName}

	// Security hardening.
	args = append(args, "--security-opt", "no-new-privileges")

	if opts.ReadOnly {
		args = append(args, "--read-only")
	}

	if opts.NetworkDisabled {
		args = append(args, "--network", "none")
	}

	if opts.ResourceLimits != nil {
		if opts.ResourceLimits.CPUs != "" {
			args = append(args, "--cpus", opts.ResourceLimits.CPUs)
		}
		if opts.ResourceLimits.Memory != "" {
			args = append(args, "--memory", opts.ResourceLimits.Memory)
		}
		if opts.ResourceLimits.PIDs > 0 {
			args = append(args, "--pids-limit", strconv.FormatInt(opts.ResourceLimits.PIDs, 10))
		}
	}

	// Run rootless as the invoking user unless told otherwise.
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	} else {
		args = append(args, "--user", fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()))
	}

	workspaceDir := "/workspace"
	if opts.WorkDir != "" {
		absWorkDir, err := filepath.Abs(opts.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}

		// The workspace mount stays read-write; opts.ReadOnly applies to
		// the container's root filesystem only.
		hostPath := d.normalizePath(absWorkDir)
		args = append(args, "--volume", fmt.Sprintf("%s:%s:rw", hostPath, workspaceDir))
		args = append(args, "--workdir", workspaceDir)
	}

	// Writable tmpfs directories for tools that expect them.
	args = append(args, "--tmpfs", "/tmp:exec,nodev,nosuid,size=100m")
	args = append(args, "--tmpfs", "/home:exec,nodev,nosuid,size=100m")
	args = append(args, "--tmpfs", "/.cache:exec,nodev,nosuid,size=100m")

	for _, env := range opts.Env {
		args = append(args, "--env", env)
	}

	args = append(args, d.image)
	args = append(args, cmd...)

	return args, nil
}

// normalizePath handles cross-platform path normalization for Docker.
func (d *DockerExec) normalizePath(path string) string {
	// On Windows, convert C:\path\to\dir to /c/path/to/dir for Docker Desktop.
	if runtime.GOOS == "windows" {
		if len(path) > 2 && path[1] == ':' {
			drive := strings.ToLower(string(path[0]))
			rest := strings.ReplaceAll(path[2:], "\\", "/")
			return "/" + drive + rest
		}
	}
	return path
}

// cleanupContainer removes the container if it's still running.
func (d *DockerExec) cleanupContainer(containerName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopCmd := exec.CommandContext(ctx, d.dockerCmd, "stop", containerName)
	if err := stopCmd.Run(); err != nil {
		d.logger.Debug("Failed to stop container %s: %v", containerName, err)
	}

	rmCmd := exec.CommandContext(ctx, d.dockerCmd, "rm", "-f", containerName)
	if err := rmCmd.Run(); err != nil {
		d.logger.Debug("Failed to remove container %s: %v", containerName, err)
	}
}

// Shutdown gracefully stops all running containers.
func (d *DockerExec) Shutdown(ctx context.Context) error {
	d.mu.RLock()
	containers := make([]string, 0, len(d.runningContainers))
	for name := range d.runningContainers {
		containers = append(containers, name)
	}
	d.mu.RUnlock()

	var wg sync.WaitGroup
	for _, containerName := range containers {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			d.cleanupContainer(name)
		}(containerName)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetImage returns the Docker image being used.
func (d *DockerExec) GetImage() string {
	return d.image
}

// SetImage updates the Docker image.
func (d *DockerExec) SetImage(image string) {
	d.image = image
}
