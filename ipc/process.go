package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// ProcessConfig configures an out-of-process engine.
type ProcessConfig struct {
	// Path is the engine binary.
	Path string
	// Args are passed to the binary.
	Args []string
	// Env entries are appended to the inherited environment and win over
	// inherited duplicates.
	Env []string
	// Stdout receives the engine's stdout. Nil discards it.
	Stdout io.Writer
}

// ProcessResult is the outcome of an engine process.
type ProcessResult struct {
	// ExitCode is the process exit code, -1 if it was not reported.
	ExitCode int
	// Stderr is the captured stderr output.
	Stderr []byte
}

// Process runs an engine binary that reads frames from stdin.
// Stderr is captured for diagnostics.
type Process struct {
	config *ProcessConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr io.ReadCloser
	enc    *FrameEncoder
}

// NewProcess creates a process manager. Nothing runs until Start.
func NewProcess(config *ProcessConfig) *Process {
	return &Process{config: config}
}

// Start starts the engine process.
func (p *Process) Start(ctx context.Context) error {
	if p.config.Path == "" {
		return errors.New("ipc: engine path is required")
	}
	p.cmd = exec.CommandContext(ctx, p.config.Path, p.config.Args...)
	if len(p.config.Env) > 0 {
		p.cmd.Env = deduplicateEnv(append(os.Environ(), p.config.Env...))
	}
	p.cmd.Stdout = p.config.Stdout

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	p.stdin = stdin

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	p.stderr = stderr

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	p.enc = NewFrameEncoder(stdin)
	return nil
}

// Send writes one frame to the engine's stdin.
func (p *Process) Send(frame any) error {
	if p.enc == nil {
		return errors.New("ipc: engine not started")
	}
	if err := p.enc.WriteFrame(frame); err != nil {
		_ = p.Kill()
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Wait closes stdin, signalling no more frames, and waits for the engine
// to exit. Must be called after Start.
func (p *Process) Wait() (*ProcessResult, error) {
	if p.cmd == nil {
		return nil, errors.New("ipc: engine not started")
	}
	_ = p.stdin.Close()

	// Stderr must be drained before Wait closes the pipe.
	stderrBytes, _ := io.ReadAll(p.stderr)
	err := p.cmd.Wait()

	result := &ProcessResult{Stderr: stderrBytes}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("engine wait failed: %w", err)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = -1
		}
	}
	return result, nil
}

// Kill terminates the engine process.
func (p *Process) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each env var key.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
