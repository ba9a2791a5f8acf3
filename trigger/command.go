package trigger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// CommandExecutor abstracts command execution for testability.
// Production code uses RealExecutor, while tests use MockExecutor.
type CommandExecutor interface {
	// LookPath resolves name to an executable.
	LookPath(name string) (string, error)

	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

func (e *RealExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (e *RealExecutor) Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// DefaultCommandTimeout bounds a single trigger command.
const DefaultCommandTimeout = 10 * time.Second

// CommandConfig configures a Command trigger.
type CommandConfig struct {
	Name    string
	Args    []string // the fired argument is appended as the last entry
	Timeout time.Duration
}

// Command is a Trigger that runs a program per argument. The status is the
// program's exit code.
type Command struct {
	config   CommandConfig
	executor CommandExecutor
	log      *slog.Logger
}

// NewCommand creates a Command trigger. A nil executor means RealExecutor.
func NewCommand(config CommandConfig, executor CommandExecutor, log *slog.Logger) *Command {
	if executor == nil {
		executor = NewRealExecutor()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCommandTimeout
	}
	return &Command{config: config, executor: executor, log: log}
}

// About checks that the configured program can be found.
func (c *Command) About() error {
	path, err := c.executor.LookPath(c.config.Name)
	if err != nil {
		return fmt.Errorf("trigger command %q: %w", c.config.Name, err)
	}
	c.log.Info("command trigger ready", "path", path)
	return nil
}

func (c *Command) Fire(arg string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	args := append(append([]string(nil), c.config.Args...), arg)
	stdout, stderr, err := c.executor.Run(ctx, c.config.Name, args...)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		c.log.Debug("trigger command finished", "stdout", string(stdout))
		return 0, nil
	case errors.As(err, &exitErr):
		c.log.Warn("trigger command exited with error", "code", exitErr.ExitCode(), "stderr", string(stderr))
		return exitErr.ExitCode(), nil
	default:
		return -1, fmt.Errorf("run trigger command: %w", err)
	}
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Name string
	Args []string
}

// MockExecutor returns a fixed response for every command and records calls.
type MockExecutor struct {
	mu       sync.Mutex
	calls    []MockCall
	response MockResponse
	missing  bool
}

// NewMockExecutor creates a MockExecutor that answers every Run with response.
func NewMockExecutor(response MockResponse) *MockExecutor {
	return &MockExecutor{response: response}
}

// SetMissing makes LookPath fail.
func (e *MockExecutor) SetMissing(missing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.missing = missing
}

func (e *MockExecutor) LookPath(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.missing {
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + name, nil
}

func (e *MockExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, MockCall{Name: name, Args: append([]string(nil), args...)})
	return e.response.Stdout, e.response.Stderr, e.response.Err
}

// Calls returns all recorded calls.
func (e *MockExecutor) Calls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]MockCall(nil), e.calls...)
}
