package compose

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultBinary is the executable the ExecRunner invokes
	DefaultBinary = "docker"
	// DefaultWaitDelay bounds how long Run waits for the output pipes to close
	// once the process is killed; grandchildren may keep them open
	DefaultWaitDelay = 5 * time.Second
)

// Runner executes a CLI command in the given directory and returns its
// standard output
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// RunnerFunc allows regular functions to be used as a Runner
type RunnerFunc func(ctx context.Context, dir string, args ...string) ([]byte, error)

// Run calls the underlying function
func (fn RunnerFunc) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return fn(ctx, dir, args...)
}

// CommandError is returned when a command exits with a failure (non-zero
// exit, killed on timeout, missing binary)
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (err *CommandError) Error() string {
	msg := fmt.Sprintf("command '%s' failed: %v", strings.Join(err.Args, " "), err.Err)
	if err.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, err.Stderr)
	}
	return msg
}

// Unwrap returns the execution error
func (err *CommandError) Unwrap() error {
	return err.Err
}

// KVs returns a metadata map for structured logging
func (err *CommandError) KVs() map[string]interface{} {
	acc := map[string]interface{}{
		"command": strings.Join(err.Args, " "),
	}
	if err.Stderr != "" {
		acc["command.stderr"] = err.Stderr
	}
	if err.Err != nil {
		acc["command.error"] = err.Err.Error()
	}
	return acc
}

// ExecRunner runs commands as child processes. The process gets killed when
// the context is done.
type ExecRunner struct {
	// Binary defaults to DefaultBinary
	Binary string
	// WaitDelay defaults to DefaultWaitDelay
	WaitDelay time.Duration
}

// Run executes the command and returns its standard output
func (r ExecRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &CommandError{
			Args:   append([]string{binary}, args...),
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}
