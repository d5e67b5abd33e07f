// Package extract runs the media-extraction tool as a subprocess and turns
// its output into model types or classified failures.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// DefaultKillGrace is how long a terminated process group gets between
// SIGTERM and SIGKILL.
const DefaultKillGrace = 3 * time.Second

// Result is the fully drained output of a finished subprocess. A non-zero
// exit is reported through ExitCode, not as an error.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Process is a running subprocess whose stdout is consumed incrementally.
// Callers must read Stdout until EOF (or cancel the start context) before
// calling Wait.
type Process interface {
	Stdout() io.Reader
	Wait() error
}

// Runner starts extractor invocations. ExecRunner is the production
// implementation; tests substitute fakes.
type Runner interface {
	// Run blocks until the process exits and both output streams are
	// drained. Context expiry returns an error wrapping the context error.
	Run(ctx context.Context, args []string) (*Result, error)
	// Start launches the process with stdout piped to the caller and
	// stderr copied to the given writer.
	Start(ctx context.Context, args []string, stderr io.Writer) (Process, error)
}

// ExecRunner executes Binary in its own process group. Cancelling the
// context sends SIGTERM to the group and SIGKILL after KillGrace.
type ExecRunner struct {
	Binary    string
	KillGrace time.Duration
}

func (r *ExecRunner) grace() time.Duration {
	if r.KillGrace > 0 {
		return r.KillGrace
	}
	return DefaultKillGrace
}

func (r *ExecRunner) command(ctx context.Context, args []string) *exec.Cmd {
	grace := r.grace()
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return terminateGroup(cmd.Process, grace)
	}
	cmd.WaitDelay = grace
	return cmd
}

func (r *ExecRunner) Run(ctx context.Context, args []string) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := r.command(ctx, args)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}
	// A kill caused by the deadline surfaces as an exit error; report the
	// deadline instead.
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", r.Binary, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("run %s: %w", r.Binary, err)
}

func (r *ExecRunner) Start(ctx context.Context, args []string, stderr io.Writer) (Process, error) {
	cmd := r.command(ctx, args)
	if stderr == nil {
		stderr = io.Discard
	}
	cmd.Stderr = stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.Binary, err)
	}
	return &execProcess{cmd: cmd, stdout: out}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }
