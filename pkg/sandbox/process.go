package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// ExitError is a collaborator process that ran but exited non-zero
type ExitError struct {
	Program string
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s %s exited with code %d", e.Program, e.Command, e.Code)
}

// stderrTail is how much stderr is kept for the error log, build progress can be large
const stderrTail = 64 * 1024

// process runs one external command to completion.
// The exit status is the only failure signal, stderr is diagnostics.
type process struct {
	program string
	args    []string
	stdin   io.Reader
	// stdout and stderr are forwarded here when set, captured otherwise
	stdout io.Writer
	stderr io.Writer
	// interrupt, when set, is sent on cancellation instead of a kill,
	// giving the process waitDelay to exit before it is killed
	interrupt bool
	waitDelay time.Duration
}

type processResult struct {
	stdout bytes.Buffer
	stderr tail
}

func (p *process) run(ctx context.Context) (*processResult, error) {
	cmd := exec.CommandContext(ctx, p.program, p.args...)
	cmd.Env = os.Environ()
	if p.interrupt {
		cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
		cmd.WaitDelay = p.waitDelay
	}
	result := &processResult{stderr: tail{max: stderrTail}}
	cmd.Stdout = &result.stdout
	if p.stdout != nil {
		cmd.Stdout = p.stdout
	}
	cmd.Stderr = &result.stderr
	if p.stderr != nil {
		cmd.Stderr = io.MultiWriter(p.stderr, &result.stderr)
	}
	if p.stdin != nil {
		cmd.Stdin = p.stdin
	}

	runErr := cmd.Run()
	if runErr != nil {
		zap.L().Error(p.program,
			zap.Strings("args", p.args),
			zap.ByteString("stderr", result.stderr.Bytes()),
			zap.Error(runErr),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("%s %s: %w", p.program, p.command(), ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return result, &ExitError{Program: p.program, Command: p.command(), Code: exitErr.ExitCode()}
		}
		return result, fmt.Errorf("%s %s: %w", p.program, p.command(), runErr)
	}
	if result.stderr.Len() > 0 {
		zap.L().Debug("stderr", zap.String("program", p.program), zap.String("command", p.command()), zap.ByteString("stderr", result.stderr.Bytes()))
	}
	return result, nil
}

func (p *process) command() string {
	if len(p.args) == 0 {
		return ""
	}
	return p.args[0]
}

// tail keeps the last max bytes written to it
type tail struct {
	max int
	buf []byte
}

func (t *tail) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.max {
		t.buf = append(t.buf[:0], p[n-t.max:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tail) Bytes() []byte { return t.buf }

func (t *tail) Len() int { return len(t.buf) }
