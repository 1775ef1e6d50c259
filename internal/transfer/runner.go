package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result captures a finished external command. It is ephemeral; the
// engine only ever logs it.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner is the process boundary. Tests substitute it to observe
// exactly which commands the executor issues.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		// a timed-out command is killed by the context; surface that
		// rather than the generic "signal: killed"
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}

	return res, nil
}

// ExitError reports a transfer command that ran but exited non-zero.
type ExitError struct {
	Cmd    string
	Result *Result
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Cmd, e.Result.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Cmd, e.Result.ExitCode, msg)
}
