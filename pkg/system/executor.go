package system

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// ExitError is returned by an Executor when a command exits non-zero. It
// carries the captured stderr so callers can surface the tool's own message.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr []byte
}

func (e *ExitError) Error() string {
	msg := bytes.TrimSpace(e.Stderr)
	if len(msg) == 0 {
		return fmt.Sprintf("command '%s' exited with code %d", e.Cmd, e.Code)
	}
	return fmt.Sprintf("command '%s' exited with code %d: %s", e.Cmd, e.Code, msg)
}

// Executor runs short-lived external commands and returns their stdout.
// It must not be used for long-lived processes or commands with large
// output since the full output is captured in memory.
type Executor interface {
	Run(ctx context.Context, cmd *Command) ([]byte, error)
}

// System is the default Executor backed by os/exec.
type System struct{}

// Run executes the command, returning stdout. A non-zero exit is reported
// as *ExitError with the captured stderr.
func (System) Run(ctx context.Context, cmd *Command) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	exe := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	exe.Stdout = &stdout
	exe.Stderr = &stderr

	if err := exe.Run(); err != nil {
		if exit, ok := err.(*exec.ExitError); ok {
			return nil, &ExitError{
				Cmd:    cmd.String(),
				Code:   exit.ExitCode(),
				Stderr: stderr.Bytes(),
			}
		}
		return nil, fmt.Errorf("failed to spawn command '%s': %w", cmd.String(), err)
	}

	return stdout.Bytes(), nil
}
