// Package tool runs the external programs the build tooling drives: objdump, serde_conv and the
// emulator.
package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

type Runner interface {
	// Run executes name with args, streaming its standard output to stdout, and waits for it.
	Run(ctx context.Context, stdout io.Writer, name string, args ...string) error
}

type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, stdout io.Writer, name string, args ...string) error {
	slog.Debug("Running external tool", "name", name, "args", args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
