// Package executor runs the privileged external tools (ip, sysctl, iptables)
// that materialize VPC state. Commands are always pre-tokenized; nothing is
// ever passed through a shell.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/types"
)

// DefaultTimeout bounds a single link/filter command.
const DefaultTimeout = 30 * time.Second

// Executor abstracts command execution so orchestration code is identical in
// live and dry-run modes.
type Executor interface {
	// Run executes a mutating command. In dry-run mode the command is traced
	// and not executed.
	Run(ctx context.Context, tokens []string) error
	// Probe executes a read-only existence check and reports whether it
	// succeeded. Probes run even in dry-run mode; failures (including a
	// missing binary or missing privilege) degrade to "absent".
	Probe(ctx context.Context, tokens []string) bool
	// Output executes a read-only command and returns its stdout.
	Output(ctx context.Context, tokens []string) (string, error)
}

// Live executes commands against the host.
type Live struct {
	// Timeout bounds each command; DefaultTimeout when zero.
	Timeout time.Duration
}

// NewLive returns a live executor with the given per-command timeout.
func NewLive(timeout time.Duration) *Live {
	return &Live{Timeout: timeout}
}

func (l *Live) timeout() time.Duration {
	if l.Timeout > 0 {
		return l.Timeout
	}
	return DefaultTimeout
}

// Run implements Executor.
func (l *Live) Run(ctx context.Context, tokens []string) error {
	log.WithFunc("executor.Run").Infof(ctx, ">>> %s", strings.Join(tokens, " "))
	_, err := l.exec(ctx, tokens)
	return err
}

// Probe implements Executor.
func (l *Live) Probe(ctx context.Context, tokens []string) bool {
	_, err := l.exec(ctx, tokens)
	return err == nil
}

// Output implements Executor.
func (l *Live) Output(ctx context.Context, tokens []string) (string, error) {
	return l.exec(ctx, tokens)
}

func (l *Live) exec(ctx context.Context, tokens []string) (string, error) {
	if len(tokens) == 0 {
		return "", fmt.Errorf("empty command")
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, tokens[0], tokens[1:]...) //nolint:gosec // tokens are built by vpcctl, not user shell input
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return stdout.String(), fmt.Errorf("%w after %s: %s", types.ErrTimeout, l.timeout(), strings.Join(tokens, " "))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &types.ExecError{
			Tokens:   tokens,
			Stderr:   stderr.String(),
			ExitCode: exitErr.ExitCode(),
		}
	}
	return stdout.String(), fmt.Errorf("exec %s: %w", tokens[0], err)
}

// Dry traces mutating commands to a sink instead of executing them.
// Read-only probes and output still hit the host (best-effort) so planning
// against live state keeps working during a preview.
type Dry struct {
	// Trace receives one line per suppressed command; os.Stdout when nil.
	Trace io.Writer
	live  *Live
}

// NewDry returns a dry-run executor tracing to w (stdout when nil).
func NewDry(w io.Writer, timeout time.Duration) *Dry {
	return &Dry{Trace: w, live: NewLive(timeout)}
}

// Run implements Executor: trace only, no side effect.
func (d *Dry) Run(_ context.Context, tokens []string) error {
	w := d.Trace
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, ">>> %s\n", strings.Join(tokens, " "))
	return nil
}

// Probe implements Executor.
func (d *Dry) Probe(ctx context.Context, tokens []string) bool {
	return d.live.Probe(ctx, tokens)
}

// Output implements Executor.
func (d *Dry) Output(ctx context.Context, tokens []string) (string, error) {
	return d.live.Output(ctx, tokens)
}
