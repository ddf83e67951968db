package driver

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	jujuerrors "github.com/juju/errors"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
)

// Runner executes host commands for the esxcli driver.
type Runner interface {
	// Run executes a command that changes host state. A non-zero exit is
	// an error.
	Run(ctx context.Context, argv []string) error

	// Output executes a read-only command and returns its stdout.
	Output(ctx context.Context, argv []string) ([]byte, error)
}

// ─── Exec ───────────────────────────────────────────────────────────────────

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	log *zap.SugaredLogger
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a Runner that executes commands on this host.
func NewExecRunner(log *zap.SugaredLogger) *ExecRunner {
	return &ExecRunner{log: log.Named("exec")}
}

func (r *ExecRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	line := shellquote.Join(argv...)
	r.log.Debugw("executing", "command", line)

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", line, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *ExecRunner) Output(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	line := shellquote.Join(argv...)
	r.log.Debugw("executing", "command", line)

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", line, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", line, err)
	}
	return out, nil
}

// ─── Dry run ────────────────────────────────────────────────────────────────

// DryRunRunner logs and records state-changing commands without executing
// them. Read-only commands are passed to reader so that planning still sees
// the real host; with a nil reader they fail.
type DryRunRunner struct {
	reader Runner
	log    *zap.SugaredLogger

	mu       sync.Mutex
	commands [][]string
}

var _ Runner = (*DryRunRunner)(nil)

// NewDryRunRunner returns a dry-run Runner. reader may be nil.
func NewDryRunRunner(reader Runner, log *zap.SugaredLogger) *DryRunRunner {
	return &DryRunRunner{reader: reader, log: log.Named("dry-run")}
}

func (r *DryRunRunner) Run(_ context.Context, argv []string) error {
	r.log.Infow("would execute", "command", shellquote.Join(argv...))

	r.mu.Lock()
	r.commands = append(r.commands, append([]string(nil), argv...))
	r.mu.Unlock()
	return nil
}

func (r *DryRunRunner) Output(ctx context.Context, argv []string) ([]byte, error) {
	if r.reader == nil {
		return nil, jujuerrors.NotSupportedf("read-only command %q in dry run without a host", shellquote.Join(argv...))
	}
	return r.reader.Output(ctx, argv)
}

// Commands returns the commands that would have been executed, in order.
func (r *DryRunRunner) Commands() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.commands))
	copy(out, r.commands)
	return out
}
