package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
)

// Phases sent to helper programs.
const (
	PhaseValidate = "validate"
	PhaseRender   = string(domain.PhaseRender)
	PhaseInput    = string(domain.PhaseInput)
)

// Request is written as JSON to the helper's stdin.
type Request struct {
	Helper    string          `json:"helper"`
	Phase     string          `json:"phase"`
	Input     string          `json:"input,omitempty"`
	Variables map[string]any  `json:"variables,omitempty"`
	Session   *domain.Session `json:"session,omitempty"`
	Flow      string          `json:"flow,omitempty"`
	Screen    string          `json:"screen,omitempty"`
}

// Runner executes helper programs.
type Runner struct {
	baseDir string
	logger  *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger configures a logger for the Runner.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Call runs the manifest's command with req on stdin and returns its trimmed stdout.
// The invocation is bounded by the manifest timeout.
func (r *Runner) Call(ctx context.Context, m Manifest, req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode helper request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.TimeoutDuration())
	defer cancel()

	cmd := exec.CommandContext(ctx, m.Command, m.Args...)
	cmd.Dir = r.baseDir
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(payload)

	// Scalars are also exposed as environment variables for shell helpers.
	env := cmd.Environ()
	for k, v := range m.Environment {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"USSDFLOW_HELPER="+req.Helper,
		"USSDFLOW_PHASE="+req.Phase,
		"USSDFLOW_INPUT="+req.Input,
	)
	if req.Session != nil {
		env = append(env, "USSDFLOW_SESSION_ID="+req.Session.ID)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	r.logger.Debug("Helper process finished",
		"helper", req.Helper,
		"phase", req.Phase,
		"duration", time.Since(start),
		"err", err,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("helper %s: %w", req.Helper, ctx.Err())
		}
		return nil, fmt.Errorf("helper %s failed: %v. Stderr: %s", req.Helper, err, strings.TrimSpace(stderr.String()))
	}

	return bytes.TrimSpace(stdout.Bytes()), nil
}
