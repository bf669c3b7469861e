package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/ekisa-team/lerobot-preview/internal/envvar"
)

// DefaultBinary is the Rerun Viewer binary looked up on PATH when no
// override is configured.
const DefaultBinary = "rerun"

// ErrBinaryNotFound indicates the viewer binary could not be located.
var ErrBinaryNotFound = errors.New("rerun binary not found")

// Runner is the interface for starting external processes.
type Runner interface {
	Start(ctx context.Context, name string, args []string) (wait func() error, err error)
}

// ExecRunner uses os/exec.
type ExecRunner struct{}

// Start starts a command with stderr passed through.
func (ExecRunner) Start(ctx context.Context, name string, args []string) (func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return cmd.Wait, nil
}

// Viewer launches the Rerun Viewer on cached episode files.
type Viewer struct {
	binary string
	runner Runner
}

// New creates a Viewer, resolving the binary on PATH. An empty binary falls
// back to DefaultBinary.
func New(binary string) (*Viewer, error) {
	if binary == "" {
		binary = DefaultBinary
	}

	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (set viewer.binary in the config or %s to override)",
			ErrBinaryNotFound, binary, envvar.RerunBin)
	}

	return &Viewer{binary: resolved, runner: ExecRunner{}}, nil
}

// NewWithRunner creates a Viewer with a custom runner and no PATH lookup.
func NewWithRunner(binary string, runner Runner) *Viewer {
	return &Viewer{binary: binary, runner: runner}
}

// Spawn launches the viewer on dir under the given recording ID and returns
// a wait function for the viewer process.
func (v *Viewer) Spawn(ctx context.Context, dir, recordingID string) (func() error, error) {
	args := []string{"--recording-id", recordingID, dir}

	wait, err := v.runner.Start(ctx, v.binary, args)
	if err != nil {
		return nil, fmt.Errorf("viewer: failed to spawn %s: %w", v.binary, err)
	}

	slog.Info("Viewer spawned", "binary", v.binary, "dir", dir, "recording_id", recordingID)
	return wait, nil
}

// Send feeds additional files into the running viewer session. The rerun CLI
// connects to an already open viewer for the same recording ID.
func (v *Viewer) Send(ctx context.Context, recordingID string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"--recording-id", recordingID}, paths...)

	wait, err := v.runner.Start(ctx, v.binary, args)
	if err != nil {
		return fmt.Errorf("viewer: failed to send files: %w", err)
	}
	if err := wait(); err != nil {
		return fmt.Errorf("viewer: failed to send files: %w", err)
	}

	slog.Info("Sent files to viewer", "count", len(paths), "recording_id", recordingID)
	return nil
}
