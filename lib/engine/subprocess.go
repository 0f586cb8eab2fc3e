// Copyright 2026 The Gitcell Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gitcell-io/gitcell/lib/clock"
)

// diagnosticLimit caps the command output kept in a failure outcome.
// Full output still reaches the runner's own stderr via the logger;
// the outcome only needs enough to identify the failure.
const diagnosticLimit = 4096

// Subprocess runs jobs by spawning the configured command with the
// job path appended, in the job's directory. The command is expected
// to rewrite the notebook in place.
type Subprocess struct {
	// Command is the executable and its fixed arguments, e.g.
	// ["jupyter", "nbconvert", "--to", "notebook", "--execute",
	// "--inplace"]. The job path is appended per execution.
	Command []string

	// Timeout bounds one execution. On expiry the whole process group
	// is killed and the outcome is a failure.
	Timeout time.Duration

	// SetupHook and TeardownHook are optional shell commands run via
	// sh -c in the job directory before and after execution. A setup
	// failure aborts the job as a failure outcome; a teardown failure
	// is logged and otherwise ignored.
	SetupHook    string
	TeardownHook string

	Clock clock.Clock
	Log   *slog.Logger
}

// Execute runs the job notebook at jobPath. See the package comment
// for the error/outcome split.
func (s *Subprocess) Execute(ctx context.Context, jobPath string) (Outcome, error) {
	if len(s.Command) == 0 {
		return Outcome{}, errors.New("engine: no command configured")
	}

	jobDir := filepath.Dir(jobPath)
	started := s.Clock.Now()

	if s.SetupHook != "" {
		if output, err := s.runHook(ctx, jobDir, s.SetupHook); err != nil {
			return Outcome{
				Status:     StatusFailure,
				Diagnostic: fmt.Sprintf("setup hook failed: %v\n%s", err, tail(output)),
				Duration:   s.Clock.Now().Sub(started),
			}, nil
		}
	}

	outcome, err := s.runJob(ctx, jobDir, jobPath)
	outcome.Duration = s.Clock.Now().Sub(started)

	if s.TeardownHook != "" {
		if output, hookErr := s.runHook(context.WithoutCancel(ctx), jobDir, s.TeardownHook); hookErr != nil {
			s.Log.Warn("teardown hook failed",
				"error", hookErr,
				"output", tail(output))
		}
	}
	return outcome, err
}

func (s *Subprocess) runJob(ctx context.Context, jobDir, jobPath string) (Outcome, error) {
	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, s.Command[1:]...), jobPath)
	cmd := exec.CommandContext(runCtx, s.Command[0], args...)
	cmd.Dir = jobDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	// Run the command in its own process group so a timeout kills the
	// kernel process and everything it spawned, not just the launcher.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	err := cmd.Run()
	if err == nil {
		return Outcome{Status: StatusSuccess}, nil
	}

	if runCtx.Err() != nil && ctx.Err() == nil {
		return Outcome{
			Status:     StatusFailure,
			Diagnostic: fmt.Sprintf("execution timed out after %s", s.Timeout),
		}, nil
	}
	if ctx.Err() != nil {
		// Runner shutdown, not a job verdict.
		return Outcome{}, ctx.Err()
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return Outcome{
			Status:     StatusFailure,
			Diagnostic: fmt.Sprintf("exit status %d\n%s", exitError.ExitCode(), tail(output.Bytes())),
		}, nil
	}
	// Spawn failure (binary missing, permissions). The environment is
	// broken, not the job.
	return Outcome{}, fmt.Errorf("engine: starting %s: %w", s.Command[0], err)
}

func (s *Subprocess) runHook(ctx context.Context, dir, hook string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", hook)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd.CombinedOutput()
}

func tail(output []byte) string {
	if len(output) > diagnosticLimit {
		output = output[len(output)-diagnosticLimit:]
	}
	return string(output)
}
