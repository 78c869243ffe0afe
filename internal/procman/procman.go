// Package procman shells out to the host toolchain: one-shot commands for
// the build and test stages, package-manager invocations for manifest
// changes, and supervised long-running children for the dev loop.
package procman

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/Beg-in/gulp-begin/internal/config"
)

// Logger is the minimal logging sink the package reports to.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Exec runs one-shot commands. It satisfies the pipeline runner contract.
type Exec struct {
	Logger Logger
}

func (e Exec) logger() Logger {
	if e.Logger == nil {
		return nopLogger{}
	}
	return e.Logger
}

// Spawn runs argv to completion in dir and returns its exit code. A
// non-zero exit is reported through the code, not the error; the error is
// reserved for failures to start or signal-terminated children.
func (e Exec) Spawn(ctx context.Context, argv []string, dir string) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("procman: spawn: empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	e.logger().Printf("procman: run %v", argv)
	err := cmd.Run()
	if out.Len() > 0 {
		e.logger().Printf("procman: %s: %s", argv[0], bytes.TrimSpace(out.Bytes()))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("procman: run %s: %w", argv[0], err)
	}
	return 0, nil
}

// Output runs argv in dir and returns its standard output.
func (e Exec) Output(ctx context.Context, argv []string, dir string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("procman: output: empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("procman: run %s: %w", argv[0], err)
	}
	return out, nil
}

// Runner is the subset of Exec the package helpers need, split out so
// tests can substitute a fake.
type Runner interface {
	Spawn(ctx context.Context, argv []string, dir string) (int, error)
}

// Install runs the package-manager install followed by prune, the
// sequence the dev loop triggers when the dependency manifest changes.
func Install(ctx context.Context, r Runner, pkgs config.PackagesConfig, dir string) error {
	if err := runStep(ctx, r, pkgs.Install, dir); err != nil {
		return err
	}
	return runStep(ctx, r, pkgs.Prune, dir)
}

// InstallLibs runs the library-manager install, triggered when the
// library manifest changes.
func InstallLibs(ctx context.Context, r Runner, pkgs config.PackagesConfig, dir string) error {
	return runStep(ctx, r, pkgs.InstallLibs, dir)
}

// StepError reports an install step that exited non-zero, keeping the
// exit status addressable for callers that forward it.
type StepError struct {
	Step string
	Code int
}

func (e *StepError) Error() string {
	return fmt.Sprintf("procman: %s exited with code %d", e.Step, e.Code)
}

// ExitCode returns the failed step's exit status.
func (e *StepError) ExitCode() int { return e.Code }

func runStep(ctx context.Context, r Runner, argv []string, dir string) error {
	if len(argv) == 0 {
		return nil
	}
	code, err := r.Spawn(ctx, argv, dir)
	if err != nil {
		return err
	}
	if code != 0 {
		return &StepError{Step: argv[0], Code: code}
	}
	return nil
}
