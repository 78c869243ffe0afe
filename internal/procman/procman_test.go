package procman

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Beg-in/gulp-begin/internal/config"
)

func TestSpawnReportsExitCode(t *testing.T) {
	e := Exec{}
	code, err := e.Spawn(context.Background(), []string{"sh", "-c", "exit 0"}, "")
	if err != nil || code != 0 {
		t.Fatalf("clean exit: code=%d err=%v", code, err)
	}
	code, err = e.Spawn(context.Background(), []string{"sh", "-c", "exit 7"}, "")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if code != 7 {
		t.Fatalf("code = %d", code)
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	e := Exec{}
	if _, err := e.Spawn(context.Background(), []string{"definitely-not-a-binary"}, ""); err == nil {
		t.Fatalf("expected start failure")
	}
}

func TestOutputCapturesStdout(t *testing.T) {
	e := Exec{}
	out, err := e.Output(context.Background(), []string{"sh", "-c", "printf hello"}, "")
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("out = %q", out)
	}
}

type scriptedRunner struct {
	calls [][]string
	codes []int
}

func (r *scriptedRunner) Spawn(_ context.Context, argv []string, _ string) (int, error) {
	r.calls = append(r.calls, argv)
	if len(r.codes) == 0 {
		return 0, nil
	}
	code := r.codes[0]
	r.codes = r.codes[1:]
	return code, nil
}

func TestInstallRunsInstallThenPrune(t *testing.T) {
	runner := &scriptedRunner{}
	pkgs := config.Default().Packages
	if err := Install(context.Background(), runner, pkgs, "."); err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("calls = %v", runner.calls)
	}
	if runner.calls[0][0] != "npm" || runner.calls[0][1] != "install" {
		t.Fatalf("first call = %v", runner.calls[0])
	}
	if runner.calls[1][1] != "prune" {
		t.Fatalf("second call = %v", runner.calls[1])
	}
}

func TestInstallStopsOnNonZeroInstall(t *testing.T) {
	runner := &scriptedRunner{codes: []int{1}}
	err := Install(context.Background(), runner, config.Default().Packages, ".")
	if err == nil {
		t.Fatalf("expected install failure")
	}
	if len(runner.calls) != 1 {
		t.Fatalf("prune ran after failed install: %v", runner.calls)
	}
}

func TestInstallFailureCarriesExitCode(t *testing.T) {
	runner := &scriptedRunner{codes: []int{7}}
	err := Install(context.Background(), runner, config.Default().Packages, ".")
	var step *StepError
	if !errors.As(err, &step) {
		t.Fatalf("err = %v, want StepError", err)
	}
	if step.Code != 7 || step.ExitCode() != 7 {
		t.Fatalf("step code = %d", step.Code)
	}
	if step.Step != "npm" {
		t.Fatalf("step = %q", step.Step)
	}
}

func TestChildRunsToCompletion(t *testing.T) {
	c := NewChild([]string{"sh", "-c", "exit 3"}, "", nil)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("child never exited")
	}
	if c.ExitCode() != 3 {
		t.Fatalf("exit code = %d", c.ExitCode())
	}
	if c.Stopped() {
		t.Fatalf("unforced exit reported as stopped")
	}
}

func TestChildStopTerminatesProcess(t *testing.T) {
	c := NewChild([]string{"sleep", "30"}, "", nil)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatalf("done not closed after stop")
	}
	if !c.Stopped() {
		t.Fatalf("stop not recorded")
	}
}

func TestChildStartTwice(t *testing.T) {
	c := NewChild([]string{"sh", "-c", "exit 0"}, "", nil)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatalf("second start should fail")
	}
	<-c.Done()
}

func TestChildDistinctIDs(t *testing.T) {
	a := NewChild([]string{"true"}, "", nil)
	b := NewChild([]string{"true"}, "", nil)
	if a.ID == b.ID || a.ID == "" {
		t.Fatalf("ids: %q %q", a.ID, b.ID)
	}
}
