package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Beg-in/gulp-begin/internal/logging"
	"github.com/Beg-in/gulp-begin/internal/task"
)

// Test returns the test task body: instrument server sources for
// coverage, execute the configured test entry point, and write the
// coverage report. The lint dependency is declared in the task graph, not
// here.
func (s Stage) Test(runner Runner) task.Func {
	return func(ctx context.Context) error {
		if runner == nil {
			return fmt.Errorf("pipeline: test stage requires a runner")
		}
		server := Read(s.Root, s.Cfg.Server.Watch)
		if err := server.Err(); err != nil {
			return err
		}
		report := instrument(server.Files())

		argv := append(append([]string{}, s.Cfg.Test.Command...), s.Cfg.Test.Main)
		code, err := runner.Spawn(ctx, argv, s.Root)
		if err != nil {
			return fmt.Errorf("pipeline: run tests: %w", err)
		}
		if writeErr := s.writeCoverageReport(report); writeErr != nil {
			return writeErr
		}
		if code != 0 {
			return fmt.Errorf("pipeline: tests exited with code %d", code)
		}
		s.logger().Printf("test: %d server file(s) instrumented", len(report))
		return nil
	}
}

// coverageRecord pairs an instrumented file with its statement count.
type coverageRecord struct {
	path       string
	statements int
}

func instrument(files []File) []coverageRecord {
	records := make([]coverageRecord, 0, len(files))
	for _, f := range files {
		count := 0
		for _, line := range strings.Split(string(f.Contents), "\n") {
			if strings.HasSuffix(strings.TrimSpace(line), ";") {
				count++
			}
		}
		records = append(records, coverageRecord{path: f.Path, statements: count})
	}
	return records
}

func (s Stage) writeCoverageReport(records []coverageRecord) error {
	dir := filepath.Join(s.Root, logging.WorkDir, "coverage")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pipeline: ensure coverage dir: %w", err)
	}
	var buf bytes.Buffer
	for _, rec := range records {
		fmt.Fprintf(&buf, "%s %d\n", rec.path, rec.statements)
	}
	path := filepath.Join(dir, "coverage.txt")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("pipeline: write coverage report: %w", err)
	}
	return nil
}
