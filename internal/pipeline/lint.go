package pipeline

import (
	"context"
	"strings"

	"github.com/Beg-in/gulp-begin/internal/task"
)

// Finding is one static-analysis result.
type Finding struct {
	Path    string
	Line    int
	Message string
}

// Lint returns the static-analysis task body. It scans server scripts,
// test scripts, and client scripts and reports findings in a readable
// format. Findings never fail the task; they are informational by policy.
func (s Stage) Lint() task.Func {
	return func(ctx context.Context) error {
		patterns := make([]string, 0, 8)
		patterns = append(patterns, s.Cfg.Server.Watch...)
		patterns = append(patterns, s.Cfg.Test.Watch...)
		patterns = append(patterns, s.Files.Scripts.Src...)

		stream := Read(s.Root, patterns)
		if err := stream.Err(); err != nil {
			return err
		}
		total := 0
		for _, f := range stream.Files() {
			for _, finding := range LintFile(f) {
				s.logger().Printf("lint: %s:%d: %s", finding.Path, finding.Line, finding.Message)
				total++
			}
		}
		if total > 0 {
			s.logger().Printf("lint: %d finding(s)", total)
		}
		return nil
	}
}

// LintFile applies the built-in rules to one file.
func LintFile(f File) []Finding {
	var findings []Finding
	for i, line := range strings.Split(string(f.Contents), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "debugger" || trimmed == "debugger;" {
			findings = append(findings, Finding{
				Path: f.Path, Line: i + 1, Message: "debugger statement",
			})
		}
		if strings.Contains(trimmed, "console.log(") {
			findings = append(findings, Finding{
				Path: f.Path, Line: i + 1, Message: "console.log call",
			})
		}
		if line != strings.TrimRight(line, " \t") {
			findings = append(findings, Finding{
				Path: f.Path, Line: i + 1, Message: "trailing whitespace",
			})
		}
	}
	return findings
}
