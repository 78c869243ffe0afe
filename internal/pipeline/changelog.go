package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/Beg-in/gulp-begin/internal/task"
)

const changelogArtifact = "CHANGELOG.md"

// changelogSections fixes the order and headings for the conventional
// commit prefixes the generator recognizes.
var changelogSections = []struct {
	prefix  string
	heading string
}{
	{"feat", "Features"},
	{"fix", "Bug Fixes"},
	{"perf", "Performance"},
	{"docs", "Documentation"},
	{"refactor", "Refactoring"},
}

// Changelog returns the changelog task body: regenerate CHANGELOG.md from
// commit history using the conventional-commit subject convention.
// One-shot and order-independent.
func (s Stage) Changelog(runner Runner) task.Func {
	return func(ctx context.Context) error {
		if runner == nil {
			return fmt.Errorf("pipeline: changelog stage requires a runner")
		}
		out, err := runner.Output(ctx, []string{"git", "log", "--pretty=format:%s"}, s.Root)
		if err != nil {
			return fmt.Errorf("pipeline: read commit history: %w", err)
		}
		doc := renderChangelog(strings.Split(string(out), "\n"))
		written, werr := NewStream([]File{{Path: changelogArtifact, Contents: doc}}).
			Write(s.Root, "")
		if werr != nil {
			return werr
		}
		s.logger().Printf("changelog: wrote %s", written[0])
		return nil
	}
}

func renderChangelog(subjects []string) []byte {
	grouped := make(map[string][]string)
	for _, subject := range subjects {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		kind, rest, found := strings.Cut(subject, ":")
		if !found {
			continue
		}
		// Strip a scope suffix like feat(parser).
		if open := strings.Index(kind, "("); open >= 0 {
			kind = kind[:open]
		}
		kind = strings.TrimSpace(kind)
		grouped[kind] = append(grouped[kind], strings.TrimSpace(rest))
	}
	var buf bytes.Buffer
	buf.WriteString("# Changelog\n")
	for _, section := range changelogSections {
		entries := grouped[section.prefix]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "\n## %s\n\n", section.heading)
		for _, entry := range entries {
			fmt.Fprintf(&buf, "- %s\n", entry)
		}
	}
	return buf.Bytes()
}
