package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/Beg-in/gulp-begin/internal/task"
)

const docsArtifact = "docs/api.md"

// Docs returns the documentation task body: concatenate the doc comments
// of server and client scripts into one generated document. One-shot and
// order-independent.
func (s Stage) Docs() task.Func {
	return func(ctx context.Context) error {
		patterns := make([]string, 0, 4)
		patterns = append(patterns, s.Cfg.Server.Watch...)
		patterns = append(patterns, s.Files.Scripts.Src...)
		stream := Read(s.Root, patterns)
		if err := stream.Err(); err != nil {
			return err
		}
		var buf bytes.Buffer
		buf.WriteString("# API\n")
		for _, f := range stream.Files() {
			section := extractDocComments(f.Contents)
			if section == "" {
				continue
			}
			fmt.Fprintf(&buf, "\n## %s\n\n%s\n", f.Path, section)
		}
		written, err := NewStream([]File{{Path: docsArtifact, Contents: buf.Bytes()}}).
			Write(s.Root, "")
		if err != nil {
			return err
		}
		s.logger().Printf("docs: wrote %s", written[0])
		return nil
	}
}

// extractDocComments pulls /** ... */ blocks and /// lines out of a
// script source.
func extractDocComments(contents []byte) string {
	var out []string
	inBlock := false
	for _, line := range strings.Split(string(contents), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case inBlock:
			if strings.HasSuffix(trimmed, "*/") {
				inBlock = false
				continue
			}
			out = append(out, strings.TrimPrefix(strings.TrimPrefix(trimmed, "*"), " "))
		case strings.HasPrefix(trimmed, "/**"):
			if !strings.HasSuffix(trimmed, "*/") {
				inBlock = true
			}
		case strings.HasPrefix(trimmed, "///"):
			out = append(out, strings.TrimSpace(strings.TrimPrefix(trimmed, "///")))
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
