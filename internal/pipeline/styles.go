package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Beg-in/gulp-begin/internal/task"
)

const styleBundle = "main.css"

// Styles returns the stylesheet task body: compile the style source graph
// with include paths drawn from both library and source include sets,
// vendor-prefix, concatenate, minify, and write with a source map.
func (s Stage) Styles() task.Func {
	return func(ctx context.Context) error {
		includes, err := s.loadStyleIncludes()
		if err != nil {
			return err
		}
		entries := Read(s.Root, s.Files.Styles.Src)
		sources := recordPaths(entries)

		out := entries.
			Pipe(ResolveImports(includes)).
			Pipe(s.Tools.PrefixCSS).
			Concat(styleBundle).
			Pipe(s.Tools.MinifyCSS)

		written, err := out.WriteWithSourceMap(s.Root, s.Cfg.StylesDest(), sources)
		if err != nil {
			return err
		}
		s.logger().Printf("styles: wrote %d artifact(s)", len(written))
		return nil
	}
}

// loadStyleIncludes reads every style file under the include sets into a
// name-keyed map. Library includes load first so project includes shadow
// them.
func (s Stage) loadStyleIncludes() (map[string][]byte, error) {
	includes := make(map[string][]byte)
	for _, group := range [][]string{s.Files.StyleIncludes.Lib, s.Files.StyleIncludes.Src} {
		patterns := make([]string, 0, len(group))
		for _, dir := range group {
			patterns = append(patterns, dir+"/**/*.scss", dir+"/**/*.css")
		}
		stream := Read(s.Root, patterns)
		if err := stream.Err(); err != nil {
			return nil, err
		}
		for _, f := range stream.Files() {
			includes[includeName(f.Path)] = f.Contents
		}
	}
	return includes, nil
}

func includeName(path string) string {
	base := path[strings.LastIndex(path, "/")+1:]
	base = strings.TrimSuffix(base, ".scss")
	base = strings.TrimSuffix(base, ".css")
	return strings.TrimPrefix(base, "_")
}

var importDirective = regexp.MustCompile(`(?m)^\s*@import\s+["']([^"']+)["'];?\s*$`)

// ResolveImports inlines @import directives from the include map. Imports
// resolve recursively; an unknown name or a cycle fails the stream.
func ResolveImports(includes map[string][]byte) Transform {
	return func(f File) (File, error) {
		resolved, err := inlineImports(string(f.Contents), includes, map[string]bool{})
		if err != nil {
			return File{}, fmt.Errorf("%s: %w", f.Path, err)
		}
		f.Contents = []byte(resolved)
		return f, nil
	}
}

func inlineImports(body string, includes map[string][]byte, active map[string]bool) (string, error) {
	var firstErr error
	out := importDirective.ReplaceAllStringFunc(body, func(directive string) string {
		if firstErr != nil {
			return directive
		}
		name := importDirective.FindStringSubmatch(directive)[1]
		name = includeName(name)
		if active[name] {
			firstErr = fmt.Errorf("import cycle through %q", name)
			return directive
		}
		contents, ok := includes[name]
		if !ok {
			firstErr = fmt.Errorf("unknown import %q", name)
			return directive
		}
		active[name] = true
		inlined, err := inlineImports(string(contents), includes, active)
		delete(active, name)
		if err != nil {
			firstErr = err
			return directive
		}
		return inlined
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
