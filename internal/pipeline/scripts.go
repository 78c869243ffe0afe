package pipeline

import (
	"context"

	"github.com/Beg-in/gulp-begin/internal/task"
)

const scriptBundle = "app.js"

// Scripts returns the script bundle task body. Three independently
// produced streams merge in a fixed order: concatenated library scripts,
// view templates compiled into a script-loadable cache, then transpiled
// client scripts. The result is concatenated, minified, and written with
// a source map.
func (s Stage) Scripts() task.Func {
	return func(ctx context.Context) error {
		lib := Read(s.Root, s.Files.Scripts.Lib)
		templates := Read(s.Root, s.Files.Templates.Src)
		src := Read(s.Root, s.Files.Scripts.Src)

		sources := recordPaths(lib, templates, src)

		bundle := Merge(
			lib.Concat("lib.js"),
			templates.
				Pipe(s.Tools.MinifyHTML).
				Pipe(CompileTemplates(s.Cfg.Client.Cwd)).
				Concat("templates.js"),
			src.Pipe(s.Tools.Transpile),
		).
			Concat(scriptBundle).
			Pipe(s.Tools.MinifyJS)

		written, err := bundle.WriteWithSourceMap(s.Root, s.Cfg.ScriptsDest(), sources)
		if err != nil {
			return err
		}
		s.logger().Printf("scripts: wrote %d artifact(s)", len(written))
		return nil
	}
}

// recordPaths collects the source paths of the given streams in order,
// for source-map attribution.
func recordPaths(streams ...*Stream) []string {
	var out []string
	for _, s := range streams {
		if s == nil || s.Err() != nil {
			continue
		}
		for _, f := range s.Files() {
			out = append(out, f.Path)
		}
	}
	return out
}
