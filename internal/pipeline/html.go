package pipeline

import (
	"context"

	"github.com/Beg-in/gulp-begin/internal/task"
)

// HTML returns the markup task body: delete stale output for this
// category's sources, minify, and write to the client destination root.
func (s Stage) HTML() task.Func {
	return func(ctx context.Context) error {
		if err := s.clean(s.Cfg.HTMLDest(), []string{"**/*.html"}); err != nil {
			return err
		}
		written, err := Read(s.Root, s.Files.HTML.Src).
			Pipe(s.Tools.MinifyHTML).
			Pipe(StripPrefix(s.Cfg.Client.Cwd)).
			Write(s.Root, s.Cfg.HTMLDest())
		if err != nil {
			return err
		}
		s.logger().Printf("html: wrote %d artifact(s)", len(written))
		return nil
	}
}
