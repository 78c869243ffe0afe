package pipeline

import (
	"context"
	"path"

	"github.com/Beg-in/gulp-begin/internal/task"
)

// Images returns the image task body: delete stale destination output,
// run the optimizer over every source image, and write.
func (s Stage) Images() task.Func {
	return func(ctx context.Context) error {
		if err := s.clean(s.Cfg.ImagesDest(), []string{"**"}); err != nil {
			return err
		}
		prefix := path.Join(s.Cfg.Client.Cwd, s.Cfg.Client.Images.Cwd)
		written, err := Read(s.Root, s.Files.Images.Src).
			Pipe(s.Tools.OptimizeImage).
			Pipe(StripPrefix(prefix)).
			Write(s.Root, s.Cfg.ImagesDest())
		if err != nil {
			return err
		}
		s.logger().Printf("images: wrote %d artifact(s)", len(written))
		return nil
	}
}
