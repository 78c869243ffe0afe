// Package pipeline composes the per-category build stages: ordered
// sequences of stream transforms producing one artifact per asset
// category. Stage bodies satisfy the task contract and are registered by
// the engine; the transforms they compose live in the Toolchain and are
// replaceable by hosts and plugins.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Beg-in/gulp-begin/internal/config"
	"github.com/Beg-in/gulp-begin/internal/glob"
)

// Logger is the minimal logging sink stages report to.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Runner abstracts process execution for the test and changelog stages.
type Runner interface {
	Spawn(ctx context.Context, argv []string, dir string) (int, error)
	Output(ctx context.Context, argv []string, dir string) ([]byte, error)
}

// Stage bundles what every category body needs: the resolved
// configuration, the file-set snapshot, the toolchain, and a logger.
type Stage struct {
	Root   string
	Cfg    config.Config
	Files  config.FileSets
	Tools  Toolchain
	Logger Logger
}

func (s Stage) logger() Logger {
	if s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

// clean removes stale artifacts under destDir that match the patterns.
func (s Stage) clean(destDir string, patterns []string) error {
	dest := filepath.Join(s.Root, filepath.FromSlash(destDir))
	stale, err := glob.Expand(dest, patterns)
	if err != nil {
		return err
	}
	for _, rel := range stale {
		if err := os.Remove(filepath.Join(dest, filepath.FromSlash(rel))); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// StripPrefix rebases record paths by removing a leading directory, so
// artifacts mirror the source layout under the destination tree.
func StripPrefix(prefix string) Transform {
	return func(f File) (File, error) {
		if prefix != "" {
			f.Path = strings.TrimPrefix(f.Path, prefix+"/")
		}
		return f, nil
	}
}
