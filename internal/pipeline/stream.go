package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/Beg-in/gulp-begin/internal/glob"
)

// File is one record flowing through a pipeline: a slash-separated path
// relative to the project root plus its contents.
type File struct {
	Path     string
	Contents []byte
}

// Stream carries an ordered set of file records through a sequence of
// transforms. A failing transform parks its error on the stream; later
// stages pass it through untouched and the error surfaces when the stream
// is drained, mirroring how stream errors are events rather than panics.
type Stream struct {
	files []File
	err   error
}

// Transform rewrites a single file record.
type Transform func(File) (File, error)

// NewStream wraps a fixed set of file records.
func NewStream(files []File) *Stream {
	return &Stream{files: files}
}

// FailedStream produces a stream already carrying an error.
func FailedStream(err error) *Stream {
	return &Stream{err: err}
}

// Read expands glob patterns under root and loads every matching file.
func Read(root string, patterns []string) *Stream {
	paths, err := glob.Expand(root, patterns)
	if err != nil {
		return FailedStream(fmt.Errorf("pipeline: expand patterns: %w", err))
	}
	files := make([]File, 0, len(paths))
	for _, rel := range paths {
		contents, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return FailedStream(fmt.Errorf("pipeline: read %s: %w", rel, err))
		}
		files = append(files, File{Path: rel, Contents: contents})
	}
	return &Stream{files: files}
}

// Err returns the stream's error, if any stage failed.
func (s *Stream) Err() error {
	return s.err
}

// Files returns the records currently in the stream.
func (s *Stream) Files() []File {
	return s.files
}

// Pipe applies a transform to every record in order.
func (s *Stream) Pipe(t Transform) *Stream {
	if s.err != nil || t == nil {
		return s
	}
	out := make([]File, 0, len(s.files))
	for _, f := range s.files {
		transformed, err := t(f)
		if err != nil {
			return FailedStream(fmt.Errorf("pipeline: transform %s: %w", f.Path, err))
		}
		out = append(out, transformed)
	}
	return &Stream{files: out}
}

// Concat joins every record into a single file at the given path,
// separated by newlines. An empty stream concatenates to an empty file so
// downstream merges stay positional.
func (s *Stream) Concat(name string) *Stream {
	if s.err != nil {
		return s
	}
	var buf bytes.Buffer
	for _, f := range s.files {
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(bytes.TrimRight(f.Contents, "\n"))
	}
	return &Stream{files: []File{{Path: name, Contents: buf.Bytes()}}}
}

// Merge concatenates streams in argument order into one stream. The first
// error wins.
func Merge(streams ...*Stream) *Stream {
	var files []File
	for _, s := range streams {
		if s == nil {
			continue
		}
		if s.err != nil {
			return FailedStream(s.err)
		}
		files = append(files, s.files...)
	}
	return &Stream{files: files}
}

// Write drains the stream into destDir under root, creating directories as
// needed, and returns the written paths relative to root.
func (s *Stream) Write(root, destDir string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	written := make([]string, 0, len(s.files))
	for _, f := range s.files {
		rel := path.Join(destDir, f.Path)
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("pipeline: ensure %s: %w", filepath.Dir(abs), err)
		}
		if err := os.WriteFile(abs, f.Contents, 0o644); err != nil {
			return nil, fmt.Errorf("pipeline: write %s: %w", rel, err)
		}
		written = append(written, rel)
	}
	return written, nil
}

// WriteWithSourceMap writes each record plus a sibling .map file naming
// the original sources. The map payload is deliberately timestamp-free so
// repeated builds of unchanged inputs stay byte-identical.
func (s *Stream) WriteWithSourceMap(root, destDir string, sources []string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	mapped := make([]File, 0, len(s.files)*2)
	for _, f := range s.files {
		mapped = append(mapped, f, File{
			Path:     f.Path + ".map",
			Contents: sourceMap(f.Path, sources),
		})
	}
	return (&Stream{files: mapped}).Write(root, destDir)
}

func sourceMap(file string, sources []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"version":3,"file":`)
	buf.WriteString(quoteJSON(file))
	buf.WriteString(`,"sources":[`)
	for i, src := range sources {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(quoteJSON(src))
	}
	buf.WriteString(`],"mappings":""}`)
	buf.WriteByte('\n')
	return buf.Bytes()
}

func quoteJSON(s string) string {
	return fmt.Sprintf("%q", s)
}
