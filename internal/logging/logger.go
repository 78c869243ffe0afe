package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WorkDir is the hidden directory created under the project root for logs
// and other engine-owned state.
const WorkDir = ".gulp-begin"

// Logger appends timestamped lines to .gulp-begin/logs/build.log so users
// can inspect a failed pipeline run after the dev loop has moved on. Lines
// are echoed to an optional secondary sink (usually stderr).
type Logger struct {
	file *os.File
	echo io.Writer
}

// New creates (or reuses) the log file for the given project root.
func New(root string) (*Logger, error) {
	logDir := filepath.Join(root, WorkDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "build.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f}, nil
}

// WithEcho duplicates every line to w in addition to the log file.
func (l *Logger) WithEcho(w io.Writer) *Logger {
	if l == nil {
		return nil
	}
	l.echo = w
	return l
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	timestamp := time.Now().Format(time.RFC3339)
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
	if l.echo != nil {
		fmt.Fprintf(l.echo, "%s\n", line)
	}
}
