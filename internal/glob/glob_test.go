package glob

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"client/src/**/*.js", "client/src/app/main.js", true},
		{"client/src/**/*.js", "client/src/main.js", true},
		{"client/src/**/*.js", "client/src/app/deep/er/main.js", true},
		{"client/src/**/*.js", "client/src/main.css", false},
		{"client/src/**/*.js", "server/main.js", false},
		{"package.json", "package.json", true},
		{"package.json", "sub/package.json", false},
		{"server/**/*.js", "server/routes/index.js", true},
		{"client/dist/**", "client/dist/styles/main.css", true},
		{"client/dist/**", "client/dist", true},
		{"*.yaml", "gulp-begin.yaml", true},
		{"*.yaml", "conf/gulp-begin.yaml", false},
		{"a/?.js", "a/b.js", true},
		{"a/?.js", "a/bc.js", false},
		{"", "anything", false},
	}
	for _, tc := range cases {
		if got := Match(tc.pattern, tc.path); got != tc.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestRoot(t *testing.T) {
	cases := []struct {
		pattern string
		want    string
	}{
		{"client/src/**/*.js", "client/src"},
		{"**/*.js", ""},
		{"package.json", ""},
		{"server/main.js", "server"},
		{"client/dist/**", "client/dist"},
	}
	for _, tc := range cases {
		if got := Root(tc.pattern); got != tc.want {
			t.Errorf("Root(%q) = %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestExpandKeepsPatternOrderAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"src/b.js",
		"src/a.js",
		"src/deep/c.js",
		"src/ignore.css",
		"vendor/lib.js",
	} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := Expand(dir, []string{"vendor/*.js", "src/**/*.js", "src/a.js"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"vendor/lib.js", "src/a.js", "src/b.js", "src/deep/c.js"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expand = %v, want %v", got, want)
	}
}

func TestExpandMissingDirectoryMatchesNothing(t *testing.T) {
	got, err := Expand(t.TempDir(), []string{"missing/**/*.js"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"x.js", "y.js", "z.js"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	first, err := Expand(dir, []string{"*.js"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	second, err := Expand(dir, []string{"*.js"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expand not deterministic: %v vs %v", first, second)
	}
}
