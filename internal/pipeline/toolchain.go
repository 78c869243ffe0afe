package pipeline

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Toolchain holds the transform capabilities the pipeline stages compose.
// Every entry is an opaque callable; hosts and plugins may replace any of
// them without the stages noticing.
type Toolchain struct {
	MinifyHTML    Transform
	MinifyJS      Transform
	MinifyCSS     Transform
	Transpile     Transform
	PrefixCSS     Transform
	OptimizeImage Transform
}

// DefaultToolchain returns the built-in transforms. They are conservative
// reference implementations; real projects typically override them through
// the plugin loader.
func DefaultToolchain() Toolchain {
	return Toolchain{
		MinifyHTML:    MinifyHTML,
		MinifyJS:      MinifyJS,
		MinifyCSS:     MinifyCSS,
		Transpile:     Passthrough,
		PrefixCSS:     PrefixCSS,
		OptimizeImage: Passthrough,
	}
}

// Override replaces a toolchain entry by name. Unknown names are a
// configuration error so plugin typos surface at load time.
func (t *Toolchain) Override(name string, fn Transform) error {
	if fn == nil {
		return fmt.Errorf("pipeline: override %s: transform is required", name)
	}
	switch name {
	case "minify-html":
		t.MinifyHTML = fn
	case "minify-js":
		t.MinifyJS = fn
	case "minify-css":
		t.MinifyCSS = fn
	case "transpile":
		t.Transpile = fn
	case "prefix-css":
		t.PrefixCSS = fn
	case "optimize-image":
		t.OptimizeImage = fn
	default:
		return fmt.Errorf("pipeline: override %s: unknown toolchain entry", name)
	}
	return nil
}

// Passthrough leaves a record untouched.
func Passthrough(f File) (File, error) {
	return f, nil
}

var (
	interTagWS   = regexp.MustCompile(`>\s+<`)
	whitespaceWS = regexp.MustCompile(`[ \t\r\n]+`)
	cssComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// MinifyHTML collapses insignificant whitespace between and inside tags.
func MinifyHTML(f File) (File, error) {
	out := whitespaceWS.ReplaceAllString(string(f.Contents), " ")
	out = interTagWS.ReplaceAllString(out, "><")
	f.Contents = []byte(strings.TrimSpace(out))
	return f, nil
}

// MinifyJS strips comment-only lines, indentation, and blank lines.
func MinifyJS(f File) (File, error) {
	var out bytes.Buffer
	for _, line := range strings.Split(string(f.Contents), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(trimmed)
	}
	f.Contents = out.Bytes()
	return f, nil
}

// MinifyCSS removes comments and collapses whitespace.
func MinifyCSS(f File) (File, error) {
	out := cssComment.ReplaceAllString(string(f.Contents), "")
	out = whitespaceWS.ReplaceAllString(out, " ")
	out = strings.ReplaceAll(out, "; ", ";")
	out = strings.ReplaceAll(out, " {", "{")
	out = strings.ReplaceAll(out, "{ ", "{")
	out = strings.ReplaceAll(out, " }", "}")
	f.Contents = []byte(strings.TrimSpace(out))
	return f, nil
}

// prefixedProperties maps CSS properties to the vendor prefixes browsers
// still want for them.
var prefixedProperties = map[string][]string{
	"user-select":     {"-webkit-", "-moz-", "-ms-"},
	"appearance":      {"-webkit-", "-moz-"},
	"backdrop-filter": {"-webkit-"},
	"text-size-adjust": {"-webkit-", "-ms-"},
}

// PrefixCSS inserts vendor-prefixed copies of known declarations ahead of
// the standard form.
func PrefixCSS(f File) (File, error) {
	lines := strings.Split(string(f.Contents), "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		prop, _, found := strings.Cut(trimmed, ":")
		if found {
			if prefixes, ok := prefixedProperties[strings.TrimSpace(prop)]; ok {
				indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
				for _, prefix := range prefixes {
					out = append(out, indent+prefix+trimmed)
				}
			}
		}
		out = append(out, line)
	}
	f.Contents = []byte(strings.Join(out, "\n"))
	return f, nil
}

// CompileTemplates wraps each minified template into a script-loadable
// cache entry keyed by the template path. The strip prefix removes the
// client source root so cache keys match what view code requests.
func CompileTemplates(stripPrefix string) Transform {
	return func(f File) (File, error) {
		key := f.Path
		if stripPrefix != "" {
			key = strings.TrimPrefix(key, stripPrefix+"/")
		}
		entry := fmt.Sprintf("templates[%s] = %s;",
			strconv.Quote(key), strconv.Quote(string(f.Contents)))
		f.Contents = []byte(entry)
		f.Path = f.Path + ".js"
		return f, nil
	}
}
