package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/Beg-in/gulp-begin/internal/pipeline"
)

const goTransformFuncName = "Transforms"

// GoTransform pairs a scripted transform with the toolchain entry it
// overrides and its source file.
type GoTransform struct {
	Overrides string
	Transform pipeline.Transform
	Path      string
}

// LoadGoTransformDir evaluates every .go file in dir and collects the
// transforms declared via Transforms(). Each file must define
//
//	func Transforms() (map[string]func([]byte) ([]byte, error), error)
//
// keyed by toolchain entry name.
func LoadGoTransformDir(dir string) ([]GoTransform, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var out []GoTransform
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		fileTransforms, err := loadGoTransformFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, fileTransforms...)
	}
	if len(out) == 0 {
		return nil, nil
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Overrides < out[j].Overrides
	})
	return out, nil
}

func loadGoTransformFile(path string) ([]GoTransform, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(goTransformFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s() (map[string]func([]byte) ([]byte, error), error): %w", path, goTransformFuncName, err)
	}
	declared, callErr := invokeTransformFunc(fnValue)
	if callErr != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, callErr)
	}

	probe := pipeline.DefaultToolchain()
	out := make([]GoTransform, 0, len(declared))
	for name, fn := range declared {
		if err := probe.Override(name, pipeline.Passthrough); err != nil {
			return nil, fmt.Errorf("plugin: %s: %w", path, err)
		}
		fn := fn
		out = append(out, GoTransform{
			Overrides: name,
			Path:      path,
			Transform: func(f pipeline.File) (pipeline.File, error) {
				contents, err := fn(f.Contents)
				if err != nil {
					return pipeline.File{}, fmt.Errorf("plugin %s: %s: %w", path, f.Path, err)
				}
				f.Contents = contents
				return f, nil
			},
		})
	}
	return out, nil
}

func invokeTransformFunc(value reflect.Value) (map[string]func([]byte) ([]byte, error), error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", goTransformFuncName)
	}
	fn := value
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goTransformFuncName)
	}
	results := fn.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return (map[string]func([]byte) ([]byte, error)[, error])", goTransformFuncName)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok && e != nil {
			return nil, e
		}
		return nil, fmt.Errorf("%s returned non-error second value", goTransformFuncName)
	}
	declared, ok := results[0].Interface().(map[string]func([]byte) ([]byte, error))
	if !ok {
		return nil, fmt.Errorf("%s must return map[string]func([]byte) ([]byte, error)", goTransformFuncName)
	}
	return declared, nil
}
