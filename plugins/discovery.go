package plugins

import (
	"fmt"
	"path/filepath"

	"github.com/Beg-in/gulp-begin/internal/logging"
	"github.com/Beg-in/gulp-begin/internal/pipeline"
)

// TransformsDir is the per-project plugin directory, relative to the
// project root.
var TransformsDir = filepath.Join(logging.WorkDir, "transforms")

// Apply discovers YAML and Go transform definitions under the project's
// transforms directory and mounts them over the toolchain. Two plugins
// overriding the same entry are a configuration error.
func Apply(tools *pipeline.Toolchain, root string) error {
	if tools == nil {
		return nil
	}
	dir := filepath.Join(root, TransformsDir)

	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return err
	}
	goDefs, err := LoadGoTransformDir(dir)
	if err != nil {
		return err
	}
	if len(yamlDefs) == 0 && len(goDefs) == 0 {
		return nil
	}

	seen := make(map[string]string)
	claim := func(entry, path string) error {
		if existing, ok := seen[entry]; ok {
			return fmt.Errorf("plugin: %s overridden twice (%s and %s)", entry, existing, path)
		}
		seen[entry] = path
		return nil
	}

	for _, file := range yamlDefs {
		if err := claim(file.Definition.Overrides, file.Path); err != nil {
			return err
		}
		transform, err := file.Definition.Compile()
		if err != nil {
			return fmt.Errorf("plugin: %s: %w", file.Path, err)
		}
		if err := tools.Override(file.Definition.Overrides, transform); err != nil {
			return fmt.Errorf("plugin: %s: %w", file.Path, err)
		}
	}
	for _, scripted := range goDefs {
		if err := claim(scripted.Overrides, scripted.Path); err != nil {
			return err
		}
		if err := tools.Override(scripted.Overrides, scripted.Transform); err != nil {
			return fmt.Errorf("plugin: %s: %w", scripted.Path, err)
		}
	}
	return nil
}
