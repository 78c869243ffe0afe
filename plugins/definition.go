// Package plugins loads transform definitions from a project's
// .gulp-begin/transforms directory and mounts them over the built-in
// toolchain. Definitions come in two flavors: declarative YAML rule
// files and Go-scripted transforms evaluated with yaegi.
package plugins

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Beg-in/gulp-begin/internal/pipeline"
)

// TransformDefinition describes one declarative transform plugin.
//
// The struct mirrors the on-disk schema under .gulp-begin/transforms/*.yaml
// and is intentionally narrow so the engine can validate plugin metadata
// before wiring it into the toolchain.
type TransformDefinition struct {
	Name      string `json:"name" yaml:"name"`
	Overrides string `json:"overrides" yaml:"overrides"`
	Rules     []Rule `json:"rules" yaml:"rules"`
}

// Rule is one text substitution applied by a declarative transform. With
// Regexp set, Pattern is compiled as a regular expression and Replace may
// use capture references.
type Rule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Replace string `json:"replace" yaml:"replace"`
	Regexp  bool   `json:"regexp,omitempty" yaml:"regexp,omitempty"`
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def TransformDefinition) Normalized() TransformDefinition {
	clone := TransformDefinition{
		Name:      strings.TrimSpace(def.Name),
		Overrides: strings.TrimSpace(def.Overrides),
	}
	if len(def.Rules) > 0 {
		clone.Rules = make([]Rule, len(def.Rules))
		for i, rule := range def.Rules {
			clone.Rules[i] = Rule{
				Pattern: rule.Pattern,
				Replace: rule.Replace,
				Regexp:  rule.Regexp,
			}
		}
	}
	return clone
}

// Validate ensures the definition is well-formed and references a known
// toolchain entry.
func (def TransformDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.Name == "" {
		return fmt.Errorf("plugin: name is required")
	}
	if normalized.Overrides == "" {
		return fmt.Errorf("plugin %s: overrides is required", normalized.Name)
	}
	probe := pipeline.DefaultToolchain()
	if err := probe.Override(normalized.Overrides, pipeline.Passthrough); err != nil {
		return fmt.Errorf("plugin %s: %w", normalized.Name, err)
	}
	if len(normalized.Rules) == 0 {
		return fmt.Errorf("plugin %s: at least one rule is required", normalized.Name)
	}
	for idx, rule := range normalized.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("plugin %s: rules[%d]: pattern is required", normalized.Name, idx)
		}
		if rule.Regexp {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return fmt.Errorf("plugin %s: rules[%d]: %w", normalized.Name, idx, err)
			}
		}
	}
	return nil
}

// Compile turns the definition into a runnable transform. The rules apply
// in declaration order over the whole file contents.
func (def TransformDefinition) Compile() (pipeline.Transform, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	normalized := def.Normalized()
	type step struct {
		literal string
		replace string
		re      *regexp.Regexp
	}
	steps := make([]step, 0, len(normalized.Rules))
	for _, rule := range normalized.Rules {
		if rule.Regexp {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("plugin %s: %w", normalized.Name, err)
			}
			steps = append(steps, step{re: re, replace: rule.Replace})
			continue
		}
		steps = append(steps, step{literal: rule.Pattern, replace: rule.Replace})
	}
	return func(f pipeline.File) (pipeline.File, error) {
		contents := string(f.Contents)
		for _, s := range steps {
			if s.re != nil {
				contents = s.re.ReplaceAllString(contents, s.replace)
				continue
			}
			contents = strings.ReplaceAll(contents, s.literal, s.replace)
		}
		f.Contents = []byte(contents)
		return f, nil
	}, nil
}
