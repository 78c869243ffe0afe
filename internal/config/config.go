// internal/config/config.go
//
// This package resolves the engine configuration. Callers hand over a
// partial options tree (usually decoded from gulp-begin.yaml) and get back
// one immutable Config with every leaf populated from the defaults.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// OptionsFile is the conventional name of the on-disk options file.
const OptionsFile = "gulp-begin.yaml"

// Options is a partial configuration fragment. Any subset of keys may be
// present; missing keys fall back to the defaults during Resolve.
type Options map[string]any

// ServerConfig locates the subordinate server process.
type ServerConfig struct {
	Cwd   string   `yaml:"cwd"`
	Main  string   `yaml:"main"`
	Watch []string `yaml:"watch"`
}

// HTMLConfig lists markup sources relative to the client source root.
type HTMLConfig struct {
	Src []string `yaml:"src"`
}

// ScriptsConfig describes the script bundle inputs and output directory.
type ScriptsConfig struct {
	Cwd  string   `yaml:"cwd"`
	Dest string   `yaml:"dest"`
	Lib  []string `yaml:"lib"`
	Src  []string `yaml:"src"`
}

// IncludeConfig lists style include paths, split by library and source.
type IncludeConfig struct {
	Lib []string `yaml:"lib"`
	Src []string `yaml:"src"`
}

// StylesConfig describes the stylesheet compilation inputs.
type StylesConfig struct {
	Cwd     string        `yaml:"cwd"`
	Dest    string        `yaml:"dest"`
	Include IncludeConfig `yaml:"include"`
	Src     []string      `yaml:"src"`
}

// TemplatesConfig lists view templates compiled into the script bundle.
type TemplatesConfig struct {
	Cwd string   `yaml:"cwd"`
	Src []string `yaml:"src"`
}

// ImagesConfig lists image sources.
type ImagesConfig struct {
	Cwd string   `yaml:"cwd"`
	Src []string `yaml:"src"`
}

// ClientConfig describes the client source layout.
type ClientConfig struct {
	Lib       string          `yaml:"lib"`
	Cwd       string          `yaml:"cwd"`
	Dest      string          `yaml:"dest"`
	HTML      HTMLConfig      `yaml:"html"`
	Scripts   ScriptsConfig   `yaml:"scripts"`
	Styles    StylesConfig    `yaml:"styles"`
	Templates TemplatesConfig `yaml:"templates"`
	Images    ImagesConfig    `yaml:"images"`
}

// TestConfig locates the test entry point, the interpreter that runs it,
// and its watch globs.
type TestConfig struct {
	Main    string   `yaml:"main"`
	Command []string `yaml:"command"`
	Watch   []string `yaml:"watch"`
}

// PackagesConfig names the dependency manifests and the package-manager
// commands the dev loop shells out to when a manifest changes.
type PackagesConfig struct {
	Manifest    string   `yaml:"manifest"`
	LibManifest string   `yaml:"libManifest"`
	Install     []string `yaml:"install"`
	Prune       []string `yaml:"prune"`
	InstallLibs []string `yaml:"installLibs"`
}

// Config is the fully resolved engine configuration. It is created once
// per engine instance and never mutated afterwards.
type Config struct {
	Root           string         `yaml:"root"`
	Port           int            `yaml:"port"`
	Server         ServerConfig   `yaml:"server"`
	Client         ClientConfig   `yaml:"client"`
	Test           TestConfig     `yaml:"test"`
	Packages       PackagesConfig `yaml:"packages"`
	Prefix         string         `yaml:"prefix"`
	Exclude        []string       `yaml:"exclude"`
	Only           []string       `yaml:"only"`
	WarnExclusions bool           `yaml:"warnExclusions"`

	// ExcludeGiven records whether the caller supplied an exclude key at
	// all. An explicit empty list still counts as present and disables
	// the only list.
	ExcludeGiven bool `yaml:"-"`
}

// Default returns the full default configuration tree.
func Default() Config {
	return Config{
		Root: ".",
		Port: 8081,
		Server: ServerConfig{
			Cwd:   "server",
			Main:  "server/index.js",
			Watch: []string{"server/**/*.js"},
		},
		Client: ClientConfig{
			Lib:  "bower_components",
			Cwd:  "client/src",
			Dest: "client/dist",
			HTML: HTMLConfig{
				Src: []string{"**/*.html"},
			},
			Scripts: ScriptsConfig{
				Cwd:  "scripts",
				Dest: "scripts",
				Lib:  []string{},
				Src:  []string{"**/*.js"},
			},
			Styles: StylesConfig{
				Cwd:  "styles",
				Dest: "styles",
				Include: IncludeConfig{
					Lib: []string{},
					Src: []string{"styles/include"},
				},
				Src: []string{"**/*.scss"},
			},
			Templates: TemplatesConfig{
				Cwd: "templates",
				Src: []string{"**/*.html"},
			},
			Images: ImagesConfig{
				Cwd: "images",
				Src: []string{"**/*.png", "**/*.jpg", "**/*.gif", "**/*.svg"},
			},
		},
		Test: TestConfig{
			Main:    "test/index.js",
			Command: []string{"node"},
			Watch:   []string{"test/**/*.js"},
		},
		Packages: PackagesConfig{
			Manifest:    "package.json",
			LibManifest: "bower.json",
			Install:     []string{"npm", "install"},
			Prune:       []string{"npm", "prune"},
			InstallLibs: []string{"bower", "install"},
		},
	}
}

// Resolve deep-merges the supplied options over the defaults. Missing or
// malformed leaves fall back to their default values; Resolve never fails.
func Resolve(opts Options) Config {
	defaults := defaultTree()
	merged := DeepMerge(cloneMap(defaults), map[string]any(opts))
	merged = scrub(defaults, merged)

	cfg := Default()
	if data, err := yaml.Marshal(merged); err == nil {
		// scrub guarantees the tree is shape-compatible with Config.
		_ = yaml.Unmarshal(data, &cfg)
	}
	_, cfg.ExcludeGiven = opts["exclude"]
	cfg.normalize()
	return cfg
}

// LoadOptions reads an options file from disk. A missing file yields empty
// options so a bare project still resolves to the defaults.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Options{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if opts == nil {
		opts = Options{}
	}
	return opts, nil
}

func (c *Config) normalize() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = Default().Port
	}
}

// defaultTree returns the defaults as a generic map for merging.
func defaultTree() map[string]any {
	data, err := yaml.Marshal(Default())
	if err != nil {
		panic(fmt.Sprintf("config: encode defaults: %v", err))
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	return tree
}
