package config

import "path"

// FileSet holds the resolved glob patterns for one asset category, split
// into project sources and library sources.
type FileSet struct {
	Src []string
	Lib []string
}

// FileSets is the per-category snapshot derived from a resolved Config.
// It is computed once per engine instantiation and does not observe later
// configuration edits.
type FileSets struct {
	HTML          FileSet
	Scripts       FileSet
	Styles        FileSet
	StyleIncludes FileSet
	Templates     FileSet
	Images        FileSet
}

// BuildFiles derives the concrete source and library pattern sets from the
// configuration. Joins are order-stable (root segments first) so downstream
// glob matching is deterministic.
func BuildFiles(cfg Config) FileSets {
	client := cfg.Client
	return FileSets{
		HTML: FileSet{
			Src: joinAll(client.HTML.Src, client.Cwd),
		},
		Scripts: FileSet{
			Src: joinAll(client.Scripts.Src, client.Cwd, client.Scripts.Cwd),
			Lib: joinAll(client.Scripts.Lib, client.Lib),
		},
		Styles: FileSet{
			Src: joinAll(client.Styles.Src, client.Cwd, client.Styles.Cwd),
		},
		StyleIncludes: FileSet{
			Src: joinAll(client.Styles.Include.Src, client.Cwd),
			Lib: joinAll(client.Styles.Include.Lib, client.Lib),
		},
		Templates: FileSet{
			Src: joinAll(client.Templates.Src, client.Cwd, client.Templates.Cwd),
		},
		Images: FileSet{
			Src: joinAll(client.Images.Src, client.Cwd, client.Images.Cwd),
		},
	}
}

// HTMLDest returns the destination directory for minified markup.
func (c Config) HTMLDest() string {
	return c.Client.Dest
}

// ScriptsDest returns the destination directory for the script bundle.
func (c Config) ScriptsDest() string {
	return path.Join(c.Client.Dest, c.Client.Scripts.Dest)
}

// StylesDest returns the destination directory for compiled styles.
func (c Config) StylesDest() string {
	return path.Join(c.Client.Dest, c.Client.Styles.Dest)
}

// ImagesDest returns the destination directory for optimized images.
func (c Config) ImagesDest() string {
	return path.Join(c.Client.Dest, c.Client.Images.Cwd)
}

// joinAll joins each pattern onto the prefix segments, skipping any empty
// segment. Patterns keep forward slashes since they are glob inputs, not
// OS paths.
func joinAll(patterns []string, prefix ...string) []string {
	segments := make([]string, 0, len(prefix))
	for _, seg := range prefix {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		parts := append(append([]string{}, segments...), pattern)
		out = append(out, path.Join(parts...))
	}
	return out
}
