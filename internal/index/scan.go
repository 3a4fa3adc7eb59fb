package index

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/csearch/internal/debug"
)

// ScanConfig controls which workspace files get indexed.
type ScanConfig struct {
	// Include globs, doublestar syntax, matched against workspace-relative
	// paths. Empty means everything.
	Include []string
	// Exclude globs, checked after Include.
	Exclude []string
	// MaxFileSize in bytes; larger files are skipped.
	MaxFileSize int64
}

// DefaultScanConfig returns the scan defaults: all text files except the
// usual dependency and VCS directories.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Exclude: []string{
			"**/.git/**",
			"**/node_modules/**",
			"**/vendor/**",
			"**/" + MetaDirName + "/**",
		},
		MaxFileSize: 2 << 20, // 2 MiB
	}
}

func (c ScanConfig) withDefaults() ScanConfig {
	d := DefaultScanConfig()
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if len(c.Exclude) == 0 {
		c.Exclude = d.Exclude
	}
	return c
}

// scanner walks a workspace and yields the files worth indexing.
type scanner struct {
	root     string
	cfg      ScanConfig
	excluded []string // artifact dirs discovered from build manifests
}

func newScanner(root string, cfg ScanConfig) *scanner {
	s := &scanner{root: root, cfg: cfg.withDefaults()}
	s.excluded = artifactDirs(root)
	return s
}

// walk calls fn with the absolute path of every indexable file. Walk errors
// on individual entries are skipped, not fatal.
func (s *scanner) walk(fn func(absPath string) error) error {
	return filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && s.dirExcluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.shouldIndex(rel, path) {
			return nil
		}
		return fn(path)
	})
}

// shouldIndex applies the include/exclude globs and the size bound to one
// workspace-relative path.
func (s *scanner) shouldIndex(rel, abs string) bool {
	for _, pattern := range s.cfg.Exclude {
		if ok, _ := doublestarMatch(pattern, rel); ok {
			return false
		}
	}
	for _, dir := range s.excluded {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return false
		}
	}
	if len(s.cfg.Include) > 0 {
		matched := false
		for _, pattern := range s.cfg.Include {
			if ok, _ := doublestarMatch(pattern, rel); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	info, err := os.Stat(abs)
	if err != nil || info.Size() > s.cfg.MaxFileSize {
		return false
	}
	return true
}

// dirExcluded prunes whole directories so walks skip node_modules and
// friends instead of stat-ing every entry inside.
func (s *scanner) dirExcluded(rel string) bool {
	for _, pattern := range s.cfg.Exclude {
		trimmed := strings.TrimSuffix(pattern, "/**")
		if ok, _ := doublestarMatch(trimmed, rel); ok {
			return true
		}
	}
	for _, dir := range s.excluded {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}

func doublestarMatch(pattern, path string) (bool, error) {
	return doublestar.Match(pattern, filepath.ToSlash(path))
}

// isBinary sniffs the first KiB for NUL bytes, the same heuristic git uses.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// artifactDirs reads build manifests at the workspace root and returns the
// output directories they declare, so compiled artifacts never pollute the
// index even when the exclude globs miss them.
func artifactDirs(root string) []string {
	var dirs []string

	// Cargo.toml: [build] target-dir, defaulting to "target".
	if data, err := os.ReadFile(filepath.Join(root, "Cargo.toml")); err == nil {
		var manifest struct {
			Build struct {
				TargetDir string `toml:"target-dir"`
			} `toml:"build"`
			Package struct {
				Name string `toml:"name"`
			} `toml:"package"`
		}
		if err := toml.Unmarshal(data, &manifest); err == nil {
			target := manifest.Build.TargetDir
			if target == "" {
				target = "target"
			}
			dirs = append(dirs, filepath.ToSlash(target))
		}
	}

	// pyproject.toml marks a Python project: build output lands in dist/
	// and build/ by convention.
	if data, err := os.ReadFile(filepath.Join(root, "pyproject.toml")); err == nil {
		var manifest struct {
			Project struct {
				Name string `toml:"name"`
			} `toml:"project"`
		}
		if err := toml.Unmarshal(data, &manifest); err == nil {
			dirs = append(dirs, "dist", "build", ".venv")
		}
	}

	if len(dirs) > 0 {
		debug.Log("index", "excluding build artifact dirs for %s: %v\n", root, dirs)
	}
	return dirs
}
