// Package pathfilter decides which changed files enter the review pipeline.
// A built-in exclude list drops lock files, build output, generated code,
// and binary assets; configured include/exclude globs refine the rest.
package pathfilter

import (
	"path/filepath"
	"strings"

	"github.com/reviewloop/reviewloop/internal/config"
)

// builtinExcludeGlobs are matched against the base name
var builtinExcludeGlobs = []string{
	// lock files
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "Cargo.lock",
	"poetry.lock", "Pipfile.lock", "go.sum", "composer.lock", "Gemfile.lock",
	// generated code
	"*.pb.go", "*_generated.go", "*.gen.go", "*.min.js", "*.min.css",
	// binaries and archives
	"*.exe", "*.dll", "*.so", "*.dylib", "*.bin", "*.zip", "*.tar", "*.gz", "*.jar",
	// media
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.svg", "*.mp3", "*.mp4", "*.pdf",
	// fonts
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
}

// builtinExcludeDirs are matched against any path segment
var builtinExcludeDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".git":         true,
}

// Filter applies the built-in and configured rules to a changed-file list,
// preserving input order
func Filter(paths []string, cfg config.PathFilterConfig) []string {
	if !cfg.Enabled {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if Allowed(p, cfg) {
			out = append(out, p)
		}
	}
	return out
}

// Allowed reports whether a single path passes the filter
func Allowed(path string, cfg config.PathFilterConfig) bool {
	if !cfg.Enabled {
		return true
	}

	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if builtinExcludeDirs[seg] {
			return false
		}
	}
	base := filepath.Base(path)
	for _, glob := range builtinExcludeGlobs {
		if ok, _ := filepath.Match(glob, base); ok {
			return false
		}
	}

	for _, glob := range cfg.ExcludeGlobs {
		if matchPath(glob, path, base) {
			return false
		}
	}
	if len(cfg.IncludeGlobs) == 0 {
		return true
	}
	for _, glob := range cfg.IncludeGlobs {
		if matchPath(glob, path, base) {
			return true
		}
	}
	return false
}

func matchPath(glob, path, base string) bool {
	if ok, _ := filepath.Match(glob, path); ok {
		return true
	}
	ok, _ := filepath.Match(glob, base)
	return ok
}
