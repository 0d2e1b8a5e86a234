package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// RepoMap is the pre-built repository overview served by fetch_repo_map
type RepoMap struct {
	FileTree   string   `json:"file_tree"`
	Files      []string `json:"files"`
	FileCount  int      `json:"file_count"`
	SourcePath string   `json:"source_path"`
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
}

// RepoMapKey derives the store key for a repository path
func RepoMapKey(repoPath string) string {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		abs = repoPath
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:8])
}

// BuildRepoMap walks the working tree and produces the repo-map asset
func BuildRepoMap(root string) (*RepoMap, error) {
	logger := slog.Default().With("component", "assets")

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)

	rm := &RepoMap{
		FileTree:   renderTree(files),
		Files:      files,
		FileCount:  len(files),
		SourcePath: root,
	}
	logger.Info("repo map built", "root", root, "files", rm.FileCount)
	return rm, nil
}

// renderTree formats the sorted file list as an indented directory tree
func renderTree(files []string) string {
	var b strings.Builder
	seen := make(map[string]bool)
	for _, f := range files {
		parts := strings.Split(f, "/")
		for depth := 0; depth < len(parts)-1; depth++ {
			dir := strings.Join(parts[:depth+1], "/")
			if !seen[dir] {
				seen[dir] = true
				b.WriteString(strings.Repeat("  ", depth))
				b.WriteString(parts[depth])
				b.WriteString("/\n")
			}
		}
		b.WriteString(strings.Repeat("  ", len(parts)-1))
		b.WriteString(parts[len(parts)-1])
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildAndSave builds the repo map for root and persists it
func BuildAndSave(store Store, root string) (*RepoMap, error) {
	rm, err := BuildRepoMap(root)
	if err != nil {
		return nil, err
	}
	if err := SaveJSON(store, KindRepoMap, RepoMapKey(root), rm); err != nil {
		return nil, err
	}
	return rm, nil
}

// LoadRepoMap fetches the repo map for root, if one was built
func LoadRepoMap(store Store, root string) (*RepoMap, error) {
	var rm RepoMap
	if err := LoadJSON(store, KindRepoMap, RepoMapKey(root), &rm); err != nil {
		return nil, err
	}
	return &rm, nil
}
