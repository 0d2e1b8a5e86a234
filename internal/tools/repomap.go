package tools

import (
	"fmt"

	"github.com/reviewloop/reviewloop/internal/assets"
)

// RepoMapResult is the fetch_repo_map payload
type RepoMapResult struct {
	FileTree  string   `json:"file_tree"`
	Files     []string `json:"files"`
	FileCount int      `json:"file_count"`
	Truncated bool     `json:"truncated"`
	Error     string   `json:"error,omitempty"`
}

func (t *Toolbox) fetchRepoMap() RepoMapResult {
	if t.store == nil {
		return RepoMapResult{Error: "repo map index unavailable: no asset store configured"}
	}
	rm, err := assets.LoadRepoMap(t.store, t.root)
	if err != nil {
		return RepoMapResult{Error: fmt.Sprintf("repo map index unavailable: %v", err)}
	}

	files := rm.Files
	truncated := false
	if len(files) > repoMapFilePrefix {
		files = files[:repoMapFilePrefix]
		truncated = true
	}
	return RepoMapResult{
		FileTree:  rm.FileTree,
		Files:     files,
		FileCount: rm.FileCount,
		Truncated: truncated,
	}
}
