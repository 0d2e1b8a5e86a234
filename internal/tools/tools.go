// Package tools implements the read-only toolbox bound to a workspace root
// that expert loops call through the LLM gateway: file snippets, grep, and
// the pre-built repository map.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/reviewloop/reviewloop/internal/assets"
	"github.com/reviewloop/reviewloop/internal/llm"
)

const (
	defaultSnippetMaxLines = 200
	hardSnippetMaxLines    = 500
	defaultGrepMaxResults  = 50
	hardGrepMaxResults     = 200
	repoMapFilePrefix      = 400
)

// Toolbox executes tool calls against a workspace. All tools are read-only.
type Toolbox struct {
	root   string
	store  assets.Store // optional; fetch_repo_map reports unavailable without it
	logger *slog.Logger
}

// New binds a toolbox to a workspace root. store may be nil.
func New(root string, store assets.Store) *Toolbox {
	return &Toolbox{
		root:   root,
		store:  store,
		logger: slog.Default().With("component", "tools"),
	}
}

// Definitions declares the toolbox to the gateway
func (t *Toolbox) Definitions() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        "read_file_snippet",
			Description: "Read a line range from a file in the repository. Lines are 1-indexed and the result includes absolute line numbers.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":      map[string]any{"type": "string", "description": "Repo-relative file path"},
					"start":     map[string]any{"type": "integer", "description": "First line to read (1-indexed)"},
					"end":       map[string]any{"type": "integer", "description": "Last line to read (inclusive)"},
					"max_lines": map[string]any{"type": "integer", "description": "Cap on returned lines (default 200)"},
				},
				"required": []string{"path", "start", "end"},
			},
		},
		{
			Name:        "run_grep",
			Description: "Search file contents in the repository. Supports literal or regex patterns, include/exclude globs, and context lines.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern":        map[string]any{"type": "string", "description": "Pattern to search for"},
					"is_regex":       map[string]any{"type": "boolean", "description": "Treat pattern as a regular expression"},
					"case_sensitive": map[string]any{"type": "boolean", "description": "Match case sensitively"},
					"include":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Glob patterns files must match"},
					"exclude":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Glob patterns to skip"},
					"context":        map[string]any{"type": "integer", "description": "Context lines around each match"},
					"max_results":    map[string]any{"type": "integer", "description": "Cap on matches returned (default 50)"},
				},
				"required": []string{"pattern"},
			},
		},
		{
			Name:        "fetch_repo_map",
			Description: "Fetch the pre-built repository map: a directory tree plus a prefix of the file list.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// Execute runs one tool call and returns its JSON result. Failures land in
// the result's error field; Execute itself only errors on encoding bugs.
func (t *Toolbox) Execute(ctx context.Context, call llm.ToolCall) string {
	var result any
	switch call.Name {
	case "read_file_snippet":
		result = t.readFileSnippet(call.Args)
	case "run_grep":
		result = t.runGrep(ctx, call.Args)
	case "fetch_repo_map":
		result = t.fetchRepoMap()
	default:
		result = map[string]any{
			"error": fmt.Sprintf("Error invoking tool: unknown tool %q", call.Name),
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error": "Error invoking tool: %s"}`, err)
	}
	return string(data)
}

// resolve maps a repo-relative path into the workspace, rejecting escapes
func (t *Toolbox) resolve(path string) (string, error) {
	cleaned := filepath.Clean(strings.TrimPrefix(path, "/"))
	abs := filepath.Join(t.root, cleaned)
	rel, err := filepath.Rel(t.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return abs, nil
}
