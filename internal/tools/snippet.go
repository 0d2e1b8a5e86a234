package tools

import (
	"fmt"
	"os"
	"strings"
)

// SnippetResult is the read_file_snippet payload
type SnippetResult struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	Error     string `json:"error,omitempty"`
}

func snippetError(msg string) SnippetResult {
	return SnippetResult{Error: msg}
}

func (t *Toolbox) readFileSnippet(args map[string]any) SnippetResult {
	path, ok := argString(args, "path")
	if !ok {
		return snippetError("read_file_snippet requires a path")
	}
	start := argInt(args, "start", 1)
	end := argInt(args, "end", start)
	maxLines := argInt(args, "max_lines", defaultSnippetMaxLines)
	if maxLines < 1 || maxLines > hardSnippetMaxLines {
		maxLines = hardSnippetMaxLines
	}
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}

	abs, err := t.resolve(path)
	if err != nil {
		return snippetError(err.Error())
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return snippetError(fmt.Sprintf("failed to read %s: %v", path, err))
	}

	lines := strings.Split(string(data), "\n")
	if start > len(lines) {
		return snippetError(fmt.Sprintf("start line %d beyond end of %s (%d lines)", start, path, len(lines)))
	}
	if end > len(lines) {
		end = len(lines)
	}

	truncated := false
	if end-start+1 > maxLines {
		end = start + maxLines - 1
		truncated = true
	}

	var b strings.Builder
	for n := start; n <= end; n++ {
		fmt.Fprintf(&b, "%d: %s\n", n, lines[n-1])
	}

	return SnippetResult{
		Path:      path,
		StartLine: start,
		EndLine:   end,
		Content:   b.String(),
		Truncated: truncated,
	}
}
