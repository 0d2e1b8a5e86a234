package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GrepMatch is one run_grep hit
type GrepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// GrepResult is the run_grep payload. Empty matches and a zero total are
// what the expert runtime's no-signal heuristic keys on.
type GrepResult struct {
	Matches   []GrepMatch `json:"matches"`
	Total     int         `json:"total"`
	Truncated bool        `json:"truncated"`
	Error     string      `json:"error,omitempty"`
}

func grepError(msg string) GrepResult {
	return GrepResult{Matches: []GrepMatch{}, Error: msg}
}

var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".jar": true,
	".so": true, ".dylib": true, ".dll": true, ".exe": true, ".bin": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

func (t *Toolbox) runGrep(ctx context.Context, args map[string]any) GrepResult {
	pattern, ok := argString(args, "pattern")
	if !ok || pattern == "" {
		return grepError("run_grep requires a pattern")
	}
	isRegex := argBool(args, "is_regex", false)
	caseSensitive := argBool(args, "case_sensitive", true)
	include := argStringSlice(args, "include")
	exclude := argStringSlice(args, "exclude")
	contextLines := argInt(args, "context", 0)
	maxResults := argInt(args, "max_results", defaultGrepMaxResults)
	if maxResults < 1 || maxResults > hardGrepMaxResults {
		maxResults = hardGrepMaxResults
	}

	expr := pattern
	if !isRegex {
		expr = regexp.QuoteMeta(pattern)
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return grepError(fmt.Sprintf("invalid pattern: %v", err))
	}

	result := GrepResult{Matches: []GrepMatch{}}
	walkErr := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != t.root && (skipGrepDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if binaryExts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !globsAllow(rel, include, exclude) {
			return nil
		}

		if result.Truncated {
			return filepath.SkipAll
		}
		t.grepFile(path, rel, re, contextLines, maxResults, &result)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		if result.Error == "" && len(result.Matches) == 0 {
			return grepError(fmt.Sprintf("search failed: %v", walkErr))
		}
	}

	result.Total = len(result.Matches)
	return result
}

var skipGrepDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "__pycache__": true,
	".venv": true, "venv": true, "dist": true, "build": true, "target": true,
}

func (t *Toolbox) grepFile(abs, rel string, re *regexp.Regexp, contextLines, maxResults int, result *GrepResult) {
	f, err := os.Open(abs)
	if err != nil {
		return
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		if len(result.Matches) >= maxResults {
			result.Truncated = true
			return
		}
		m := GrepMatch{File: rel, Line: i + 1, Text: line}
		if contextLines > 0 {
			lo := i - contextLines
			if lo < 0 {
				lo = 0
			}
			hi := i + contextLines
			if hi > len(lines)-1 {
				hi = len(lines) - 1
			}
			var b strings.Builder
			for n := lo; n <= hi; n++ {
				fmt.Fprintf(&b, "%d: %s\n", n+1, lines[n])
			}
			m.Context = b.String()
		}
		result.Matches = append(result.Matches, m)
	}
}

// globsAllow applies include and exclude glob lists to a repo-relative path.
// Globs match against the full relative path and against the base name.
func globsAllow(rel string, include, exclude []string) bool {
	base := filepath.Base(rel)
	matches := func(glob string) bool {
		if ok, _ := filepath.Match(glob, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(glob, base); ok {
			return true
		}
		return false
	}
	for _, g := range exclude {
		if matches(g) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, g := range include {
		if matches(g) {
			return true
		}
	}
	return false
}
