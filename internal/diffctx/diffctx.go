// Package diffctx parses unified diffs into per-file change context used
// across the pipeline: changed-line sets for anchor filtering, per-file diff
// segments for prompts, and windowed file content for expert system messages.
package diffctx

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// FileChange describes what a unified diff did to one file. ChangedLines is
// the union of AddedLines and ModifiedLines; an added line replacing a
// removed one counts as modified, the rest as added.
type FileChange struct {
	Path          string
	OldPath       string
	ChangedLines  map[int]bool // 1-indexed line numbers in the new version
	AddedLines    map[int]bool
	ModifiedLines map[int]bool
	IsNew         bool
	IsDeleted     bool
	DiffText      string // the file's own segment of the diff, headers included
}

// DiffContext is the parsed form of a full unified diff
type DiffContext struct {
	Files []FileChange
	byPath map[string]*FileChange
}

// NormalizePath strips the a/ and b/ diff prefixes and any leading slash so
// paths compare equal across the diff, the worktree, and model output.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		p = p[2:]
	}
	return strings.TrimPrefix(p, "/")
}

// Parse reads a unified diff and extracts per-file change information.
// Changed lines are the added lines of each hunk; deletions do not mark
// lines in the new version.
func Parse(diff string) (*DiffContext, error) {
	ctx := &DiffContext{byPath: make(map[string]*FileChange)}

	var current *FileChange
	var segment strings.Builder
	flush := func() {
		if current != nil {
			current.DiffText = segment.String()
			ctx.Files = append(ctx.Files, *current)
			ctx.byPath[current.Path] = &ctx.Files[len(ctx.Files)-1]
		}
		segment.Reset()
	}

	newLine := 0
	inHunk := false
	pendingRemovals := 0

	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			current = &FileChange{
				ChangedLines:  make(map[int]bool),
				AddedLines:    make(map[int]bool),
				ModifiedLines: make(map[int]bool),
			}
			inHunk = false
			pendingRemovals = 0
			// "diff --git a/path b/path"
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				current.OldPath = NormalizePath(parts[2])
				current.Path = NormalizePath(parts[3])
			}
		case strings.HasPrefix(line, "--- "):
			if current != nil {
				target := strings.TrimPrefix(line, "--- ")
				if target == "/dev/null" {
					current.IsNew = true
				} else if current.OldPath == "" {
					current.OldPath = NormalizePath(target)
				}
			}
		case strings.HasPrefix(line, "+++ "):
			if current != nil {
				target := strings.TrimPrefix(line, "+++ ")
				if target == "/dev/null" {
					current.IsDeleted = true
				} else if current.Path == "" {
					current.Path = NormalizePath(target)
				}
			}
		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("malformed hunk header: %q", line)
			}
			newLine, _ = strconv.Atoi(m[3])
			inHunk = true
			pendingRemovals = 0
		case inHunk && current != nil:
			switch {
			case strings.HasPrefix(line, "+"):
				current.ChangedLines[newLine] = true
				// removals precede additions in a replacement block
				if pendingRemovals > 0 {
					current.ModifiedLines[newLine] = true
					pendingRemovals--
				} else {
					current.AddedLines[newLine] = true
				}
				newLine++
			case strings.HasPrefix(line, "-"):
				pendingRemovals++
			case strings.HasPrefix(line, "\\"):
				// "\ No newline at end of file"
			default:
				pendingRemovals = 0
				newLine++
			}
		}

		if current != nil {
			segment.WriteString(line)
			segment.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan diff: %w", err)
	}
	flush()

	return ctx, nil
}

// File returns the change record for a path, trying normalized forms
func (c *DiffContext) File(path string) (*FileChange, bool) {
	if fc, ok := c.byPath[path]; ok {
		return fc, true
	}
	fc, ok := c.byPath[NormalizePath(path)]
	return fc, ok
}

// ChangedLines returns the changed-line set for a path, or nil if the diff
// did not touch it
func (c *DiffContext) ChangedLines(path string) map[int]bool {
	if fc, ok := c.File(path); ok {
		return fc.ChangedLines
	}
	return nil
}

// ChangedPaths lists every file the diff touches, in diff order
func (c *DiffContext) ChangedPaths() []string {
	paths := make([]string, 0, len(c.Files))
	for _, fc := range c.Files {
		paths = append(paths, fc.Path)
	}
	return paths
}

// ExtractFileDiff returns the diff segment for one file, or "" if absent
func (c *DiffContext) ExtractFileDiff(path string) string {
	if fc, ok := c.File(path); ok {
		return fc.DiffText
	}
	return ""
}

// TotalChars is the character size of the whole diff, used to decide when
// the intent stage must degrade to chunked mode
func (c *DiffContext) TotalChars() int {
	total := 0
	for _, fc := range c.Files {
		total += len(fc.DiffText)
	}
	return total
}

// Window renders lines [center-radius, center+radius] of content with
// 1-indexed line-number prefixes. Out-of-range bounds clamp to the file.
func Window(content string, center, radius int) string {
	return WindowRange(content, center, center, radius)
}

// WindowRange renders lines [start-radius, end+radius] with absolute
// 1-indexed line-number prefixes
func WindowRange(content string, start, end, radius int) string {
	lines := strings.Split(content, "\n")
	lo := start - radius
	if lo < 1 {
		lo = 1
	}
	hi := end + radius
	if hi > len(lines) {
		hi = len(lines)
	}
	if lo > hi {
		return ""
	}

	var b strings.Builder
	for n := lo; n <= hi; n++ {
		fmt.Fprintf(&b, "%d: %s\n", n, lines[n-1])
	}
	return b.String()
}

// LineCount returns the number of lines in content
func LineCount(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// Truncate cuts s to at most max characters, appending a marker when cut
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n... [truncated]"
}
