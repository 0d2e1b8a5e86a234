// Package github turns confirmed issues into pull-request review comments
// and posts them through the GitHub API. Issues that cannot anchor to a
// commentable diff line are reported in the skipped list instead of being
// dropped silently.
package github

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/models"
)

// ReviewComment is one grouped inline comment ready to post
type ReviewComment struct {
	Path   string
	Line   int
	Body   string
	Issues []models.RiskItem
}

// SkippedIssue records why an issue produced no inline comment
type SkippedIssue struct {
	Issue  models.RiskItem
	Reason string
}

// CommentableLines derives the lines GitHub accepts inline comments on:
// the changed lines of each file in the diff
func CommentableLines(dc *diffctx.DiffContext) map[string]map[int]bool {
	out := make(map[string]map[int]bool, len(dc.Files))
	for _, fc := range dc.Files {
		if len(fc.ChangedLines) > 0 {
			out[fc.Path] = fc.ChangedLines
		}
	}
	return out
}

// BuildComments anchors each issue to a commentable line, groups issues
// sharing an anchor into one comment, and caps the result at maxComments.
// Overflow and unanchorable issues land in the skipped list.
func BuildComments(commentable map[string]map[int]bool, issues []models.RiskItem, maxComments int) ([]ReviewComment, []SkippedIssue) {
	type anchor struct {
		path string
		line int
	}
	grouped := make(map[anchor][]models.RiskItem)
	var order []anchor
	var skipped []SkippedIssue

	for _, issue := range issues {
		lines := commentable[issue.FilePath]
		if len(lines) == 0 {
			skipped = append(skipped, SkippedIssue{issue, "file has no commentable lines in the diff"})
			continue
		}
		line, ok := anchorLine(issue.LineNumber, lines)
		if !ok {
			skipped = append(skipped, SkippedIssue{issue, "no commentable line near the issue range"})
			continue
		}
		a := anchor{issue.FilePath, line}
		if _, seen := grouped[a]; !seen {
			order = append(order, a)
		}
		grouped[a] = append(grouped[a], issue)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].path != order[j].path {
			return order[i].path < order[j].path
		}
		return order[i].line < order[j].line
	})

	var comments []ReviewComment
	for _, a := range order {
		group := grouped[a]
		if maxComments > 0 && len(comments) >= maxComments {
			for _, issue := range group {
				skipped = append(skipped, SkippedIssue{issue, "comment budget exhausted"})
			}
			continue
		}
		comments = append(comments, ReviewComment{
			Path:   a.path,
			Line:   a.line,
			Body:   renderCommentBody(group),
			Issues: group,
		})
	}
	return comments, skipped
}

// anchorLine picks the comment line for an issue: the last in-range
// commentable line, else the nearest one within a small window
func anchorLine(r models.LineRange, commentable map[int]bool) (int, bool) {
	for n := r.End; n >= r.Start; n-- {
		if commentable[n] {
			return n, true
		}
	}
	const window = 3
	for d := 1; d <= window; d++ {
		if commentable[r.End+d] {
			return r.End + d, true
		}
		if commentable[r.Start-d] {
			return r.Start - d, true
		}
	}
	return 0, false
}

var severityMarkers = map[models.Severity]string{
	models.SeverityError:   "🔴",
	models.SeverityWarning: "🟡",
	models.SeverityInfo:    "🔵",
}

func renderCommentBody(issues []models.RiskItem) string {
	var b strings.Builder
	for i, issue := range issues {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "%s **%s** (%s)\n\n%s\n",
			severityMarkers[issue.Severity], strings.ToUpper(string(issue.Severity)),
			issue.RiskType, issue.Description)
		if issue.Suggestion != nil && *issue.Suggestion != "" {
			fmt.Fprintf(&b, "\n**Suggestion:** %s\n", *issue.Suggestion)
		}
	}
	return b.String()
}
