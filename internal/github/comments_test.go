package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/models"
)

func issue(file string, start, end int, sev models.Severity, desc string) models.RiskItem {
	return models.RiskItem{
		RiskType:    models.RiskRobustness,
		FilePath:    file,
		LineNumber:  models.LineRange{Start: start, End: end},
		Description: desc,
		Confidence:  0.9,
		Severity:    sev,
	}
}

func TestCommentableLines(t *testing.T) {
	diff := "diff --git a/src/a.py b/src/a.py\n--- a/src/a.py\n+++ b/src/a.py\n@@ -10,0 +10,2 @@\n+x = 1\n+y = 2\n"
	dc, err := diffctx.Parse(diff)
	require.NoError(t, err)

	lines := CommentableLines(dc)
	assert.Equal(t, map[int]bool{10: true, 11: true}, lines["src/a.py"])
}

func TestBuildCommentsAnchoring(t *testing.T) {
	commentable := map[string]map[int]bool{
		"src/a.py": {10: true, 11: true, 20: true},
	}

	issues := []models.RiskItem{
		issue("src/a.py", 9, 11, models.SeverityError, "in range, anchors to 11"),
		issue("src/a.py", 22, 22, models.SeverityWarning, "near 20, anchors via window"),
		issue("src/a.py", 50, 50, models.SeverityWarning, "too far from any change"),
		issue("src/b.py", 1, 1, models.SeverityWarning, "file absent from diff"),
	}

	comments, skipped := BuildComments(commentable, issues, 0)
	require.Len(t, comments, 2)
	assert.Equal(t, 11, comments[0].Line)
	assert.Equal(t, 20, comments[1].Line)

	require.Len(t, skipped, 2)
	assert.Equal(t, "no commentable line near the issue range", skipped[0].Reason)
	assert.Equal(t, "file has no commentable lines in the diff", skipped[1].Reason)
}

func TestBuildCommentsGroupsSharedAnchor(t *testing.T) {
	commentable := map[string]map[int]bool{"src/a.py": {10: true}}

	issues := []models.RiskItem{
		issue("src/a.py", 10, 10, models.SeverityError, "first issue"),
		issue("src/a.py", 8, 12, models.SeverityWarning, "second issue, same anchor"),
	}

	comments, skipped := BuildComments(commentable, issues, 0)
	require.Len(t, comments, 1)
	assert.Empty(t, skipped)
	assert.Len(t, comments[0].Issues, 2)
	assert.Contains(t, comments[0].Body, "first issue")
	assert.Contains(t, comments[0].Body, "second issue")
	assert.Contains(t, comments[0].Body, "---")
	assert.Contains(t, comments[0].Body, "🔴")
	assert.Contains(t, comments[0].Body, "🟡")
}

func TestBuildCommentsCap(t *testing.T) {
	commentable := map[string]map[int]bool{
		"src/a.py": {10: true, 20: true, 30: true},
	}
	issues := []models.RiskItem{
		issue("src/a.py", 10, 10, models.SeverityError, "one"),
		issue("src/a.py", 20, 20, models.SeverityError, "two"),
		issue("src/a.py", 30, 30, models.SeverityError, "three"),
	}

	comments, skipped := BuildComments(commentable, issues, 2)
	assert.Len(t, comments, 2)
	require.Len(t, skipped, 1)
	assert.Equal(t, "comment budget exhausted", skipped[0].Reason)
	assert.Equal(t, "three", skipped[0].Issue.Description)
}

func TestBuildCommentsSuggestion(t *testing.T) {
	commentable := map[string]map[int]bool{"src/a.py": {10: true}}
	sugg := "check the bounds first"
	it := issue("src/a.py", 10, 10, models.SeverityWarning, "d")
	it.Suggestion = &sugg

	comments, _ := BuildComments(commentable, []models.RiskItem{it}, 0)
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0].Body, "**Suggestion:** check the bounds first")
}

func TestAnchorLine(t *testing.T) {
	commentable := map[int]bool{10: true, 11: true}

	// last in-range line wins
	line, ok := anchorLine(models.LineRange{Start: 9, End: 11}, commentable)
	require.True(t, ok)
	assert.Equal(t, 11, line)

	// nearest within the window, preferring after the range
	line, ok = anchorLine(models.LineRange{Start: 13, End: 13}, commentable)
	require.True(t, ok)
	assert.Equal(t, 11, line)

	_, ok = anchorLine(models.LineRange{Start: 20, End: 20}, commentable)
	assert.False(t, ok)
}
