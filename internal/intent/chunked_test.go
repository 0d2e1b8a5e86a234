package intent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/llm"
	"github.com/reviewloop/reviewloop/internal/prompts"
)

func testAnalyzer(t *testing.T, gw llm.Gateway, mutate func(*config.Config)) *Analyzer {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return New(gw, prompts.NewLibrary(""), cfg, semaphore.NewWeighted(4), t.TempDir())
}

func buildDiff(files map[string][]string) string {
	var b strings.Builder
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, path := range keys {
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n", path, path, path, path)
		fmt.Fprintf(&b, "@@ -1,0 +1,%d @@\n", len(files[path]))
		for _, line := range files[path] {
			b.WriteString("+" + line + "\n")
		}
	}
	return b.String()
}

func TestFileTypeWeight(t *testing.T) {
	assert.Equal(t, 0.4, fileTypeWeight("pkg/foo_test.go"))
	assert.Equal(t, 0.4, fileTypeWeight("tests/test_app.py"))
	assert.Equal(t, 0.2, fileTypeWeight("docs/guide.md"))
	assert.Equal(t, 0.6, fileTypeWeight("deploy/config.yaml"))
	assert.Equal(t, 1.0, fileTypeWeight("src/handler.py"))
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "src/api", groupKey("src/api/handlers/login.py"))
	assert.Equal(t, "src/api", groupKey("src/api/login.py"))
	assert.Equal(t, "main.go", groupKey("main.go"))
}

func TestScoreFileStrongDanger(t *testing.T) {
	a := testAnalyzer(t, nil, nil)
	diff := buildDiff(map[string][]string{
		"src/safe.py":   {"x = 1", "y = 2"},
		"src/unsafe.py": {"result = eval(user_input)"},
	})
	dc, err := diffctx.Parse(diff)
	require.NoError(t, err)

	safe := a.scoreFile(dc, "src/safe.py")
	unsafe := a.scoreFile(dc, "src/unsafe.py")
	assert.False(t, safe.StrongDanger)
	assert.True(t, unsafe.StrongDanger)
	assert.Greater(t, unsafe.Score, safe.Score)
}

func TestBuildChunksGroupsAndPacks(t *testing.T) {
	a := testAnalyzer(t, nil, nil)
	diff := buildDiff(map[string][]string{
		"src/api/a.py":  {"x = 1"},
		"src/api/b.py":  {"y = 2"},
		"src/core/c.py": {"z = 3"},
	})
	dc, err := diffctx.Parse(diff)
	require.NoError(t, err)

	chunks := a.buildChunks(dc, []string{"src/api/a.py", "src/api/b.py", "src/core/c.py"})
	require.Len(t, chunks, 2)
	assert.Equal(t, "src/api", chunks[0].Key)
	assert.ElementsMatch(t, []string{"src/api/a.py", "src/api/b.py"}, chunks[0].Files)
	assert.Equal(t, []string{"src/core/c.py"}, chunks[1].Files)
}

func TestBuildChunksOversizedFileGetsOwnChunk(t *testing.T) {
	a := testAnalyzer(t, nil, func(c *config.Config) { c.Chunk.MaxChunkChars = 80 })
	big := make([]string, 20)
	for i := range big {
		big[i] = "padding_line_for_an_oversized_diff_segment"
	}
	diff := buildDiff(map[string][]string{
		"src/big.py":   big,
		"src/small.py": {"x = 1"},
	})
	dc, err := diffctx.Parse(diff)
	require.NoError(t, err)

	chunks := a.buildChunks(dc, []string{"src/big.py", "src/small.py"})
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		if c.Files[0] == "src/big.py" {
			assert.Len(t, c.Files, 1)
			assert.Contains(t, c.Diff, "[truncated]")
		}
	}
}

func TestSelectTopKBelowDisableThreshold(t *testing.T) {
	a := testAnalyzer(t, nil, nil)
	chunks := []Chunk{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	assert.Equal(t, chunks, a.selectTopK(chunks))
}

func TestSelectTopKClampAndMustInclude(t *testing.T) {
	a := testAnalyzer(t, nil, nil)

	// 12 chunks: k = clamp(ceil(12*0.3), 4, 10) = 4
	chunks := make([]Chunk, 12)
	for i := range chunks {
		chunks[i] = Chunk{Key: fmt.Sprintf("pkg%02d", i), Score: float64(i)}
	}
	// weakest chunk carries strong danger and must survive selection
	chunks[0].StrongDanger = true

	selected := a.selectTopK(chunks)
	// the must-include occupies one of the k = 4 slots
	require.Len(t, selected, 4)
	keys := make([]string, 0, len(selected))
	for _, c := range selected {
		keys = append(keys, c.Key)
	}
	assert.ElementsMatch(t, []string{"pkg00", "pkg11", "pkg10", "pkg09"}, keys)
}

func TestSelectTopKSentinel(t *testing.T) {
	a := testAnalyzer(t, nil, func(c *config.Config) { c.Chunk.SentinelSample = 1 })
	chunks := make([]Chunk, 12)
	for i := range chunks {
		chunks[i] = Chunk{Key: fmt.Sprintf("pkg%02d", i), Score: float64(i)}
	}
	selected := a.selectTopK(chunks)
	// 4 by score plus one deterministic sentinel
	require.Len(t, selected, 5)
	keys := make([]string, 0, len(selected))
	for _, c := range selected {
		keys = append(keys, c.Key)
	}
	// first unselected chunk in key order
	assert.Contains(t, keys, "pkg00")
}

func TestShouldChunk(t *testing.T) {
	assert.False(t, ShouldChunk(25, 100, 25, 200000))
	assert.True(t, ShouldChunk(26, 100, 25, 200000))
	assert.False(t, ShouldChunk(3, 200000, 25, 200000))
	assert.True(t, ShouldChunk(3, 200001, 25, 200000))
}

func TestAnalyzeChunkedDropsFailedChunks(t *testing.T) {
	calls := 0
	gw := &stubGateway{invoke: func(ctx context.Context, msgs []llm.Message) (llm.Message, error) {
		calls++
		prompt := msgs[len(msgs)-1].Content
		if strings.Contains(prompt, "src/core/c.py") {
			return llm.Message{}, fmt.Errorf("transport down")
		}
		return llm.AssistantMessage(`{"analyses": [
			{"file_path": "src/api/a.py", "intent_summary": "ok", "potential_risks": []},
			{"file_path": "src/api/b.py", "intent_summary": "ok", "potential_risks": []}
		]}`), nil
	}}
	a := testAnalyzer(t, gw, nil)

	diff := buildDiff(map[string][]string{
		"src/api/a.py":  {"x = 1"},
		"src/api/b.py":  {"y = 2"},
		"src/core/c.py": {"z = 3"},
	})
	dc, err := diffctx.Parse(diff)
	require.NoError(t, err)

	out := a.AnalyzeChunked(context.Background(), dc, []string{"src/api/a.py", "src/api/b.py", "src/core/c.py"})
	assert.Equal(t, 2, calls)
	require.Len(t, out, 2)
	assert.Equal(t, "src/api/a.py", out[0].FilePath)
	assert.Equal(t, "src/api/b.py", out[1].FilePath)
}
