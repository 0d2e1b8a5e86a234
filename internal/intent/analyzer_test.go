package intent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/diffctx"
	"github.com/reviewloop/reviewloop/internal/llm"
)

// stubGateway scripts gateway replies for tests
type stubGateway struct {
	invoke func(ctx context.Context, messages []llm.Message) (llm.Message, error)
}

func (s *stubGateway) Invoke(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	return s.invoke(ctx, messages)
}

func (s *stubGateway) WithTools(tools []llm.ToolDef) llm.Gateway { return s }

func TestAnalyzePerFile(t *testing.T) {
	gw := &stubGateway{invoke: func(ctx context.Context, msgs []llm.Message) (llm.Message, error) {
		// the model echoes a different path; the request anchor must win
		return llm.AssistantMessage(`{"file_path": "wrong/echo.py", "intent_summary": "s", "potential_risks": []}`), nil
	}}
	a := testAnalyzer(t, gw, nil)

	diff := buildDiff(map[string][]string{
		"src/b.py": {"y = 2"},
		"src/a.py": {"x = 1"},
	})
	dc, err := diffctx.Parse(diff)
	require.NoError(t, err)

	out := a.Analyze(context.Background(), dc, []string{"src/b.py", "src/a.py"})
	require.Len(t, out, 2)
	// sorted by path, and each analysis pinned to its requested file
	assert.Equal(t, "src/a.py", out[0].FilePath)
	assert.Equal(t, "src/b.py", out[1].FilePath)
}

func TestAnalyzeFailureIsPerFile(t *testing.T) {
	gw := &stubGateway{invoke: func(ctx context.Context, msgs []llm.Message) (llm.Message, error) {
		for _, m := range msgs {
			if m.Role == llm.RoleUser && strings.Contains(m.Content, "src/bad.py") {
				return llm.Message{}, fmt.Errorf("rate limited")
			}
		}
		return llm.AssistantMessage(`{"intent_summary": "fine", "potential_risks": []}`), nil
	}}
	a := testAnalyzer(t, gw, nil)

	diff := buildDiff(map[string][]string{
		"src/bad.py":  {"x = 1"},
		"src/good.py": {"y = 2"},
	})
	dc, err := diffctx.Parse(diff)
	require.NoError(t, err)

	out := a.Analyze(context.Background(), dc, []string{"src/bad.py", "src/good.py"})
	require.Len(t, out, 2)
	assert.Contains(t, out[0].IntentSummary, "analysis unavailable")
	assert.Empty(t, out[0].PotentialRisks)
	assert.Equal(t, "fine", out[1].IntentSummary)
}
