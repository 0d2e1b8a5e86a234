package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestToolCallArgsJSON(t *testing.T) {
	tc := ToolCall{ID: "call_1", Name: "run_grep", Args: map[string]any{"pattern": "x"}}
	assert.JSONEq(t, `{"pattern": "x"}`, tc.ArgsJSON())
	assert.Equal(t, "{}", ToolCall{Name: "fetch_repo_map"}.ArgsJSON())
}

func TestNewToolCallID(t *testing.T) {
	a, b := NewToolCallID(), NewToolCallID()
	assert.True(t, strings.HasPrefix(a, "call_"))
	assert.NotEqual(t, a, b)
}

func TestMessageChars(t *testing.T) {
	m := Message{
		Role:    RoleAssistant,
		Content: "hello",
		ToolCalls: []ToolCall{
			{Name: "run_grep", Args: map[string]any{"pattern": "x"}},
		},
	}
	assert.Equal(t, len("hello")+len("run_grep")+len(`{"pattern":"x"}`), m.Chars())
}

func TestMessageConstructors(t *testing.T) {
	assert.Equal(t, RoleSystem, SystemMessage("s").Role)
	assert.Equal(t, RoleUser, UserMessage("u").Role)
	assert.Equal(t, RoleAssistant, AssistantMessage("a").Role)

	tm := ToolMessage("call_1", "run_grep", "result")
	assert.Equal(t, RoleTool, tm.Role)
	assert.Equal(t, "call_1", tm.ToolCallID)
	assert.Equal(t, "run_grep", tm.ToolName)
}

func TestHTTPErrorTruncatesBody(t *testing.T) {
	err := NewHTTPError(429, "https://api.example.com/v1", strings.Repeat("x", 5000))
	assert.Equal(t, 429, err.Status)
	assert.Len(t, err.Body, 2003) // 2000 chars plus the ellipsis
	assert.Contains(t, err.Error(), "status=429")
}

type countingGateway struct {
	calls int
	tools []ToolDef
}

func (c *countingGateway) Invoke(ctx context.Context, messages []Message) (Message, error) {
	c.calls++
	return AssistantMessage("ok"), nil
}

func (c *countingGateway) WithTools(tools []ToolDef) Gateway {
	return &countingGateway{tools: tools}
}

func TestThrottleSharesLimiter(t *testing.T) {
	inner := &countingGateway{}
	limiter := rate.NewLimiter(rate.Inf, 1)
	gw := Throttle(inner, limiter)

	_, err := gw.Invoke(context.Background(), []Message{UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	// the tool-bound derivative wraps the same limiter
	bound, ok := gw.WithTools([]ToolDef{{Name: "run_grep"}}).(*throttled)
	require.True(t, ok)
	assert.Same(t, limiter, bound.limiter)
}

func TestThrottleCancelledContext(t *testing.T) {
	inner := &countingGateway{}
	// a zero-rate limiter never grants a token
	gw := Throttle(inner, rate.NewLimiter(0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gw.Invoke(ctx, []Message{UserMessage("hi")})
	assert.Error(t, err)
	assert.Zero(t, inner.calls)
}
