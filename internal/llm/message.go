// Package llm provides the provider-agnostic chat gateway the pipeline
// stages talk to. Provider adapters (OpenAI-compatible and Gemini) normalize
// tool calls into one canonical record so no stage ever sees provider wire
// formats.
package llm

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Role is a chat message role
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is the canonical tool-call record. Providers that omit ids get
// synthesized ones so the round trip stays stable.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// NewToolCallID synthesizes a stable id for providers that omit one
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// ArgsJSON renders the arguments as a JSON object string
func (tc ToolCall) ArgsJSON() string {
	if tc.Args == nil {
		return "{}"
	}
	data, err := json.Marshal(tc.Args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Message is one turn of a chat conversation. Assistant messages may carry
// ToolCalls; tool messages carry the ToolCallID and ToolName they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// SystemMessage builds a system turn
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user turn
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn without tool calls
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage builds a tool-result turn linked to the call that spawned it
func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: name}
}

// Chars is the character size of a message including tool-call arguments,
// used by history-shrinking accounting
func (m Message) Chars() int {
	n := len(m.Content)
	for _, tc := range m.ToolCalls {
		n += len(tc.Name) + len(tc.ArgsJSON())
	}
	return n
}

// ToolDef declares one callable tool to the provider. Parameters is a JSON
// Schema object.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// HTTPError carries the structured transport diagnostics the gateway
// surfaces for logs: status, URL, and a truncated response body.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

const maxErrorBodyChars = 2000

// NewHTTPError builds an HTTPError, truncating the body for logs
func NewHTTPError(status int, url, body string) *HTTPError {
	if len(body) > maxErrorBodyChars {
		body = body[:maxErrorBodyChars] + "..."
	}
	return &HTTPError{Status: status, URL: url, Body: body}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm request failed: status=%d url=%s body=%s", e.Status, e.URL, e.Body)
}
