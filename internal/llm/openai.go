package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/reviewloop/reviewloop/internal/config"
)

// OpenAIGateway talks to OpenAI and OpenAI-compatible providers (set
// llm.base_url for the latter).
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	temperature float32
	baseURL     string
	tools       []openai.Tool
	logger      *slog.Logger
}

// NewOpenAIGateway builds a gateway for an OpenAI-compatible endpoint
func NewOpenAIGateway(cfg config.LLMConfig) *OpenAIGateway {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		baseURL:     clientCfg.BaseURL,
		logger:      slog.Default().With("component", "llm_openai"),
	}
}

// WithTools returns a copy of the gateway that binds tools on each call
func (g *OpenAIGateway) WithTools(tools []ToolDef) Gateway {
	clone := *g
	clone.tools = make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		clone.tools = append(clone.tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return &clone
}

// Invoke submits the history and returns the normalized assistant reply
func (g *OpenAIGateway) Invoke(ctx context.Context, messages []Message) (Message, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages:    toOpenAIMessages(messages),
		Tools:       g.tools,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Message{}, g.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, fmt.Errorf("llm returned no choices")
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

func (g *OpenAIGateway) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		httpErr := NewHTTPError(apiErr.HTTPStatusCode, g.baseURL, apiErr.Message)
		g.logger.Error("chat completion failed",
			"status", httpErr.Status, "url", httpErr.URL, "body", httpErr.Body)
		return httpErr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		httpErr := NewHTTPError(reqErr.HTTPStatusCode, g.baseURL, reqErr.Error())
		g.logger.Error("chat completion failed",
			"status", httpErr.Status, "url", httpErr.URL, "body", httpErr.Body)
		return httpErr
	}
	return fmt.Errorf("chat completion failed: %w", err)
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		om := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == RoleTool {
			om.ToolCallID = m.ToolCallID
			om.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.ArgsJSON(),
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	msg := Message{Role: RoleAssistant, Content: m.Content}
	for _, tc := range m.ToolCalls {
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if call.ID == "" {
			call.ID = NewToolCallID()
		}
		if tc.Function.Arguments != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
				call.Args = args
			} else {
				// keep the raw text so the tool layer can report it
				call.Args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg
}
