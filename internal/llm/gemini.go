package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/reviewloop/reviewloop/internal/config"
)

// GeminiGateway talks to the Gemini API and normalizes its FunctionCall
// parts into canonical tool calls. Gemini does not return tool-call ids, so
// the gateway synthesizes them; on the way back out only the function name
// matters, which is what FunctionResponse parts carry.
type GeminiGateway struct {
	client      *genai.Client
	model       string
	temperature float32
	tools       []*genai.Tool
	logger      *slog.Logger
}

// NewGeminiGateway builds a Gemini-backed gateway
func NewGeminiGateway(cfg config.LLMConfig) (*GeminiGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGateway{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		logger:      slog.Default().With("component", "llm_gemini"),
	}, nil
}

// WithTools returns a copy of the gateway that binds tools on each call
func (g *GeminiGateway) WithTools(tools []ToolDef) Gateway {
	clone := *g
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFromJSON(t.Parameters),
		})
	}
	clone.tools = []*genai.Tool{{FunctionDeclarations: decls}}
	return &clone
}

// Invoke submits the history and returns the normalized assistant reply
func (g *GeminiGateway) Invoke(ctx context.Context, messages []Message) (Message, error) {
	systemInstruction, history := toGeminiHistory(messages)

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
		Tools:       g.tools,
	}
	if systemInstruction != "" {
		genConfig.SystemInstruction = genai.Text(systemInstruction)[0]
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, history, genConfig)
	if err != nil {
		return Message{}, g.wrapError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Message{}, fmt.Errorf("gemini returned no candidates")
	}

	msg := Message{Role: RoleAssistant}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   NewToolCallID(),
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	msg.Content = text.String()
	return msg, nil
}

func (g *GeminiGateway) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		httpErr := NewHTTPError(apiErr.Code, "gemini/"+g.model, apiErr.Message)
		g.logger.Error("generate content failed",
			"status", httpErr.Status, "url", httpErr.URL, "body", httpErr.Body)
		return httpErr
	}
	return fmt.Errorf("generate content failed: %w", err)
}

// toGeminiHistory splits out the system instruction and converts the rest
// of the conversation into genai contents. Consecutive tool results fold
// into one user-role content with FunctionResponse parts, which is the
// shape Gemini validates.
func toGeminiHistory(messages []Message) (string, []*genai.Content) {
	var system strings.Builder
	var history []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
		case RoleUser:
			history = append(history, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Args},
				})
			}
			if len(parts) == 0 {
				parts = []*genai.Part{{Text: ""}}
			}
			history = append(history, &genai.Content{Role: "model", Parts: parts})
		case RoleTool:
			part := &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     m.ToolName,
					Response: map[string]any{"result": m.Content},
				},
			}
			// fold into the preceding tool-result content when present
			if n := len(history); n > 0 && history[n-1].Role == "user" && len(history[n-1].Parts) > 0 && history[n-1].Parts[0].FunctionResponse != nil {
				history[n-1].Parts = append(history[n-1].Parts, part)
			} else {
				history = append(history, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
			}
		}
	}
	return system.String(), history
}

// schemaFromJSON converts the subset of JSON Schema the tool surface uses
// into a genai.Schema
func schemaFromJSON(js map[string]any) *genai.Schema {
	if js == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := js["type"].(string); ok {
		switch t {
		case "object":
			s.Type = genai.TypeObject
		case "array":
			s.Type = genai.TypeArray
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		}
	}
	if d, ok := js["description"].(string); ok {
		s.Description = d
	}
	if props, ok := js["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = schemaFromJSON(sub)
			}
		}
	}
	if items, ok := js["items"].(map[string]any); ok {
		s.Items = schemaFromJSON(items)
	}
	if req, ok := js["required"].([]string); ok {
		s.Required = req
	} else if reqAny, ok := js["required"].([]any); ok {
		for _, r := range reqAny {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	return s
}
