package expert

import (
	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/llm"
)

// Shrink returns a budget-compliant view of the message history for the
// next gateway call. The original log is never mutated; the full history
// stays available for digest building.
//
// Rules, applied in order:
//  1. The leading system message always survives.
//  2. At most MaxHistoryMessages trailing messages are kept; a window that
//     would open on tool messages is extended back to the assistant whose
//     tool_calls spawned them, or the orphans are dropped.
//  3. Tool contents truncate to MaxToolChars, assistant to MaxAIChars.
//  4. If no user message survives, the latest user turn is re-inserted
//     after the system message.
//  5. While total characters exceed MaxTotalChars, messages drop from the
//     front of the tail, never leaving orphan tool messages first.
func Shrink(messages []llm.Message, cfg config.ExpertConfig) []llm.Message {
	if len(messages) == 0 {
		return nil
	}

	var system *llm.Message
	rest := messages
	if messages[0].Role == llm.RoleSystem {
		system = &messages[0]
		rest = messages[1:]
	}

	budget := cfg.MaxHistoryMessages
	if system != nil {
		budget--
	}
	if budget < 1 {
		budget = 1
	}

	start := len(rest) - budget
	if start < 0 {
		start = 0
	}
	// do not open the window on orphan tool messages
	if start > 0 && start < len(rest) && rest[start].Role == llm.RoleTool {
		owner := ownerAssistant(rest, start)
		if owner >= 0 {
			start = owner
		} else {
			for start < len(rest) && rest[start].Role == llm.RoleTool {
				start++
			}
		}
	}
	tail := rest[start:]

	out := make([]llm.Message, 0, len(tail)+2)
	if system != nil {
		out = append(out, *system)
	}
	insertAt := len(out)
	for _, m := range tail {
		out = append(out, truncateMessage(m, cfg))
	}

	if !hasUser(out) {
		if latest, ok := latestUser(messages); ok {
			out = append(out[:insertAt], append([]llm.Message{latest}, out[insertAt:]...)...)
		}
	}

	for totalChars(out) > cfg.MaxTotalChars {
		dropAt := 0
		if system != nil {
			dropAt = 1
		}
		if dropAt >= len(out)-1 {
			break // never drop the final message
		}
		out = append(out[:dropAt], out[dropAt+1:]...)
		// dropping an assistant can strand its tool results
		for dropAt < len(out)-1 && out[dropAt].Role == llm.RoleTool {
			out = append(out[:dropAt], out[dropAt+1:]...)
		}
	}
	return out
}

// ownerAssistant finds the assistant message whose tool_calls produced the
// tool message at index idx, searching backwards
func ownerAssistant(messages []llm.Message, idx int) int {
	for i := idx - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleAssistant && len(messages[i].ToolCalls) > 0 {
			return i
		}
		if messages[i].Role != llm.RoleTool {
			return -1
		}
	}
	return -1
}

func truncateMessage(m llm.Message, cfg config.ExpertConfig) llm.Message {
	switch m.Role {
	case llm.RoleTool:
		if len(m.Content) > cfg.MaxToolChars {
			m.Content = m.Content[:cfg.MaxToolChars] + "\n... [truncated]"
		}
	case llm.RoleAssistant:
		if len(m.Content) > cfg.MaxAIChars {
			m.Content = m.Content[:cfg.MaxAIChars] + "\n... [truncated]"
		}
	}
	return m
}

func hasUser(messages []llm.Message) bool {
	for _, m := range messages {
		if m.Role == llm.RoleUser {
			return true
		}
	}
	return false
}

func latestUser(messages []llm.Message) (llm.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i], true
		}
	}
	return llm.Message{}, false
}

func totalChars(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += m.Chars()
	}
	return total
}
