package expert

import (
	"fmt"
	"strings"

	"github.com/reviewloop/reviewloop/internal/config"
	"github.com/reviewloop/reviewloop/internal/llm"
)

// BuildDigest concatenates recent assistant and tool contents into the
// labeled evidence digest attached to forced-finalize prompts. Blocks are
// individually truncated and the digest is built newest-first until the
// total cap, then emitted in chronological order.
func BuildDigest(messages []llm.Message, cfg config.ExpertConfig) string {
	var blocks []string
	total := 0

	for i := len(messages) - 1; i >= 0 && total < cfg.DigestMaxChars; i-- {
		m := messages[i]
		var label string
		switch m.Role {
		case llm.RoleAssistant:
			label = "[ASSISTANT]"
		case llm.RoleTool:
			label = fmt.Sprintf("[TOOL:%s id=%s]", m.ToolName, m.ToolCallID)
		default:
			continue
		}

		content := strings.TrimSpace(m.Content)
		if content == "" && len(m.ToolCalls) > 0 {
			var calls []string
			for _, tc := range m.ToolCalls {
				calls = append(calls, fmt.Sprintf("%s(%s)", tc.Name, tc.ArgsJSON()))
			}
			content = "requested tools: " + strings.Join(calls, ", ")
		}
		if content == "" {
			continue
		}
		if len(content) > cfg.DigestBlockChars {
			content = content[:cfg.DigestBlockChars] + "\n... [truncated]"
		}

		block := label + "\n" + content
		if total+len(block) > cfg.DigestMaxChars {
			break
		}
		total += len(block)
		blocks = append(blocks, block)
	}

	// reverse into chronological order
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return strings.Join(blocks, "\n\n")
}
