package agent

import (
	"github.com/rs/zerolog/log"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/chat"
)

// Transcode converts a session message log into the provider-neutral
// request sequence. It is a pure transformation: empty messages are
// dropped, adjacent same-role text messages are merged, and tool-result
// bundles whose call ids do not answer the immediately preceding
// assistant message are discarded.
func Transcode(messages []chat.Message) []PromptMessage {
	out := make([]PromptMessage, 0, len(messages))

	for _, msg := range messages {
		if msg.IsEmpty() {
			continue
		}

		if msg.IsToolResultBundle() {
			if !answersPreceding(out, msg) {
				log.Warn().
					Int("blocks", len(msg.Blocks)).
					Msg("Dropping orphan tool-result bundle")
				continue
			}
			out = append(out, PromptMessage{
				Role:        chat.RoleUser,
				ToolResults: msg.ToolResults(),
			})
			continue
		}

		pm := PromptMessage{
			Role:      msg.Role,
			Text:      msg.PlainText(),
			ToolCalls: msg.ToolCalls(),
		}

		// Two adjacent messages from the same author collapse into one
		// request message, as long as neither side carries tool blocks.
		if n := len(out); n > 0 && out[n-1].Role == pm.Role {
			if len(out[n-1].ToolCalls) == 0 && len(out[n-1].ToolResults) == 0 &&
				len(pm.ToolCalls) == 0 {
				out[n-1].Text = out[n-1].Text + "\n" + pm.Text
				continue
			}
			log.Warn().
				Str("role", string(pm.Role)).
				Msg("Adjacent same-role messages kept distinct, tool blocks prevent merging")
		}

		out = append(out, pm)
	}

	return out
}

// answersPreceding reports whether every tool_result in the bundle
// answers a tool call of the last transcoded message.
func answersPreceding(out []PromptMessage, bundle chat.Message) bool {
	if len(out) == 0 {
		return false
	}

	prev := out[len(out)-1]
	if prev.Role != chat.RoleAssistant || len(prev.ToolCalls) == 0 {
		return false
	}

	ids := make(map[string]bool, len(prev.ToolCalls))
	for _, call := range prev.ToolCalls {
		ids[call.ID] = true
	}

	for _, result := range bundle.ToolResults() {
		if !ids[result.ToolUseID] {
			return false
		}
	}
	return true
}
