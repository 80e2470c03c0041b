package agent

import (
	"strings"
	"time"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/chat"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/tools"
)

// Inbound is one unit of work handed over by the transport.
type Inbound struct {
	// Identity is the sender's phone number in any formatting.
	Identity string `json:"identity"`

	// Text is the message body.
	Text string `json:"text"`

	// MessageID is the transport's delivery id, used for duplicate
	// detection. May be empty when the transport provides none.
	MessageID string `json:"message_id,omitempty"`
}

// ModelConfig configures the model calls made by the loop.
type ModelConfig struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	// MaxRounds bounds the tool-calling loop per inbound message.
	MaxRounds int `json:"max_rounds,omitempty"`

	// MaxRetries bounds attempts per model call.
	MaxRetries int `json:"max_retries,omitempty"`
}

// DefaultModelConfig returns the default model configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       "claude-3-5-sonnet-20241022",
		MaxTokens:   1024,
		Temperature: 0.7,
		MaxRounds:   3,
		MaxRetries:  3,
	}
}

// PromptMessage is one provider-neutral request message produced by the
// transcoder. Exactly one of Text, ToolCalls, or ToolResults dominates,
// but assistant messages may carry Text alongside ToolCalls.
type PromptMessage struct {
	Role        chat.Role
	Text        string
	ToolCalls   []chat.ContentBlock
	ToolResults []chat.ContentBlock
}

// Request is one model completion call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []PromptMessage
	Tools        []tools.Declaration
	MaxTokens    int
	Temperature  float64
}

// Response is the model's reply: an assistant message whose blocks may
// include tool calls, plus usage accounting.
type Response struct {
	Message chat.Message
	Usage   *TokenUsage
}

// TokenUsage tracks token consumption per model call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// IsRetryableError reports whether a model-call error is transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, marker := range []string{
		"ECONNRESET", "ETIMEDOUT", "connection reset", "timeout",
		"429", "rate limit",
		"500", "502", "503", "504", "overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// backoffDelay returns the exponential backoff delay for an attempt.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * (1 << attempt)
}
