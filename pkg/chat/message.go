package chat

import (
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of content carried by a block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one unit of message content. Which fields are set
// depends on Type: text blocks carry Text, tool_use blocks carry
// ID/Name/Input, tool_result blocks carry ToolUseID/Content/IsError.
type ContentBlock struct {
	Type      BlockType              `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
	IsError   bool                   `json:"is_error,omitempty"`
}

// Message is a single entry in a conversation log. User messages carry
// plain text; assistant messages carry content blocks. A tool-result
// bundle is a user-role message whose blocks are all tool_result.
type Message struct {
	Role      Role           `json:"role"`
	Text      string         `json:"text,omitempty"`
	Blocks    []ContentBlock `json:"blocks,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewUserMessage creates a plain-text user message.
func NewUserMessage(text string) Message {
	return Message{
		Role:      RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message from content blocks.
func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{
		Role:      RoleAssistant,
		Blocks:    blocks,
		Timestamp: time.Now(),
	}
}

// NewToolResultMessage creates a tool-result bundle answering the tool
// calls of the preceding assistant message.
func NewToolResultMessage(blocks ...ContentBlock) Message {
	return Message{
		Role:      RoleUser,
		Blocks:    blocks,
		Timestamp: time.Now(),
	}
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock creates a tool-call content block.
func ToolUseBlock(id, name string, input map[string]interface{}) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock creates a tool-result content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ToolCalls returns the tool_use blocks of the message, in order.
func (m Message) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse {
			calls = append(calls, b)
		}
	}
	return calls
}

// ToolResults returns the tool_result blocks of the message, in order.
func (m Message) ToolResults() []ContentBlock {
	var results []ContentBlock
	for _, b := range m.Blocks {
		if b.Type == BlockToolResult {
			results = append(results, b)
		}
	}
	return results
}

// IsToolResultBundle reports whether the message is a user-role bundle
// consisting only of tool_result blocks.
func (m Message) IsToolResultBundle() bool {
	if m.Role != RoleUser || len(m.Blocks) == 0 {
		return false
	}
	for _, b := range m.Blocks {
		if b.Type != BlockToolResult {
			return false
		}
	}
	return true
}

// HasToolBlocks reports whether the message carries any tool_use or
// tool_result block.
func (m Message) HasToolBlocks() bool {
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse || b.Type == BlockToolResult {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the message has no usable content.
func (m Message) IsEmpty() bool {
	if strings.TrimSpace(m.Text) != "" {
		return false
	}
	for _, b := range m.Blocks {
		switch b.Type {
		case BlockText:
			if strings.TrimSpace(b.Text) != "" {
				return false
			}
		case BlockToolUse, BlockToolResult:
			return false
		}
	}
	return true
}

// PlainText returns the concatenated text content of the message.
func (m Message) PlainText() string {
	if m.Text != "" {
		return m.Text
	}
	var parts []string
	for _, b := range m.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
