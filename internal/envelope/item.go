package envelope

import "encoding/json"

// ContentItem is one conversation turn: who spoke and the structured blocks
// that make up the turn.
type ContentItem struct {
	Speaker string  `json:"speaker"`
	Blocks  []Block `json:"blocks"`
}

// Block is one element of a turn's content array. Tool input and tool_result
// content stay as raw JSON so records round-trip byte-for-byte through a
// write/replay cycle.
type Block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`          // tool_use id
	Name      string          `json:"name,omitempty"`        // tool name
	Input     json.RawMessage `json:"input,omitempty"`       // tool input
	ToolUseID string          `json:"tool_use_id,omitempty"` // tool_result
	Content   json.RawMessage `json:"content,omitempty"`     // tool_result content
	IsError   bool            `json:"is_error,omitempty"`
}

// TextItem builds a single-block text turn. Convenience for callers and
// tests that don't carry tool blocks.
func TextItem(speaker, text string) ContentItem {
	return ContentItem{
		Speaker: speaker,
		Blocks:  []Block{{Type: "text", Text: text}},
	}
}
