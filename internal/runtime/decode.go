// Package runtime drives the model-interaction subprocess and decodes its
// stream-json output into typed messages.
package runtime

import (
	"encoding/json"
	"strings"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/pricing"
)

// rawEvent covers the envelope of every stream-json line.
type rawEvent struct {
	Type      string            `json:"type"`
	Subtype   string            `json:"subtype"`
	SessionID string            `json:"session_id"`
	Model     string            `json:"model"`
	Tools     []json.RawMessage `json:"tools"`
	Message   *rawMessage       `json:"message"`
	Usage     *rawUsage         `json:"usage"`
}

type rawMessage struct {
	Model   string     `json:"model"`
	Content []rawBlock `json:"content"`
}

type rawBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Thinking  string         `json:"thinking"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	ToolUseID string         `json:"tool_use_id"`
	IsError   bool           `json:"is_error"`
	Content   any            `json:"content"`
}

type rawUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
}

// DecodeLine turns one stream-json line into a StreamMessage. The second
// return is false for blank lines, non-JSON noise, and event types this
// layer does not carry (they are skipped, not errors).
func DecodeLine(line []byte) (agent.StreamMessage, bool) {
	trimmed := strings.TrimSpace(string(line))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var evt rawEvent
	if err := json.Unmarshal([]byte(trimmed), &evt); err != nil {
		return nil, false
	}

	switch evt.Type {
	case "system":
		if evt.Subtype != "init" {
			return nil, false
		}
		return agent.InitMessage{
			SessionID: evt.SessionID,
			Model:     evt.Model,
			ToolCount: len(evt.Tools),
		}, true
	case "assistant", "user":
		if evt.Message == nil {
			return nil, false
		}
		blocks := decodeBlocks(evt.Message.Content)
		if len(blocks) == 0 {
			return nil, false
		}
		return agent.AssistantMessage{Blocks: blocks}, true
	case "result":
		usage := pricing.Usage{}
		if evt.Usage != nil {
			usage = pricing.Usage{
				InputTokens:         evt.Usage.InputTokens,
				OutputTokens:        evt.Usage.OutputTokens,
				CacheCreationTokens: evt.Usage.CacheCreationTokens,
				CacheReadTokens:     evt.Usage.CacheReadTokens,
			}
		}
		return agent.ResultMessage{Usage: usage}, true
	}
	return nil, false
}

func decodeBlocks(raw []rawBlock) []agent.ContentBlock {
	var blocks []agent.ContentBlock
	for _, b := range raw {
		switch b.Type {
		case "text":
			blocks = append(blocks, agent.TextBlock{Text: b.Text})
		case "thinking":
			blocks = append(blocks, agent.ThinkingBlock{Thinking: b.Thinking})
		case "tool_use":
			blocks = append(blocks, agent.ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input})
		case "tool_result":
			blocks = append(blocks, agent.ToolResultBlock{
				ToolUseID: b.ToolUseID,
				IsError:   b.IsError,
				Content:   contentText(b.Content),
			})
		}
	}
	return blocks
}

// contentText flattens tool result content, which arrives either as a plain
// string or as a list of text parts.
func contentText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok && text != "" {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
	}
	return ""
}
