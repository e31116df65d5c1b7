package agent

import (
	"context"
	"io"

	"github.com/zulandar/roundhouse/internal/pricing"
)

// StreamMessage is one message from the model-interaction runtime. The
// marker method closes the set so session dispatch can switch exhaustively.
type StreamMessage interface {
	streamMessage()
}

// InitMessage opens a session: identifiers and tool inventory, no cost.
type InitMessage struct {
	SessionID string
	Model     string
	ToolCount int
}

func (InitMessage) streamMessage() {}

// AssistantMessage carries an ordered list of content blocks.
type AssistantMessage struct {
	Blocks []ContentBlock
}

func (AssistantMessage) streamMessage() {}

// ResultMessage closes one model round-trip and reports its token usage.
type ResultMessage struct {
	Usage pricing.Usage
}

func (ResultMessage) streamMessage() {}

// ContentBlock is one unit inside an assistant message.
type ContentBlock interface {
	contentBlock()
}

// TextBlock is visible assistant prose; it joins the final response.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ThinkingBlock is reasoning-only output, never part of the response.
type ThinkingBlock struct {
	Thinking string
}

func (ThinkingBlock) contentBlock() {}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolUseBlock) contentBlock() {}

// ToolResultBlock reports the outcome of a prior tool invocation.
type ToolResultBlock struct {
	ToolUseID string
	IsError   bool
	Content   string
}

func (ToolResultBlock) contentBlock() {}

// MessageStream is the ordered asynchronous message source a session
// consumes. Next blocks until a message is available; it returns io.EOF when
// the stream is exhausted, or any other error to abort it.
type MessageStream interface {
	Next(ctx context.Context) (StreamMessage, error)
}

// SliceStream serves a fixed message sequence. Used by one-shot replays and
// throughout the tests.
type SliceStream struct {
	Messages []StreamMessage
	// Err, if set, is returned after the messages are exhausted instead of
	// io.EOF, simulating a stream that dies mid-iteration.
	Err error

	pos int
}

// Next implements MessageStream.
func (s *SliceStream) Next(ctx context.Context) (StreamMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.Messages) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	msg := s.Messages[s.pos]
	s.pos++
	return msg, nil
}
