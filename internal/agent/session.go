package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/pricing"
)

const (
	// textPreviewLen bounds the message preview stored in log entries.
	textPreviewLen = 200
	// toolInputPreviewLen bounds the tool input view stored in log entries.
	toolInputPreviewLen = 150
	// toolErrorPreviewLen bounds accumulated tool error strings.
	toolErrorPreviewLen = 300

	// progressToolName is the structural milestone contract: workflows that
	// want progress tracking call a tool with this exact name and a
	// "milestone" input field. No command-text sniffing.
	progressToolName = "report_progress"
)

// SessionOpts holds parameters for creating an execution session.
type SessionOpts struct {
	TaskID string
	// Tier fixes the pricing tier. Zero value means: derive from the model
	// announced in the init message (sonnet until then).
	Tier   pricing.Tier
	Sink   LogSink
	Logger *zap.Logger
}

// Session consumes one ordered message stream, classifies each message,
// accumulates cost and tool statistics, and produces the final result. It is
// single-threaded and cooperative: one message is fully processed before the
// next is awaited. A session is used for exactly one Run.
type Session struct {
	taskID    string
	tier      pricing.Tier
	tierFixed bool
	sink      LogSink
	logger    *zap.Logger

	seq       int
	logs      []LogEntry
	response  strings.Builder
	data      map[string]any
	errs      []string
	cost      CostAccumulator
	tools     map[string]int
	sessionID string
	model     string
	toolCount int
}

// NewSession creates a session for one task execution.
func NewSession(opts SessionOpts) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tier := opts.Tier
	fixed := tier.Name != ""
	if !fixed {
		tier = pricing.DefaultTier
	}
	return &Session{
		taskID:    opts.TaskID,
		tier:      tier,
		tierFixed: fixed,
		sink:      opts.Sink,
		logger:    logger.With(zap.String("task", opts.TaskID)),
		data:      make(map[string]any),
		tools:     make(map[string]int),
	}
}

// Run drives the session until the stream completes or dies. It never
// returns an error: a stream failure is recorded in the result's error list
// and flips Success to false, but the caller always gets a well-formed
// result with the full log timeline.
func (s *Session) Run(ctx context.Context, stream MessageStream) *ExecutionResult {
	start := time.Now()
	streamFailed := false

	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			streamFailed = true
			s.errs = append(s.errs, fmt.Sprintf("stream: %v", err))
			s.emit(LogError, fmt.Sprintf("Message stream failed: %v", err), nil)
			s.logger.Warn("message stream failed", zap.Error(err))
			break
		}
		s.handle(msg)
	}

	return &ExecutionResult{
		Success:  !streamFailed,
		Response: s.response.String(),
		Data:     s.data,
		Errors:   s.errs,
		Logs:     s.logs,
		Metadata: Metadata{
			Duration:   time.Since(start),
			TokensUsed: s.cost.Usage.Total(),
			Usage:      s.cost.Usage,
			CostUSD:    s.cost.TotalUSD,
			ToolCalls:  s.tools,
		},
	}
}

// handle dispatches one message by variant.
func (s *Session) handle(msg StreamMessage) {
	switch m := msg.(type) {
	case InitMessage:
		s.sessionID = m.SessionID
		s.model = m.Model
		s.toolCount = m.ToolCount
		if !s.tierFixed && m.Model != "" {
			s.tier = pricing.TierFor(m.Model)
		}
		s.emit(LogSession, fmt.Sprintf("Session %s started (model %s, %d tools)", m.SessionID, m.Model, m.ToolCount), map[string]any{
			"session_id": m.SessionID,
			"model":      m.Model,
			"tool_count": m.ToolCount,
		})
	case AssistantMessage:
		for _, block := range m.Blocks {
			s.handleBlock(block)
		}
	case ResultMessage:
		step := s.cost.Add(m.Usage, s.tier)
		s.emit(LogCost, fmt.Sprintf("Step cost $%.6f (total $%.6f, %d tokens)", step, s.cost.TotalUSD, s.cost.Usage.Total()), map[string]any{
			"step_usd":      step,
			"total_usd":     s.cost.TotalUSD,
			"input_tokens":  s.cost.Usage.InputTokens,
			"output_tokens": s.cost.Usage.OutputTokens,
			"cache_creation_tokens": s.cost.Usage.CacheCreationTokens,
			"cache_read_tokens":     s.cost.Usage.CacheReadTokens,
		})
	default:
		s.logger.Warn("unhandled stream message variant", zap.Any("message", msg))
	}
}

// handleBlock dispatches one assistant content block by variant.
func (s *Session) handleBlock(block ContentBlock) {
	switch b := block.(type) {
	case TextBlock:
		s.emit(LogMessage, truncate(b.Text, textPreviewLen), map[string]any{
			"length": len(b.Text),
		})
		s.response.WriteString(b.Text)
		s.scanText(b.Text)
	case ThinkingBlock:
		s.emit(LogMessage, truncate(b.Thinking, textPreviewLen), map[string]any{
			"reasoning": true,
			"length":    len(b.Thinking),
		})
	case ToolUseBlock:
		s.tools[b.Name]++
		s.emit(LogTool, fmt.Sprintf("Tool %s", b.Name), map[string]any{
			"name":  b.Name,
			"id":    b.ID,
			"input": truncate(fmt.Sprintf("%v", b.Input), toolInputPreviewLen),
		})
		if b.Name == progressToolName {
			s.recordMilestone(b.Input)
		}
	case ToolResultBlock:
		if b.IsError {
			s.errs = append(s.errs, truncate(b.Content, toolErrorPreviewLen))
			s.emit(LogError, fmt.Sprintf("Tool result error: %s", truncate(b.Content, textPreviewLen)), map[string]any{
				"tool_use_id": b.ToolUseID,
			})
			return
		}
		if url := ExtractRepoURL(b.Content); url != "" && s.data["repository_url"] == nil {
			s.data["repository_url"] = url
			s.emit(LogInfo, "Repository detected: "+url, map[string]any{
				"repository_url": url,
			})
		}
	default:
		s.logger.Warn("unhandled content block variant", zap.Any("block", block))
	}
}

// scanText attempts best-effort structured-data extraction from assistant
// prose. Failures are warnings only; they never abort the session and never
// enter the timeline.
func (s *Session) scanText(text string) {
	if url := ExtractRepoURL(text); url != "" && s.data["repository_url"] == nil {
		s.data["repository_url"] = url
	}
	if !strings.Contains(text, "{") {
		return
	}
	obj, err := ExtractJSON(text)
	if err != nil {
		s.logger.Warn("structured data extraction failed", zap.Error(err))
		return
	}
	for k, v := range obj {
		if _, exists := s.data[k]; !exists {
			s.data[k] = v
		}
	}
}

// recordMilestone emits a milestone entry for a structural progress call.
func (s *Session) recordMilestone(input map[string]any) {
	milestone, _ := input["milestone"].(string)
	if milestone == "" {
		return
	}
	payload := map[string]any{"milestone": milestone}
	if pct, ok := input["percent"].(float64); ok {
		payload["percent"] = pct
	}
	s.emit(LogInfo, "Milestone: "+milestone, payload)
}

// emit appends one entry to the timeline and forwards it to the sink.
// IDs are the append sequence, starting at 1.
func (s *Session) emit(t LogType, msg string, payload map[string]any) {
	s.seq++
	entry := LogEntry{
		ID:        s.seq,
		Timestamp: time.Now().UTC(),
		Type:      t,
		Message:   msg,
		Payload:   payload,
	}
	s.logs = append(s.logs, entry)
	if s.sink != nil {
		s.sink(entry)
	}
}

// SessionID reports the runtime session identifier captured from init,
// empty before one arrives.
func (s *Session) SessionID() string { return s.sessionID }

// Model reports the model announced in the init message.
func (s *Session) Model() string { return s.model }
