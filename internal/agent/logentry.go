package agent

import "time"

// LogType is the closed set of structured log entry types.
type LogType string

const (
	LogSession    LogType = "session"
	LogMessage    LogType = "message"
	LogTool       LogType = "tool"
	LogCost       LogType = "cost"
	LogCompletion LogType = "completion"
	LogError      LogType = "error"
	LogInfo       LogType = "info"
)

// LogEntry is one structured observability unit. ID is the append sequence
// within a task — emission order is authoritative, not the timestamp.
type LogEntry struct {
	ID        int            `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      LogType        `json:"type"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// LogSink receives entries as the session emits them, enabling live
// persistence while the session runs. Sinks must not block for long; the
// session is single-threaded and a slow sink stalls the whole stream.
type LogSink func(LogEntry)
