// Package store persists tasks, their log timelines, and run accounting
// behind one interface with database and flat-file backends.
package store

import (
	"encoding/json"
	"time"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/models"
)

// Store is the uniform persistence interface the execution core and the
// gateway share. Updates are last-write-wins; the system assumes at most one
// in-flight execution per task ID.
type Store interface {
	CreateTask(task *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasks() ([]models.Task, error)
	UpdateTask(task *models.Task) error
	SetStatus(id, status string) error

	// AppendEntries persists structured log entries in emission order.
	AppendEntries(taskID string, entries []agent.LogEntry) error
	// LogsAfter returns the task's entries with Seq > afterSeq, ordered by Seq.
	LogsAfter(taskID string, afterSeq int) ([]models.TaskLog, error)

	RecordRun(run *models.AgentRun) error
	// TokenTotals aggregates persisted token counts for one task.
	TokenTotals(taskID string) (TokenTotals, error)
	// StaleRunning returns running tasks whose last update predates cutoff.
	StaleRunning(cutoff time.Time) ([]models.Task, error)
}

// TokenTotals holds aggregated token usage for a task.
type TokenTotals struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// EntryToLog converts a session log entry to its persisted row.
func EntryToLog(taskID string, e agent.LogEntry) models.TaskLog {
	payload := ""
	if len(e.Payload) > 0 {
		if data, err := json.Marshal(e.Payload); err == nil {
			payload = string(data)
		}
	}
	return models.TaskLog{
		TaskID:    taskID,
		Seq:       e.ID,
		Type:      string(e.Type),
		Message:   e.Message,
		Payload:   payload,
		CreatedAt: e.Timestamp,
	}
}

// LogToEntry converts a persisted row back to the wire/log entry shape.
func LogToEntry(row models.TaskLog) agent.LogEntry {
	var payload map[string]any
	if row.Payload != "" {
		_ = json.Unmarshal([]byte(row.Payload), &payload)
	}
	return agent.LogEntry{
		ID:        row.Seq,
		Timestamp: row.CreatedAt,
		Type:      agent.LogType(row.Type),
		Message:   row.Message,
		Payload:   payload,
	}
}
