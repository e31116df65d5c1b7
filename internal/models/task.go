// Package models defines the GORM persistence models.
package models

import "time"

// Task statuses. A task is terminal once it reaches success or error.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Terminal reports whether a status ends log streaming for the task.
func Terminal(status string) bool {
	return status == StatusSuccess || status == StatusError
}

// Task is the persisted work item an execution runs against. The execution
// core only appends logs and updates status/cost; board CRUD lives with the
// caller.
type Task struct {
	ID          string `gorm:"primaryKey;size:64"`
	Prompt      string `gorm:"type:text"`
	AgentID     string `gorm:"size:64;index"`
	AgentStatus string `gorm:"size:16;default:pending;index"`
	Response    string `gorm:"type:text"`
	Data        string `gorm:"type:json"`

	CostUSD             float64
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	DurationMs          int64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
