package models

import "time"

// AgentRun records one completed execution for accounting and diagnosis.
type AgentRun struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TaskID    string `gorm:"size:64;index"`
	AgentID   string `gorm:"size:64;index"`
	SessionID string `gorm:"size:64"`
	Model     string `gorm:"size:64"`
	Success   bool

	CostUSD    float64
	TokensUsed int
	ToolCalls  string `gorm:"type:json"`

	StartedAt  time.Time
	FinishedAt time.Time
}
