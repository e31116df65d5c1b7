package models

import "time"

// TaskLog is one persisted structured log entry. Seq is the emission order
// within the task — that ordering is authoritative, not CreatedAt.
type TaskLog struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	TaskID  string `gorm:"size:64;index:idx_task_seq"`
	Seq     int    `gorm:"index:idx_task_seq"`
	Type    string `gorm:"size:16"`
	Message string `gorm:"type:text"`
	Payload string `gorm:"type:json"`

	CreatedAt time.Time
}
