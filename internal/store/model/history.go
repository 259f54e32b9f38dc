package model

import (
	"time"
)

// ArtifactSummary is the part of an artifact kept in history.
type ArtifactSummary struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// HistoryRecord is written once per completed job that carried a user id.
type HistoryRecord struct {
	ID        uint              `gorm:"primaryKey;autoIncrement"`
	UserID    string            `gorm:"not null;index:idx_history_user_created,priority:1"`
	ToolName  string            `gorm:"not null"`
	JobID     string            `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time         `gorm:"not null;index:idx_history_user_created,priority:2"`
	Artifacts []ArtifactSummary `gorm:"type:text;serializer:json"`
}

func (HistoryRecord) TableName() string {
	return "history_records"
}

type HistoryList []HistoryRecord

// HistoryStats aggregates the history table for metrics.
type HistoryStats struct {
	TotalRecords int64
	TotalUsers   int64
	ByTool       map[string]int64
}
