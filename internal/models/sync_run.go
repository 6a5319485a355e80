package models

import "time"

// SyncRunStatus represents the state of one orchestrated sync attempt.
type SyncRunStatus string

const (
	SyncRunStatusInProgress SyncRunStatus = "in_progress"
	SyncRunStatusCompleted  SyncRunStatus = "completed"
	SyncRunStatusFailed     SyncRunStatus = "failed"
)

// SyncRun is the append-only audit record of one sync attempt for a
// connection. Completed means orchestration finished, not zero errors;
// the counts convey partial failure. Rows are immutable once completed.
type SyncRun struct {
	Base
	ConnectionID uint          `gorm:"not null;index" json:"connection_id"`
	StartedAt    time.Time     `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Status       SyncRunStatus `gorm:"not null;default:'in_progress'" json:"status"`
	Fetched      int           `gorm:"not null;default:0" json:"fetched"`
	Imported     int           `gorm:"not null;default:0" json:"imported"`
	Skipped      int           `gorm:"not null;default:0" json:"skipped"`
	Failed       int           `gorm:"not null;default:0" json:"failed"`
	ErrorMessage string        `json:"error_message,omitempty"`

	Connection BankConnection `gorm:"foreignKey:ConnectionID" json:"-"`
}

// TableName keeps the historical table name used by the sync engine.
func (SyncRun) TableName() string {
	return "transaction_sync_history"
}
