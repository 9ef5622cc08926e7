package models

import "time"

const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncLog is an append-only audit record of one reconciliation attempt.
type SyncLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RunID        string    `gorm:"type:varchar(36);not null;index" json:"run_id"`
	Shop         string    `gorm:"type:varchar(191);not null;index" json:"shop"`
	TotalFetched int       `gorm:"not null;default:0" json:"total_fetched"`
	TotalSynced  int       `gorm:"not null;default:0" json:"total_synced"`
	Status       string    `gorm:"type:varchar(32);not null" json:"status"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
