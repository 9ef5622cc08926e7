package models

import "time"

// AppSetting holds per-shop credentials for the upstream subscription API.
type AppSetting struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Shop       string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"shop" validate:"required,min=4,max=191"`
	APIKey     string    `gorm:"type:varchar(255);not null" json:"-" validate:"required"`
	APIBaseURL string    `gorm:"type:varchar(255)" json:"api_base_url" validate:"omitempty,url"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
