package models

import "time"

// GiftSelection is one product line the customer picked for an eligibility.
// Rows are written before the upstream apply call so customer intent survives
// a crash; AddedToSubscription flips per line as upstream writes succeed.
type GiftSelection struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	EligibilityID       uint      `gorm:"not null;index" json:"eligibility_id"`
	VariantID           string    `gorm:"type:varchar(191);not null" json:"variant_id"`
	ProductTitle        string    `gorm:"type:varchar(255)" json:"product_title"`
	Quantity            int       `gorm:"not null;default:1" json:"quantity"`
	AddedToSubscription bool      `gorm:"not null;default:false" json:"added_to_subscription"`
	UpstreamLineID      string    `gorm:"type:varchar(191)" json:"upstream_line_id"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
