package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const (
	GiftStatusPending     = "pending"
	GiftStatusEmailSent   = "email_sent"
	GiftStatusEmailFailed = "email_failed"
	GiftStatusSelected    = "selected"
	GiftStatusApplied     = "applied"
)

// GiftEligibility records that a subscriber crossed a trigger threshold. The
// unique (shop, contract_id, trigger_threshold) index is the idempotency key
// that prevents a milestone from ever being issued twice; the token is the
// sole redemption credential.
type GiftEligibility struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Shop             string     `gorm:"type:varchar(191);not null;index:ux_gift_eligibilities_milestone,unique,priority:1" json:"shop"`
	ContractID       string     `gorm:"type:varchar(191);not null;index:ux_gift_eligibilities_milestone,unique,priority:2" json:"contract_id"`
	TriggerThreshold int        `gorm:"not null;index:ux_gift_eligibilities_milestone,unique,priority:3" json:"trigger_threshold"`
	CustomerID       string     `gorm:"type:varchar(191);index" json:"customer_id"`
	Email            string     `gorm:"type:varchar(200)" json:"email"`
	FirstName        string     `gorm:"type:varchar(150)" json:"first_name"`
	LastName         string     `gorm:"type:varchar(150)" json:"last_name"`
	Token            string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"-"`
	Status           string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	EmailSentAt      *time.Time `gorm:"type:timestamp;default:null" json:"email_sent_at,omitempty"`
	SelectedAt       *time.Time `gorm:"type:timestamp;default:null" json:"selected_at,omitempty"`
	AppliedAt        *time.Time `gorm:"type:timestamp;default:null" json:"applied_at,omitempty"`
	ExpiresAt        time.Time  `gorm:"type:timestamp;not null" json:"expires_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Selections []GiftSelection `gorm:"foreignKey:EligibilityID" json:"selections,omitempty"`
}

// Expired reports whether the redemption window has closed. Expiry is a
// read-path check; the stored status is never rewritten to reflect it.
func (e *GiftEligibility) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Redeemed reports whether the customer already used the link.
func (e *GiftEligibility) Redeemed() bool {
	return e.Status == GiftStatusSelected || e.Status == GiftStatusApplied
}

// CustomerName joins the denormalized name parts.
func (e *GiftEligibility) CustomerName() string {
	switch {
	case e.FirstName != "" && e.LastName != "":
		return e.FirstName + " " + e.LastName
	case e.FirstName != "":
		return e.FirstName
	default:
		return e.LastName
	}
}

// GenerateGiftToken returns a 256-bit random token as fixed-length hex.
func GenerateGiftToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
