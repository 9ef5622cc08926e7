package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultGiftExpiryDays  = 14
	DefaultEmailDelayDays  = 0
	DefaultMaxGiftProducts = 1
)

// GiftSetting is the per-shop gift program configuration edited from the
// admin. Trigger thresholds and the product allow-list are stored as CSV the
// way the admin form submits them.
type GiftSetting struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Shop               string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"shop" validate:"required,min=4,max=191"`
	Enabled            bool      `gorm:"not null;default:false" json:"enabled"`
	TriggerOrderCounts string    `gorm:"type:varchar(255);not null;default:''" json:"trigger_order_counts" validate:"omitempty,max=255"`
	MaxGiftProducts    int       `gorm:"not null;default:1" json:"max_gift_products" validate:"min=1,max=50"`
	GiftExpiryDays     int       `gorm:"not null;default:14" json:"gift_expiry_days" validate:"min=1,max=365"`
	EmailDelayDays     int       `gorm:"not null;default:0" json:"email_delay_days" validate:"min=0,max=365"`
	EligibleProductIDs string    `gorm:"type:text" json:"eligible_product_ids"`
	EmailSubject       string    `gorm:"type:varchar(255)" json:"email_subject" validate:"omitempty,max=255"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ParsedTriggers returns the configured thresholds as a sorted, de-duplicated
// slice. Malformed or non-positive entries are dropped.
func (g *GiftSetting) ParsedTriggers() []int {
	parts := strings.Split(g.TriggerOrderCounts, ",")
	seen := make(map[int]struct{}, len(parts))
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// ParsedEligibleProducts returns the allow-listed product ids, empty meaning
// "any product".
func (g *GiftSetting) ParsedEligibleProducts() []string {
	if strings.TrimSpace(g.EligibleProductIDs) == "" {
		return nil
	}
	parts := strings.Split(g.EligibleProductIDs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if id := strings.TrimSpace(p); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ProductAllowed reports whether a variant may be chosen under the allow-list.
func (g *GiftSetting) ProductAllowed(variantID string) bool {
	allowed := g.ParsedEligibleProducts()
	if len(allowed) == 0 {
		return true
	}
	for _, id := range allowed {
		if id == variantID {
			return true
		}
	}
	return false
}

// EmailSubjectOrDefault falls back to a generic subject when unset.
func (g *GiftSetting) EmailSubjectOrDefault() string {
	if s := strings.TrimSpace(g.EmailSubject); s != "" {
		return s
	}
	return "You earned a free gift on your subscription!"
}
