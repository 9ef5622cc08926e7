package models

import "time"

const (
	ContractStatusActive    = "active"
	ContractStatusPaused    = "paused"
	ContractStatusCancelled = "cancelled"
)

// SubscriberSnapshot mirrors one upstream subscription contract per shop. The
// whole set for a shop is replaced on every sync; it is a cache, not a ledger.
type SubscriberSnapshot struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Shop            string     `gorm:"type:varchar(191);not null;index:ux_subscriber_snapshots_shop_contract,unique,priority:1" json:"shop"`
	ContractID      string     `gorm:"type:varchar(191);not null;index:ux_subscriber_snapshots_shop_contract,unique,priority:2" json:"contract_id"`
	InternalID      string     `gorm:"type:varchar(191);index" json:"internal_id"`
	CustomerID      string     `gorm:"type:varchar(191);index" json:"customer_id"`
	Email           string     `gorm:"type:varchar(200)" json:"email"`
	FirstName       string     `gorm:"type:varchar(150)" json:"first_name"`
	LastName        string     `gorm:"type:varchar(150)" json:"last_name"`
	Status          string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	DeliveredOrders int        `gorm:"not null;default:0" json:"delivered_orders"`
	LastOrderID     string     `gorm:"type:varchar(191)" json:"last_order_id"`
	LastOrderDate   *time.Time `gorm:"type:timestamp;default:null" json:"last_order_date,omitempty"`
	NextBillingDate *time.Time `gorm:"type:timestamp;default:null" json:"next_billing_date,omitempty"`
	RawPayloadJSON  string     `gorm:"type:longtext" json:"-"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomerName joins the name parts the way the upstream delivers them.
func (s *SubscriberSnapshot) CustomerName() string {
	switch {
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	default:
		return s.LastName
	}
}
