package subscription

import (
	"encoding/json"
	"time"
)

// Contract is the normalized view of one upstream subscription contract.
// Whatever envelope or field variant the upstream returns, callers only ever
// see this shape.
type Contract struct {
	ID               string          `json:"id"`
	InternalID       string          `json:"internal_id"`
	Status           string          `json:"status"`
	CustomerID       string          `json:"customer_id"`
	Email            string          `json:"email"`
	FirstName        string          `json:"first_name"`
	LastName         string          `json:"last_name"`
	DeliveredOrders  int             `json:"delivered_orders"`
	LastOrderID      string          `json:"last_order_id"`
	LastOrderDate    *time.Time      `json:"last_order_date,omitempty"`
	NextBillingDate  *time.Time      `json:"next_billing_date,omitempty"`
	BillingAttemptID string          `json:"billing_attempt_id,omitempty"`
	VariantHandles   []string        `json:"-"`
	Raw              json.RawMessage `json:"-"`
}

// ContractPage is one normalized page of contract listings.
type ContractPage struct {
	Records    []Contract
	TotalCount int
	HasMore    bool
}

// AppliedLine is the upstream acknowledgement of a gift line write.
type AppliedLine struct {
	LineID         string
	ContractID     string
	AlreadyPresent bool
}

// OrderHistory summarizes a customer's completed orders upstream.
type OrderHistory struct {
	CustomerID      string
	CompletedOrders int
}
