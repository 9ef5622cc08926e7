package gift

import (
	"errors"
	"fmt"
	"time"
)

// Validation failures are typed so controllers can map each to a distinct
// user-facing message. None of them are retried.
var (
	ErrTokenNotFound     = errors.New("gift token not found")
	ErrTokenExpired      = errors.New("gift link has expired")
	ErrAlreadyRedeemed   = errors.New("gift was already redeemed")
	ErrNoSelections      = errors.New("no products selected")
	ErrTooManySelections = errors.New("too many products selected")
	ErrProductNotAllowed = errors.New("product is not eligible as a gift")
	ErrGiftsDisabled     = errors.New("gift program is disabled for this shop")
)

// ConfigurationError means a shop is missing required settings; it blocks that
// shop's cycle step and is surfaced to the operator.
type ConfigurationError struct {
	Shop    string
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("shop %s is missing configuration: %s", e.Shop, e.Missing)
}

// ReconcileResult reports one snapshot replacement run.
type ReconcileResult struct {
	TotalFetched int `json:"total_fetched"`
	TotalSynced  int `json:"total_synced"`
}

// DispatchResult reports one email dispatch run.
type DispatchResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Verification is the answer to a storefront token check.
type Verification struct {
	Valid           bool      `json:"valid"`
	CustomerName    string    `json:"customer_name,omitempty"`
	MaxGiftProducts int       `json:"max_gift_products,omitempty"`
	AllowedProducts []string  `json:"allowed_products,omitempty"`
	ExpiresAt       time.Time `json:"expires_at,omitempty"`
}

// SelectionInput is one product the customer picked.
type SelectionInput struct {
	VariantID    string `json:"variant_id"`
	ProductTitle string `json:"product_title"`
	Quantity     int    `json:"quantity"`
}

// ProductOutcome is the per-product result of applying gifts upstream.
type ProductOutcome struct {
	VariantID string `json:"variant_id"`
	Applied   bool   `json:"applied"`
	Error     string `json:"error,omitempty"`
}

// RedemptionResult is returned to the storefront. Partial means at least one
// product was applied upstream and at least one failed; the customer keeps
// what was applied and must not re-select.
type RedemptionResult struct {
	Success  bool             `json:"success"`
	Partial  bool             `json:"partial,omitempty"`
	Message  string           `json:"message"`
	Outcomes []ProductOutcome `json:"outcomes,omitempty"`
}
