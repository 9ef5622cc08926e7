package subscription

import (
	"errors"
	"fmt"
)

// ErrContractNotFound is returned when a contract cannot be located after a
// full pagination sweep. It drives a different user-facing message than a
// transport failure ("verify the subscription exists and re-sync").
var ErrContractNotFound = errors.New("subscription contract not found")

// ErrContractInactive is returned when a gift line is applied to a contract
// that is not in an active state upstream.
var ErrContractInactive = errors.New("subscription contract is not active")

// ErrNoUpcomingOrder is returned when the contract has no scheduled billing
// attempt to attach a gift line to.
var ErrNoUpcomingOrder = errors.New("subscription has no upcoming order")

// HTTPError carries a non-2xx upstream status and response body.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream request failed: status=%d body=%s", e.Status, e.Body)
}

// ParseError wraps a JSON decode failure of an upstream response.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream response parse failed: %v", e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
