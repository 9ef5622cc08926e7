package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// applyCandidate is one parameter combination to try against the gift-line
// endpoint. The listing endpoint does not reliably return the queued
// billing-attempt id, so the write is attempted over a small ordered set of
// {contract ref, billing attempt, variant ref} combinations.
type applyCandidate struct {
	contractRef string
	attemptID   string
	variantKey  string // "variant_id" or "variant_handle"
	variantRef  string
}

// ApplyGiftLine attaches a zero-price one-time product line to the contract's
// next scheduled order. An empty-array response is treated as an idempotent
// success (the line is already present upstream).
func (c *Client) ApplyGiftLine(ctx context.Context, contractRef, variantID string, quantity int) (*AppliedLine, error) {
	if quantity <= 0 {
		quantity = 1
	}

	contract, err := c.resolveForGift(ctx, contractRef)
	if err != nil {
		return nil, err
	}
	if contract.Status != "" && contract.Status != "active" {
		return nil, fmt.Errorf("%w: status=%s", ErrContractInactive, contract.Status)
	}
	if contract.NextBillingDate == nil && contract.BillingAttemptID == "" {
		return nil, ErrNoUpcomingOrder
	}

	candidates := buildApplyCandidates(contract, variantID)
	var failures []error
	for _, cand := range candidates {
		line, err := c.postGiftLine(ctx, cand, quantity)
		if err != nil {
			failures = append(failures, fmt.Errorf("contract=%s attempt=%q %s=%s: %w",
				cand.contractRef, cand.attemptID, cand.variantKey, cand.variantRef, err))
			continue
		}
		return line, nil
	}
	return nil, mostSpecific(failures)
}

// resolveForGift locates a contract by external or internal identifier,
// sweeping the paginated detail listing because no direct lookup endpoint
// exists for external ids.
func (c *Client) resolveForGift(ctx context.Context, contractRef string) (*Contract, error) {
	ref := strings.TrimSpace(contractRef)
	if ref == "" {
		return nil, ErrContractNotFound
	}
	for page := 0; page < maxPages; page++ {
		p, err := c.FetchContractsPage(ctx, page, defaultPageSize, "")
		if err != nil {
			return nil, err
		}
		for i := range p.Records {
			if p.Records[i].ID == ref || p.Records[i].InternalID == ref {
				found := p.Records[i]
				return &found, nil
			}
		}
		if !p.HasMore || len(p.Records) == 0 {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrContractNotFound, ref)
}

func buildApplyCandidates(contract *Contract, variantID string) []applyCandidate {
	contractRefs := make([]string, 0, 2)
	if contract.InternalID != "" {
		contractRefs = append(contractRefs, contract.InternalID)
	}
	if contract.ID != "" && contract.ID != contract.InternalID {
		contractRefs = append(contractRefs, contract.ID)
	}

	attempts := []string{contract.BillingAttemptID}
	if contract.BillingAttemptID != "" {
		// Fall back to "let the upstream pick the queued attempt".
		attempts = append(attempts, "")
	}

	variants := []applyCandidate{{variantKey: "variant_id", variantRef: variantID}}
	for _, h := range contract.VariantHandles {
		variants = append(variants, applyCandidate{variantKey: "variant_handle", variantRef: h})
	}

	var out []applyCandidate
	for _, cr := range contractRefs {
		for _, at := range attempts {
			for _, v := range variants {
				out = append(out, applyCandidate{
					contractRef: cr,
					attemptID:   at,
					variantKey:  v.variantKey,
					variantRef:  v.variantRef,
				})
			}
		}
	}
	return out
}

func (c *Client) postGiftLine(ctx context.Context, cand applyCandidate, quantity int) (*AppliedLine, error) {
	payload := map[string]any{
		cand.variantKey: cand.variantRef,
		"quantity":      quantity,
		"price":         0,
		"one_time":      true,
	}
	if cand.attemptID != "" {
		payload["billing_attempt_id"] = cand.attemptID
	}

	body, err := c.do(ctx, http.MethodPost,
		"/subscriptions/"+url.PathEscape(cand.contractRef)+"/one-time-products", nil, payload)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "[]" || trimmed == "{}" {
		// Empty structured response: the product is already on the order.
		return &AppliedLine{ContractID: cand.contractRef, AlreadyPresent: true}, nil
	}

	var resp struct {
		ID     flexID `json:"id"`
		LineID flexID `json:"line_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ParseError{Cause: err}
	}
	lineID := resp.LineID.String()
	if lineID == "" {
		lineID = resp.ID.String()
	}
	if lineID == "" {
		return nil, &ParseError{Cause: errors.New("gift line response missing line id")}
	}
	return &AppliedLine{LineID: lineID, ContractID: cand.contractRef}, nil
}

// mostSpecific picks the error most useful to surface: a domain error first,
// then a 4xx upstream rejection, then whatever failed last.
func mostSpecific(failures []error) error {
	if len(failures) == 0 {
		return ErrNoUpcomingOrder
	}
	for _, err := range failures {
		if errors.Is(err, ErrContractNotFound) || errors.Is(err, ErrContractInactive) || errors.Is(err, ErrNoUpcomingOrder) {
			return err
		}
	}
	for _, err := range failures {
		var he *HTTPError
		if errors.As(err, &he) && he.Status >= 400 && he.Status < 500 {
			return err
		}
	}
	return failures[len(failures)-1]
}
