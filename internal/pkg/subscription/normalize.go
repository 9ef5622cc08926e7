package subscription

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The upstream has shipped at least three listing envelopes over time:
// a paginated object with a content array, a custom-keyed array, and a bare
// array. All of them funnel through normalizePage so nothing past this file
// ever sees the union.
func normalizePage(body []byte, page, pageSize int) (*ContractPage, error) {
	type pagedEnvelope struct {
		Content       []json.RawMessage `json:"content"`
		TotalElements *int              `json:"totalElements"`
		TotalPages    *int              `json:"totalPages"`
		Last          *bool             `json:"last"`
	}
	type keyedEnvelope struct {
		Subscriptions []json.RawMessage `json:"subscriptions"`
		Total         *int              `json:"total"`
		HasMore       *bool             `json:"has_more"`
	}

	var paged pagedEnvelope
	if err := json.Unmarshal(body, &paged); err == nil && paged.Content != nil {
		records, err := decodeContracts(paged.Content)
		if err != nil {
			return nil, err
		}
		total := len(records)
		if paged.TotalElements != nil {
			total = *paged.TotalElements
		}
		hasMore := len(records) == pageSize
		if paged.Last != nil {
			hasMore = !*paged.Last
		} else if paged.TotalPages != nil {
			hasMore = page+1 < *paged.TotalPages
		}
		return &ContractPage{Records: records, TotalCount: total, HasMore: hasMore}, nil
	}

	var keyed keyedEnvelope
	if err := json.Unmarshal(body, &keyed); err == nil && keyed.Subscriptions != nil {
		records, err := decodeContracts(keyed.Subscriptions)
		if err != nil {
			return nil, err
		}
		total := len(records)
		if keyed.Total != nil {
			total = *keyed.Total
		}
		hasMore := len(records) == pageSize
		if keyed.HasMore != nil {
			hasMore = *keyed.HasMore
		}
		return &ContractPage{Records: records, TotalCount: total, HasMore: hasMore}, nil
	}

	var bare []json.RawMessage
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, &ParseError{Cause: err}
	}
	records, err := decodeContracts(bare)
	if err != nil {
		return nil, err
	}
	// A bare array carries no paging metadata; a full page means "maybe more".
	return &ContractPage{
		Records:    records,
		TotalCount: len(records),
		HasMore:    len(records) == pageSize,
	}, nil
}

func decodeContracts(raws []json.RawMessage) ([]Contract, error) {
	out := make([]Contract, 0, len(raws))
	for _, raw := range raws {
		c, err := decodeContract(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// decodeContract tolerates the field variants seen across upstream versions:
// flat vs nested customer, several names for the delivered-order count, ids
// delivered as numbers or strings.
func decodeContract(raw json.RawMessage) (Contract, error) {
	var rec struct {
		ID             flexID `json:"id"`
		SubscriptionID flexID `json:"subscription_id"`
		InternalID     flexID `json:"internal_id"`
		Status         string `json:"status"`

		CustomerID flexID `json:"customer_id"`
		Email      string `json:"email"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Customer   *struct {
			ID        flexID `json:"id"`
			Email     string `json:"email"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"customer"`

		DeliveredOrders     *int `json:"delivered_orders"`
		CompletedOrderCount *int `json:"completed_order_count"`
		OrderCount          *int `json:"order_count"`

		LastOrderID      flexID `json:"last_order_id"`
		LastOrderDate    string `json:"last_order_date"`
		NextBillingDate  string `json:"next_billing_date"`
		BillingAttemptID flexID `json:"billing_attempt_id"`
		Items            []struct {
			VariantHandle string `json:"variant_handle"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Contract{}, &ParseError{Cause: err}
	}

	c := Contract{
		ID:               rec.ID.String(),
		InternalID:       rec.InternalID.String(),
		Status:           strings.ToLower(strings.TrimSpace(rec.Status)),
		CustomerID:       rec.CustomerID.String(),
		Email:            strings.TrimSpace(rec.Email),
		FirstName:        strings.TrimSpace(rec.FirstName),
		LastName:         strings.TrimSpace(rec.LastName),
		LastOrderID:      rec.LastOrderID.String(),
		BillingAttemptID: rec.BillingAttemptID.String(),
		Raw:              append(json.RawMessage(nil), raw...),
	}
	if c.ID == "" {
		c.ID = rec.SubscriptionID.String()
	}
	if rec.Customer != nil {
		if c.CustomerID == "" {
			c.CustomerID = rec.Customer.ID.String()
		}
		if c.Email == "" {
			c.Email = strings.TrimSpace(rec.Customer.Email)
		}
		if c.FirstName == "" {
			c.FirstName = strings.TrimSpace(rec.Customer.FirstName)
		}
		if c.LastName == "" {
			c.LastName = strings.TrimSpace(rec.Customer.LastName)
		}
	}

	switch {
	case rec.DeliveredOrders != nil:
		c.DeliveredOrders = *rec.DeliveredOrders
	case rec.CompletedOrderCount != nil:
		c.DeliveredOrders = *rec.CompletedOrderCount
	case rec.OrderCount != nil:
		c.DeliveredOrders = *rec.OrderCount
	}

	c.LastOrderDate = parseUpstreamTime(rec.LastOrderDate)
	c.NextBillingDate = parseUpstreamTime(rec.NextBillingDate)

	for _, item := range rec.Items {
		if h := strings.TrimSpace(item.VariantHandle); h != "" {
			c.VariantHandles = append(c.VariantHandles, h)
		}
	}
	return c, nil
}

// flexID accepts upstream identifiers sent as either JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*f = ""
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

func parseUpstreamTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	// Epoch seconds show up in some webhook-era payloads.
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		t := time.Unix(sec, 0).UTC()
		return &t
	}
	return nil
}
