package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FelixBrandt/GiftMile/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.sealsubscriptions.example/merchant/v1"

	// Hard ceiling on pagination loops so a misbehaving upstream that keeps
	// reporting more pages can never spin us forever.
	maxPages = 50

	defaultPageSize = 100
)

// Client talks to the third-party subscription platform for one shop.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a client for a shop's stored credentials. An empty base
// URL falls back to the env-configured platform default.
func NewClient(apiKey, baseURL string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = strings.TrimRight(env.GetEnv("UPSTREAM_API_BASE_URL", defaultAPIBaseURL), "/")
	}
	return &Client{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: base,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchContractsPage fetches one page of subscription contracts and
// normalizes whichever envelope variant the upstream answers with.
func (c *Client) FetchContractsPage(ctx context.Context, page, pageSize int, statusFilter string) (*ContractPage, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	q := url.Values{}
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("size", fmt.Sprintf("%d", pageSize))
	if s := strings.TrimSpace(statusFilter); s != "" {
		q.Set("status", s)
	}

	body, err := c.do(ctx, http.MethodGet, "/subscriptions", q, nil)
	if err != nil {
		return nil, err
	}
	return normalizePage(body, page, pageSize)
}

// FetchAllContracts pages through the full listing, stopping when the
// upstream reports no further pages or the page ceiling is hit.
func (c *Client) FetchAllContracts(ctx context.Context, statusFilter string) ([]Contract, error) {
	var all []Contract
	for page := 0; page < maxPages; page++ {
		p, err := c.FetchContractsPage(ctx, page, defaultPageSize, statusFilter)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Records...)
		if !p.HasMore || len(p.Records) == 0 {
			break
		}
	}
	return all, nil
}

// FetchOrderHistory returns the completed-order count for a customer. Used by
// the order-paid webhook path, which needs the current count rather than the
// cached snapshot.
func (c *Client) FetchOrderHistory(ctx context.Context, customerID string) (*OrderHistory, error) {
	q := url.Values{}
	q.Set("customer_id", strings.TrimSpace(customerID))
	q.Set("status", "completed")

	body, err := c.do(ctx, http.MethodGet, "/orders", q, nil)
	if err != nil {
		return nil, err
	}

	// Either {"orders":[...],"total":N} or a bare array.
	var envelope struct {
		Orders []json.RawMessage `json:"orders"`
		Total  *int              `json:"total"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && (envelope.Orders != nil || envelope.Total != nil) {
		count := len(envelope.Orders)
		if envelope.Total != nil {
			count = *envelope.Total
		}
		return &OrderHistory{CustomerID: customerID, CompletedOrders: count}, nil
	}
	var bare []json.RawMessage
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, &ParseError{Cause: err}
	}
	return &OrderHistory{CustomerID: customerID, CompletedOrders: len(bare)}, nil
}

// UpdateContractStatus writes a new status to the upstream contract.
func (c *Client) UpdateContractStatus(ctx context.Context, contractID, status string) error {
	payload := map[string]string{"status": strings.TrimSpace(status)}
	_, err := c.do(ctx, http.MethodPut, "/subscriptions/"+url.PathEscape(contractID)+"/status", nil, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
