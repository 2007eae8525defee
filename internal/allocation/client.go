// Package allocation looks up where an equipment item is currently deployed.
package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrEmptyQuery is returned when neither an RG nor a tag was given.
var ErrEmptyQuery = errors.New("rg_code or tag_code is required")

// Record links an inventory item to the client site holding it.
type Record struct {
	InventoryItemID  int    `json:"inventory_item_id"`
	RGCode           string `json:"rg_code"`
	TagCode          string `json:"tag_code"`
	ClientCode       string `json:"client_code"`
	NomeFantasia     string `json:"nome_fantasia"`
	Setor            string `json:"setor"`
	ModelName        string `json:"model_name"`
	InvoiceIssueDate string `json:"invoice_issue_date"`
}

// Result is the allocation API response. Zero items means not found.
type Result struct {
	RGCode  string   `json:"rg_code"`
	TagCode string   `json:"tag_code"`
	Total   int      `json:"total"`
	Items   []Record `json:"items"`
}

// LookupError is a non-2xx answer from the allocation API.
type LookupError struct {
	Status int
	Detail string
}

func (e *LookupError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("allocation lookup failed (status %d)", e.Status)
	}
	return fmt.Sprintf("allocation lookup failed (status %d): %s", e.Status, e.Detail)
}

// Looker queries allocations by code.
type Looker interface {
	Lookup(ctx context.Context, rgCode, tagCode string) (*Result, error)
}

// Client talks to the allocation lookup endpoint.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the API at baseURL. token is sent as a
// bearer token when set.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Lookup implements Looker.
func (c *Client) Lookup(ctx context.Context, rgCode, tagCode string) (*Result, error) {
	rgCode = strings.TrimSpace(rgCode)
	tagCode = strings.TrimSpace(tagCode)
	if rgCode == "" && tagCode == "" {
		return nil, ErrEmptyQuery
	}

	q := url.Values{}
	q.Set("rg_code", rgCode)
	q.Set("tag_code", tagCode)
	endpoint := fmt.Sprintf("%s/equipments/allocations/lookup?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling allocation API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &LookupError{Status: resp.StatusCode, Detail: errorDetail(body)}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if result.Items == nil {
		result.Items = []Record{}
	}
	return &result, nil
}

// errorDetail pulls the "detail" message out of an API error body. Validation
// errors carry a list instead of a string and are returned as raw JSON.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}
