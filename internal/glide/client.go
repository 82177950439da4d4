package glide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL        = "https://api.glideapp.io/api/function/queryTables"
	defaultRequestTimeout = 30 * time.Second
)

// RowFetcher is the read surface the sync orchestrator depends on. The
// concrete Client satisfies it; tests substitute fakes.
type RowFetcher interface {
	// Probe performs a minimal read-only connectivity check for an app.
	Probe(ctx context.Context, creds Credentials) error
	// FetchRows returns up to limit rows from a Glide table.
	FetchRows(ctx context.Context, creds Credentials, tableName string, limit int) ([]map[string]any, error)
}

// Credentials identify one Glide app instance for API calls.
type Credentials struct {
	AppID  string
	APIKey string
}

// Client talks to the Glide big-tables API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a Glide API client. Empty baseURL and zero timeout fall
// back to defaults.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// queryRequest is the JSON body for the queryTables endpoint.
type queryRequest struct {
	AppID   string       `json:"appID"`
	Queries []tableQuery `json:"queries"`
}

// tableQuery selects one table and bounds the page size.
type tableQuery struct {
	TableName string `json:"tableName,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// tableResult is one element of the queryTables response array.
type tableResult struct {
	Rows []map[string]any `json:"rows"`
	Next string           `json:"next,omitempty"`
}

// Probe issues a queryTables call with no queries, which validates the app id
// and API key without transferring table data.
func (c *Client) Probe(ctx context.Context, creds Credentials) error {
	_, err := c.query(ctx, creds, nil)
	return err
}

// FetchRows fetches a bounded page of rows from one table. The full table is
// never pulled in a single run.
func (c *Client) FetchRows(ctx context.Context, creds Credentials, tableName string, limit int) ([]map[string]any, error) {
	tableName = strings.TrimSpace(tableName)
	if tableName == "" {
		return nil, fmt.Errorf("glide: empty table name")
	}
	if limit <= 0 {
		limit = 1000
	}

	results, err := c.query(ctx, creds, []tableQuery{{TableName: tableName, Limit: limit}})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("glide: no data returned for table %s", tableName)
	}
	if results[0].Rows == nil {
		return nil, fmt.Errorf("glide: response for table %s has no rows field", tableName)
	}
	return results[0].Rows, nil
}

// TableColumns derives the column identifiers of a table from a one-row
// sample. Glide has no schema endpoint on this API surface.
func (c *Client) TableColumns(ctx context.Context, creds Credentials, tableName string) ([]Column, error) {
	rows, err := c.FetchRows(ctx, creds, tableName, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := make([]Column, 0, len(rows[0]))
	for id, value := range rows[0] {
		if id == RowIDField {
			continue
		}
		columns = append(columns, Column{ID: id, Name: id, Type: guessType(value)})
	}
	return columns, nil
}

// query posts a queryTables request and decodes the response array.
func (c *Client) query(ctx context.Context, creds Credentials, queries []tableQuery) ([]tableResult, error) {
	if strings.TrimSpace(creds.AppID) == "" {
		return nil, fmt.Errorf("glide: missing app id")
	}
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, fmt.Errorf("glide: missing api key")
	}
	if queries == nil {
		queries = []tableQuery{}
	}

	body, errMarshal := json.Marshal(queryRequest{AppID: creds.AppID, Queries: queries})
	if errMarshal != nil {
		return nil, fmt.Errorf("glide: marshal request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("glide: build request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("glide: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("glide: api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var results []tableResult
	if errDecode := json.NewDecoder(resp.Body).Decode(&results); errDecode != nil {
		return nil, fmt.Errorf("glide: decode response: %w", errDecode)
	}
	return results, nil
}
