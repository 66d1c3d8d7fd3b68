package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is a DAI transfer as returned by the dashboard API.
type Transfer struct {
	TxHash           string          `json:"tx_hash"`
	LogIndex         uint            `json:"log_index"`
	BlockNumber      uint64          `json:"block_number"`
	Timestamp        time.Time       `json:"timestamp"`
	TimestampDisplay string          `json:"timestamp_display"`
	Sender           string          `json:"sender"`
	Recipient        string          `json:"recipient"`
	Value            decimal.Decimal `json:"value"`
	Source           string          `json:"source"`
	ExplorerURL      string          `json:"explorer_url"`
}

// TransferList is the dashboard's current view of the feed.
type TransferList struct {
	// Loading is true until the server has loaded the recent block window.
	Loading   bool        `json:"loading"`
	Count     int         `json:"count"`
	MaxSize   int         `json:"max_size"`
	Transfers []*Transfer `json:"transfers"`
}

// ListParams filters and orders a transfer listing. Zero values are omitted.
type ListParams struct {
	Sender    string
	Recipient string
	Sort      string // "timestamp" or "value"
	Order     string // "asc" or "desc"
}

// Health is the server's health report.
type Health struct {
	Status      string `json:"status"`
	Loaded      bool   `json:"loaded"`
	Transfers   int    `json:"transfers"`
	Subscribers int    `json:"subscribers"`
}

// Client is the HTTP client for the daiwatch dashboard API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new dashboard API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListTransfers returns the server's transfer feed, filtered and optionally sorted.
// Sorting here is a view; it does not change the server's order.
func (c *Client) ListTransfers(ctx context.Context, params ListParams) (*TransferList, error) {
	query := url.Values{}
	if params.Sender != "" {
		query.Set("sender", params.Sender)
	}
	if params.Recipient != "" {
		query.Set("recipient", params.Recipient)
	}
	if params.Sort != "" {
		query.Set("sort", params.Sort)
	}
	if params.Order != "" {
		query.Set("order", params.Order)
	}

	u := c.baseURL + "/api/v1/transfers"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var list TransferList
	if err := c.do(req, &list); err != nil {
		return nil, err
	}

	c.logger.Debug("listed transfers", "count", list.Count, "loading", list.Loading)
	return &list, nil
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var h Health
	if err := c.do(req, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
