// Package client talks to the receipt-capture HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/receipt-capture/internal/aicall"
	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/scanning"
)

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client calls the API
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for baseURL, e.g. http://localhost:3001
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks that the server is up
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return err
	}
	if !out.OK {
		return errors.New("server reported unhealthy")
	}
	return nil
}

// Extract asks the server to extract fields from a payload
func (c *Client) Extract(ctx context.Context, p capture.Payload) (*scanning.Result, error) {
	var res scanning.Result
	if err := c.do(ctx, http.MethodPost, "/api/extract", p, &res); err != nil {
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}
	return &res, nil
}

// CreateReceipt stores a receipt and returns its id
func (c *Client) CreateReceipt(ctx context.Context, d receipt.Draft) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/receipts", d, &out); err != nil {
		return 0, fmt.Errorf("creating receipt: %w", err)
	}
	return out.ID, nil
}

// Save creates the receipt; the API does not take the source document
func (c *Client) Save(ctx context.Context, d receipt.Draft, _ *capture.Payload) (int64, error) {
	return c.CreateReceipt(ctx, d)
}

// ListReceipts fetches one page of receipts
func (c *Client) ListReceipts(ctx context.Context, query url.Values) (*receipt.List, error) {
	var out receipt.List
	if err := c.do(ctx, http.MethodGet, "/api/receipts?"+query.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return &out, nil
}

// ExportReceipts streams the CSV, or XLSX when xlsx is set, to w
func (c *Client) ExportReceipts(ctx context.Context, query url.Values, xlsx bool, w io.Writer) error {
	path := "/api/receipts/export"
	if xlsx {
		path += ".xlsx"
	}
	resp, err := c.send(ctx, http.MethodGet, path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("exporting receipts: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}

// DeleteReceipt removes a receipt
func (c *Client) DeleteReceipt(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, "/api/receipts/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	return nil
}

// ListAICalls fetches one page of the AI call log
func (c *Client) ListAICalls(ctx context.Context, page, pageSize int) (*aicall.List, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var out aicall.List
	if err := c.do(ctx, http.MethodGet, "/api/ai-calls?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("listing ai calls: %w", err)
	}
	return &out, nil
}

// DeleteAICall removes an AI call record
func (c *Client) DeleteAICall(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, "/api/ai-calls/"+strconv.FormatInt(id, 10), nil, nil); err != nil {
		return fmt.Errorf("deleting ai call: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into *APIError
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); err == nil {
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
	}
	return nil, apiErr
}
