package asbuiltsdk

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
)

// Client is a minimal As-Built HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  30 * time.Second,
	}
}

// PlugRow represents one row of the plug table (partial).
type PlugRow struct {
	Number        int      `json:"plug_number"`
	Top           *float64 `json:"top"`
	Bottom        *float64 `json:"bottom"`
	Type          string   `json:"type"`
	CementClass   string   `json:"cement_class"`
	Sacks         *float64 `json:"sacks"`
	HoleSize      *float64 `json:"hole_size"`
	TOC           *float64 `json:"toc"`
	MeasuredTOC   *float64 `json:"measured_toc"`
	CalculatedTOC *float64 `json:"calculated_toc"`
	Variance      *float64 `json:"variance"`
	Remarks       string   `json:"remarks"`
}

// Report represents the as-built record (partial).
type Report struct {
	Header      map[string]string `json:"header"`
	Plugs       []PlugRow         `json:"plugs"`
	Remarks     string            `json:"remarks"`
	DocumentRef string            `json:"document_ref"`
}

type Result struct {
	Report   Report   `json:"report"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
	Failed   bool     `json:"failed"`
}

// Reconstruction is the response to a reconstruction request.
type Reconstruction struct {
	RunID  string `json:"run_id"`
	Saved  bool   `json:"saved"`
	Result Result `json:"result"`
}

// Run represents an archived run.
type Run struct {
	ID           string `json:"id"`
	WellID       string `json:"well_id"`
	DocumentRef  string `json:"document_ref"`
	Failed       bool   `json:"failed"`
	PlugCount    int    `json:"plug_count"`
	WarningCount int    `json:"warning_count"`
	CreatedAt    string `json:"created_at"`
}

type RunDetail struct {
	Run    Run    `json:"run"`
	Result Result `json:"result"`
}

// PaginatedRuns wraps list responses with cursors.
type PaginatedRuns struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health reports the server status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp map[string]string
	err := c.do(ctx, http.MethodGet, c.apiPath("health"), nil, &resp)
	return resp["status"], err
}

// Reconstruct posts a case (baseline, events, document_ref) and returns the result. A
// rejected baseline surfaces as *APIError with Code "baseline_invalid".
func (c *Client) Reconstruct(ctx context.Context, input any, save bool) (Reconstruction, error) {
	endpoint := c.apiPath("reconstructions")
	if save {
		endpoint += "?save=true"
	}
	var resp Reconstruction
	err := c.do(ctx, http.MethodPost, endpoint, input, &resp)
	return resp, err
}

// GetRun fetches an archived run with its result.
func (c *Client) GetRun(ctx context.Context, id string) (RunDetail, error) {
	var resp RunDetail
	err := c.do(ctx, http.MethodGet, c.apiPath("runs/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// RunsPage returns a page of archived runs, newest first.
func (c *Client) RunsPage(ctx context.Context, wellID string, limit int, cursor string) (PaginatedRuns, error) {
	q := url.Values{}
	if wellID != "" {
		q.Set("well_id", wellID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.apiPath("runs")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedRuns
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code, apiErr.Message = envelope.Error.Code, envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) apiPath(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		return strings.TrimLeft(p, "/")
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
