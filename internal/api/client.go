package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/assay.report/internal/extract"
	"github.com/banshee-data/assay.report/internal/httputil"
)

// Client calls a running worker's HTTP API.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient returns a Client for the worker at baseURL. A nil hc uses
// httputil.NewStandardClient(nil).
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	var out HealthResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Extract posts content to /v1/extract. A failed extraction is returned as
// a Result with Success false, not as an error.
func (c *Client) Extract(ctx context.Context, schema, content string) (extract.Result, error) {
	u := c.baseURL + "/v1/extract?schema=" + url.QueryEscape(schema)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(content))
	if err != nil {
		return extract.Result{}, err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	var out extract.Result
	if err := c.do(req, &out); err != nil {
		return extract.Result{}, err
	}
	return out, nil
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", req.Method, req.URL.Path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
