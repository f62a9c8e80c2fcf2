package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/permitradar/permitradar/internal/pkg/env"
)

// Client talks to the scraper backend that ingests permit data and serves
// the public map feed. The portal proxies map data through it so the
// backend never has to be exposed directly.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: env.GetEnv("BACKEND_URL", "http://localhost:5002"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetMapLeads fetches the public map feed for a city. The payload is passed
// through as-is; the portal does not reinterpret it.
func (c *Client) GetMapLeads(ctx context.Context, city string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/api/map-leads?city=%s", c.BaseURL, url.QueryEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("backend response read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(body))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("backend returned invalid JSON for city %s", city)
	}
	return body, nil
}
