// Package clinics is the search-provider glue for finding nearby
// veterinary clinics. The provider is optional: when no API key is
// configured the corresponding tool is never registered.
package clinics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Clinic is one search hit.
type Clinic struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Phone   string  `json:"phone,omitempty"`
	Rating  float64 `json:"rating,omitempty"`
}

// Config configures the clinic search client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client queries the clinic search provider. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a clinic search client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("clinic search base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("clinic search API key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// FindClinics searches for veterinary clinics matching a free-text
// query (typically a neighbourhood or city).
func (c *Client) FindClinics(ctx context.Context, query string, limit int) ([]Clinic, error) {
	if limit <= 0 {
		limit = 5
	}

	endpoint := c.baseURL + "/search?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clinic search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("clinic search returned %d: %s", resp.StatusCode, string(data))
	}

	var payload struct {
		Results []Clinic `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return payload.Results, nil
}
