// Package records is the HTTP client for the platform's pet, consultation,
// and vaccine record API. Persistence lives behind that API; this package
// is plain I/O glue consumed by the tool layer.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config configures the records API client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the records API. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a records API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("records API base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// RegisterPet creates a pet record for an owner.
func (c *Client) RegisterPet(ctx context.Context, identity string, pet Pet) (Pet, error) {
	payload := struct {
		Owner string `json:"owner"`
		Pet
	}{Owner: identity, Pet: pet}

	var created Pet
	if err := c.do(ctx, http.MethodPost, "/pets", payload, &created); err != nil {
		return Pet{}, fmt.Errorf("failed to register pet: %w", err)
	}
	return created, nil
}

// ListPets returns the pets registered to an owner.
func (c *Client) ListPets(ctx context.Context, identity string) ([]Pet, error) {
	path := "/pets?owner=" + url.QueryEscape(identity)

	var pets []Pet
	if err := c.do(ctx, http.MethodGet, path, nil, &pets); err != nil {
		return nil, fmt.Errorf("failed to list pets: %w", err)
	}
	return pets, nil
}

// RecordConsultation creates a consultation record.
func (c *Client) RecordConsultation(ctx context.Context, identity string, consultation Consultation) (Consultation, error) {
	payload := struct {
		Owner string `json:"owner"`
		Consultation
	}{Owner: identity, Consultation: consultation}

	var created Consultation
	if err := c.do(ctx, http.MethodPost, "/consultations", payload, &created); err != nil {
		return Consultation{}, fmt.Errorf("failed to record consultation: %w", err)
	}
	return created, nil
}

// ConsultationHistory returns the consultations for a pet, newest first.
func (c *Client) ConsultationHistory(ctx context.Context, petID string) ([]Consultation, error) {
	path := fmt.Sprintf("/pets/%s/consultations", url.PathEscape(petID))

	var consultations []Consultation
	if err := c.do(ctx, http.MethodGet, path, nil, &consultations); err != nil {
		return nil, fmt.Errorf("failed to load consultation history: %w", err)
	}
	return consultations, nil
}

// RecordVaccine creates a vaccine record.
func (c *Client) RecordVaccine(ctx context.Context, identity string, vaccine Vaccine) (Vaccine, error) {
	payload := struct {
		Owner string `json:"owner"`
		Vaccine
	}{Owner: identity, Vaccine: vaccine}

	var created Vaccine
	if err := c.do(ctx, http.MethodPost, "/vaccines", payload, &created); err != nil {
		return Vaccine{}, fmt.Errorf("failed to record vaccine: %w", err)
	}
	return created, nil
}

// VaccineCard returns the vaccines applied to a pet.
func (c *Client) VaccineCard(ctx context.Context, petID string) ([]Vaccine, error) {
	path := fmt.Sprintf("/pets/%s/vaccines", url.PathEscape(petID))

	var vaccines []Vaccine
	if err := c.do(ctx, http.MethodGet, path, nil, &vaccines); err != nil {
		return nil, fmt.Errorf("failed to load vaccine card: %w", err)
	}
	return vaccines, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("records API returned %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
