package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultGraphBaseURL is the Meta Graph API endpoint.
const DefaultGraphBaseURL = "https://graph.facebook.com/v20.0"

// Sender delivers outbound messages to an identity.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// SenderConfig configures a GraphSender.
type SenderConfig struct {
	// BaseURL overrides the Graph API endpoint, mainly for tests.
	BaseURL string

	// PhoneNumberID is the sending business number.
	PhoneNumberID string

	// AccessToken is the Graph API bearer token.
	AccessToken string

	Timeout time.Duration
}

// GraphSender sends messages through the WhatsApp Cloud API.
type GraphSender struct {
	cfg    SenderConfig
	client *http.Client
}

// NewGraphSender creates a GraphSender.
func NewGraphSender(cfg SenderConfig) (*GraphSender, error) {
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("phone number id is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &GraphSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type outboundText struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             Text   `json:"text"`
}

// SendText delivers one text message.
func (s *GraphSender) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(outboundText{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             Text{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.cfg.BaseURL, s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph api returned %d: %s", resp.StatusCode, string(detail))
	}

	log.Debug().Str("to", to).Msg("Outbound message delivered")
	return nil
}
