package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/internal/metrics"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/agent"
)

// MessageHandler runs one conversation turn and returns the reply text.
type MessageHandler interface {
	HandleMessage(ctx context.Context, inbound agent.Inbound) (string, error)
}

// Server is the WhatsApp Cloud API webhook server.
type Server struct {
	options     Options
	handler     MessageHandler
	sender      Sender
	rateLimiter *RateLimiter
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	server      *http.Server
	startTime   time.Time

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlight       sync.WaitGroup
}

// NewServer creates a webhook server. The metrics argument may be nil.
func NewServer(options Options, handler MessageHandler, sender Sender, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if options.VerifyToken == "" {
		return nil, fmt.Errorf("verify token is required")
	}

	if options.Port == 0 {
		options.Port = 3001
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = 60
	}
	if options.HandlerTimeout == 0 {
		options.HandlerTimeout = 2 * time.Minute
	}

	return &Server{
		options:     options,
		handler:     handler,
		sender:      sender,
		rateLimiter: NewRateLimiter(options.RateLimitPerMinute),
		metrics:     m,
		logger:      logger,
		startTime:   time.Now(),
	}, nil
}

// Routes returns the HTTP handler for the server, exposed so tests can
// drive it without a listening socket.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleWebhook)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start starts the webhook server and blocks until shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Routes(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting webhook server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start webhook server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server, waiting for in-flight turns.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down webhook server")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight turns completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.rateLimiter.Stop()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown webhook server: %w", err)
		}
	}

	s.logger.Info().Msg("Webhook server stopped")
	return nil
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleWebhook routes the verification handshake and deliveries.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerification(w, r)
	case http.MethodPost:
		s.handleDelivery(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerification answers the Cloud API subscription handshake.
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != "subscribe" || token != s.options.VerifyToken {
		s.logger.Warn().Str("mode", mode).Msg("Webhook verification rejected")
		s.countRequest("verify_rejected")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	s.logger.Info().Msg("Webhook verified")
	s.countRequest("verified")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// handleDelivery authenticates and dispatches one POST delivery.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read delivery body")
		s.countRequest("bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if s.options.AppSecret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if !verifySignature(body, signature, s.options.AppSecret) {
			s.logger.Warn().Msg("Invalid delivery signature")
			s.countRequest("bad_signature")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to parse delivery payload")
		s.countRequest("bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// The Cloud API expects a fast 200; turns run in the background.
	accepted := 0
	for _, msg := range collectTextMessages(payload) {
		if !s.rateLimiter.Allow(msg.From) {
			s.logger.Warn().
				Str("identity", msg.From).
				Dur("retry_after", s.rateLimiter.RetryAfter(msg.From)).
				Msg("Sender rate limited, dropping message")
			s.countRequest("rate_limited")
			continue
		}

		accepted++
		if s.metrics != nil {
			s.metrics.MessagesReceivedTotal.Inc()
		}

		s.inFlight.Add(1)
		go s.processMessage(msg)
	}

	s.countRequest("accepted")
	s.logger.Debug().Int("messages", accepted).Msg("Delivery accepted")
	w.WriteHeader(http.StatusOK)
}

// processMessage runs one conversation turn and sends the reply back.
func (s *Server) processMessage(msg InboundMessage) {
	defer s.inFlight.Done()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Msg("Panic processing message")
		}
	}()

	messageID := msg.ID
	if messageID == "" {
		// Some sandbox deliveries omit the id; synthesize one so
		// duplicate detection still has a key.
		messageID, _ = gonanoid.New()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.options.HandlerTimeout)
	defer cancel()

	reply, err := s.handler.HandleMessage(ctx, agent.Inbound{
		Identity:  msg.From,
		Text:      msg.Text.Body,
		MessageID: messageID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("identity", msg.From).Msg("Conversation turn failed")
	}
	if reply == "" {
		return
	}

	if err := s.sender.SendText(ctx, msg.From, reply); err != nil {
		s.logger.Error().Err(err).Str("identity", msg.From).Msg("Failed to send reply")
		return
	}
	if s.metrics != nil {
		s.metrics.MessagesSentTotal.Inc()
	}
}

// collectTextMessages flattens a delivery payload into its text
// messages; media, reactions, and status receipts are skipped.
func collectTextMessages(payload Payload) []InboundMessage {
	var out []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text == nil {
					continue
				}
				out = append(out, msg)
			}
		}
	}
	return out
}

func (s *Server) countRequest(status string) {
	if s.metrics != nil {
		s.metrics.WebhookRequestsTotal.WithLabelValues(status).Inc()
	}
}
