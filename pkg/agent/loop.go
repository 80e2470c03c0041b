package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/internal/metrics"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/chat"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/session"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/tools"
)

// DefaultRetryBaseDelay is the base backoff between model-call retries.
const DefaultRetryBaseDelay = 1 * time.Second

// SessionStore is the session persistence surface the loop depends on.
type SessionStore interface {
	Append(ctx context.Context, identity string, msg chat.Message) (*session.Session, error)
	End(ctx context.Context, identity string) error
	IsSeen(ctx context.Context, messageID string) (bool, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// PromptSource supplies the system prompt for model calls.
type PromptSource interface {
	System() string
}

// Config configures a Loop.
type Config struct {
	Store    SessionStore
	Provider Provider
	Registry *tools.Registry
	Tools    *tools.Runner
	Prompts  PromptSource
	Model    ModelConfig

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics

	// RetryBaseDelay overrides the model-call backoff base, mainly so
	// tests run fast.
	RetryBaseDelay time.Duration
}

// Loop is the conversational state machine. It is safe for concurrent
// use across identities; messages of one identity are expected to
// arrive sequentially.
type Loop struct {
	store    SessionStore
	provider Provider
	registry *tools.Registry
	tools    *tools.Runner
	prompts  PromptSource
	model    ModelConfig
	metrics  *metrics.Metrics
	baseWait time.Duration
}

// NewLoop creates a Loop from the given configuration.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool runner is required")
	}

	model := cfg.Model
	if model.Model == "" {
		model.Model = DefaultModelConfig().Model
	}
	if model.MaxTokens <= 0 {
		model.MaxTokens = DefaultModelConfig().MaxTokens
	}
	if model.MaxRounds <= 0 {
		model.MaxRounds = DefaultModelConfig().MaxRounds
	}
	if model.MaxRetries <= 0 {
		model.MaxRetries = DefaultModelConfig().MaxRetries
	}

	baseWait := cfg.RetryBaseDelay
	if baseWait <= 0 {
		baseWait = DefaultRetryBaseDelay
	}

	return &Loop{
		store:    cfg.Store,
		provider: cfg.Provider,
		registry: cfg.Registry,
		tools:    cfg.Tools,
		prompts:  cfg.Prompts,
		model:    model,
		metrics:  cfg.Metrics,
		baseWait: baseWait,
	}, nil
}

// HandleMessage runs one inbound message through the state machine and
// returns the reply text. It never panics: residual faults surface as a
// generic apology.
func (l *Loop) HandleMessage(ctx context.Context, inbound Inbound) (reply string, err error) {
	requestID := uuid.NewString()
	logger := log.With().
		Str("request_id", requestID).
		Str("identity", inbound.Identity).
		Logger()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("Conversation handler panicked")
			l.countConversation("panic")
			reply, err = ReplyApology, nil
		}
		if l.metrics != nil {
			l.metrics.ConversationDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if inbound.MessageID != "" {
		seen, err := l.store.IsSeen(ctx, inbound.MessageID)
		if err != nil {
			logger.Warn().Err(err).Msg("Delivery marker lookup failed, processing anyway")
		} else if seen {
			logger.Info().Str("message_id", inbound.MessageID).Msg("Duplicate delivery short-circuited")
			l.countConversation("duplicate")
			if l.metrics != nil {
				l.metrics.DuplicateDeliveries.Inc()
			}
			return ReplyAlreadyProcessed, nil
		}
		if err := l.store.MarkSeen(ctx, inbound.MessageID); err != nil {
			logger.Warn().Err(err).Msg("Failed to record delivery marker")
		}
	}

	if IsTermination(inbound.Text) {
		if err := l.store.End(ctx, inbound.Identity); err != nil {
			logger.Warn().Err(err).Msg("Failed to end session")
		}
		logger.Info().Msg("Session ended by user")
		l.countConversation("farewell")
		if l.metrics != nil {
			l.metrics.SessionsEnded.Inc()
		}
		return ReplyFarewell, nil
	}

	sess, err := l.store.Append(ctx, inbound.Identity, chat.NewUserMessage(inbound.Text))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to append user message")
		l.countConversation("store_error")
		return ReplyApology, err
	}

	declarations := l.registry.Declarations()

	for round := 1; round <= l.model.MaxRounds; round++ {
		request := Request{
			Model:        l.model.Model,
			SystemPrompt: l.systemPrompt(),
			Messages:     Transcode(sess.Messages),
			Tools:        declarations,
			MaxTokens:    l.model.MaxTokens,
			Temperature:  l.model.Temperature,
		}

		response, err := l.callModel(ctx, request, logger)
		if err != nil {
			logger.Error().Err(err).Int("round", round).Msg("Model call failed")
			l.countConversation("model_error")
			return ReplyApology, err
		}

		calls := response.Message.ToolCalls()
		if len(calls) == 0 {
			text := strings.TrimSpace(response.Message.PlainText())
			if text == "" {
				logger.Warn().Int("round", round).Msg("Model returned an empty reply")
				l.countConversation("empty_reply")
				return ReplyApology, nil
			}

			if _, err := l.store.Append(ctx, inbound.Identity, response.Message); err != nil {
				logger.Error().Err(err).Msg("Failed to append assistant reply")
				l.countConversation("store_error")
				return ReplyApology, err
			}
			logger.Info().Int("round", round).Msg("Conversation round complete")
			l.countConversation("reply")
			l.observeRounds(round)
			return text, nil
		}

		// The assistant message goes into the log before any tool runs
		// so a mid-dispatch crash never leaves results without their
		// originating calls.
		sess, err = l.store.Append(ctx, inbound.Identity, response.Message)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to append assistant tool calls")
			l.countConversation("store_error")
			return ReplyApology, err
		}

		bundle := l.dispatchTools(ctx, calls, inbound, requestID, logger)

		sess, err = l.store.Append(ctx, inbound.Identity, bundle)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to append tool results")
			l.countConversation("store_error")
			return ReplyApology, err
		}
	}

	logger.Warn().Int("max_rounds", l.model.MaxRounds).Msg("Round budget exhausted")
	l.countConversation("round_budget")
	l.observeRounds(l.model.MaxRounds)
	return ReplyClarification, nil
}

// dispatchTools runs every requested tool call and builds the result
// bundle, exactly one result block per distinct call id.
func (l *Loop) dispatchTools(ctx context.Context, calls []chat.ContentBlock, inbound Inbound, requestID string, logger zerolog.Logger) chat.Message {
	blocks := make([]chat.ContentBlock, 0, len(calls))
	dispatched := make(map[string]bool, len(calls))

	for _, call := range calls {
		if dispatched[call.ID] {
			logger.Warn().Str("tool", call.Name).Str("call_id", call.ID).Msg("Skipping repeated call id")
			continue
		}
		dispatched[call.ID] = true

		toolStart := time.Now()
		result := l.tools.Execute(ctx, call.Name, call.Input, &tools.ExecutionContext{
			RequestID:        requestID,
			Identity:         inbound.Identity,
			InboundMessageID: inbound.MessageID,
		})

		if l.metrics != nil {
			status := "success"
			if !result.OK {
				status = "error"
			}
			l.metrics.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()
			l.metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(time.Since(toolStart).Seconds())
		}

		content, err := json.Marshal(result)
		if err != nil {
			logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool result not serializable")
			content = []byte(`{"ok":false,"error":"unserializable tool result"}`)
		}

		blocks = append(blocks, chat.ToolResultBlock(call.ID, string(content), !result.OK))
	}

	return chat.NewToolResultMessage(blocks...)
}

// callModel makes one completion call with bounded retries on transient
// failures.
func (l *Loop) callModel(ctx context.Context, request Request, logger zerolog.Logger) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < l.model.MaxRetries; attempt++ {
		response, err := l.provider.Complete(ctx, request)
		if err == nil {
			l.countModelCall("success")
			if l.metrics != nil && response.Usage != nil {
				l.metrics.ModelTokensTotal.WithLabelValues(l.provider.Name(), "input").Add(float64(response.Usage.InputTokens))
				l.metrics.ModelTokensTotal.WithLabelValues(l.provider.Name(), "output").Add(float64(response.Usage.OutputTokens))
			}
			return response, nil
		}

		lastErr = err
		l.countModelCall("error")

		if !IsRetryableError(err) {
			return nil, err
		}

		logger.Warn().
			Int("attempt", attempt+1).
			Int("max_attempts", l.model.MaxRetries).
			Err(err).
			Msg("Model call failed, retrying")

		if attempt == l.model.MaxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoffDelay(l.baseWait, attempt)):
		}
	}

	return nil, fmt.Errorf("model call failed after %d attempts: %w", l.model.MaxRetries, lastErr)
}

func (l *Loop) systemPrompt() string {
	if l.prompts == nil {
		return ""
	}
	return l.prompts.System()
}

func (l *Loop) countConversation(outcome string) {
	if l.metrics != nil {
		l.metrics.ConversationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (l *Loop) countModelCall(status string) {
	if l.metrics != nil {
		l.metrics.ModelCallsTotal.WithLabelValues(l.provider.Name(), status).Inc()
	}
}

func (l *Loop) observeRounds(rounds int) {
	if l.metrics != nil {
		l.metrics.ConversationRounds.Observe(float64(rounds))
	}
}
