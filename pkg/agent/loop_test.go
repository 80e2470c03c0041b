package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/chat"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/session"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/tools"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string][]chat.Message
	seen     map[string]bool
	ended    []string
	appends  int
	// failAppendAt makes the Nth Append call fail; 0 disables.
	failAppendAt int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string][]chat.Message),
		seen:     make(map[string]bool),
	}
}

func (s *fakeStore) Append(ctx context.Context, identity string, msg chat.Message) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.failAppendAt > 0 && s.appends == s.failAppendAt {
		return nil, fmt.Errorf("database is locked")
	}
	s.sessions[identity] = append(s.sessions[identity], msg)
	messages := make([]chat.Message, len(s.sessions[identity]))
	copy(messages, s.sessions[identity])
	return &session.Session{Status: session.StatusActive, Messages: messages}, nil
}

func (s *fakeStore) End(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identity)
	s.ended = append(s.ended, identity)
	return nil
}

func (s *fakeStore) IsSeen(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[messageID], nil
}

func (s *fakeStore) MarkSeen(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[messageID] = true
	return nil
}

func (s *fakeStore) messageCount(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[identity])
}

// step is one scripted provider turn: a response, an error, or a panic.
type step struct {
	response *Response
	err      error
	panics   bool
}

type fakeProvider struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	p.mu.Lock()
	index := p.calls
	p.calls++
	if index >= len(p.steps) {
		index = len(p.steps) - 1
	}
	current := p.steps[index]
	p.mu.Unlock()

	if current.panics {
		panic("scripted provider panic")
	}
	if current.err != nil {
		return nil, current.err
	}
	return current.response, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func textResponse(text string) step {
	return step{response: &Response{
		Message: chat.NewAssistantMessage(chat.TextBlock(text)),
		Usage:   &TokenUsage{InputTokens: 10, OutputTokens: 5},
	}}
}

func toolResponse(calls ...chat.ContentBlock) step {
	return step{response: &Response{
		Message: chat.NewAssistantMessage(calls...),
		Usage:   &TokenUsage{InputTokens: 10, OutputTokens: 5},
	}}
}

func newTestLoop(t *testing.T, store SessionStore, provider Provider, defs ...tools.Definition) *Loop {
	t.Helper()

	registry := tools.NewRegistry()
	for _, def := range defs {
		require.NoError(t, registry.Register(def))
	}
	runner, err := tools.NewRunner(registry)
	require.NoError(t, err)

	loop, err := NewLoop(Config{
		Store:          store,
		Provider:       provider,
		Registry:       registry,
		Tools:          runner,
		Model:          ModelConfig{Model: "test-model", MaxRounds: 3, MaxRetries: 3},
		RetryBaseDelay: 1 * time.Millisecond,
	})
	require.NoError(t, err)
	return loop
}

func TestNewLoop(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{steps: []step{textResponse("hola")}}
	registry := tools.NewRegistry()
	runner, err := tools.NewRunner(registry)
	require.NoError(t, err)

	t.Run("requires a store", func(t *testing.T) {
		_, err := NewLoop(Config{Provider: provider, Registry: registry, Tools: runner})
		assert.Error(t, err)
	})

	t.Run("requires a provider", func(t *testing.T) {
		_, err := NewLoop(Config{Store: store, Registry: registry, Tools: runner})
		assert.Error(t, err)
	})

	t.Run("fills model defaults", func(t *testing.T) {
		loop, err := NewLoop(Config{Store: store, Provider: provider, Registry: registry, Tools: runner})
		require.NoError(t, err)
		assert.Equal(t, DefaultModelConfig().Model, loop.model.Model)
		assert.Equal(t, DefaultModelConfig().MaxRounds, loop.model.MaxRounds)
	})
}

func TestHandleMessageTextReply(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{steps: []step{textResponse("¡Hola! Soy tu asistente veterinario.")}}
	loop := newTestLoop(t, store, provider)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "¡Hola! Soy tu asistente veterinario.", reply)

	// User message plus assistant reply.
	assert.Equal(t, 2, store.messageCount("+100"))
	assert.Equal(t, 1, provider.callCount())
}

func TestHandleMessageDuplicateDelivery(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{steps: []step{textResponse("respuesta")}}
	loop := newTestLoop(t, store, provider)

	inbound := Inbound{Identity: "+100", Text: "hola", MessageID: "msg-7"}

	first, err := loop.HandleMessage(context.Background(), inbound)
	require.NoError(t, err)
	assert.Equal(t, "respuesta", first)
	countAfterFirst := store.messageCount("+100")

	second, err := loop.HandleMessage(context.Background(), inbound)
	require.NoError(t, err)
	assert.Equal(t, ReplyAlreadyProcessed, second)
	assert.Equal(t, countAfterFirst, store.messageCount("+100"))
	assert.Equal(t, 1, provider.callCount())
}

func TestHandleMessageTermination(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{steps: []step{textResponse("no debería llamarse")}}
	loop := newTestLoop(t, store, provider)

	_, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "hola"})
	require.NoError(t, err)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "FIN"})
	require.NoError(t, err)
	assert.Equal(t, ReplyFarewell, reply)
	assert.Contains(t, store.ended, "+100")
	assert.Equal(t, 0, store.messageCount("+100"))

	// Only the first message reached the model.
	assert.Equal(t, 1, provider.callCount())
}

func TestHandleMessageToolRound(t *testing.T) {
	var handlerCalls int
	def := tools.Definition{
		Name:        "list_pets",
		Description: "List registered pets",
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			handlerCalls++
			return []string{"Toby"}, nil
		},
	}

	store := newFakeStore()
	provider := &fakeProvider{steps: []step{
		toolResponse(
			chat.ToolUseBlock("call-1", "list_pets", map[string]interface{}{}),
			chat.ToolUseBlock("call-2", "list_pets", map[string]interface{}{}),
		),
		textResponse("Tenés un solo perro registrado: Toby."),
	}}
	loop := newTestLoop(t, store, provider, def)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "¿qué mascotas tengo?", MessageID: "msg-1"})
	require.NoError(t, err)
	assert.Equal(t, "Tenés un solo perro registrado: Toby.", reply)

	// user, assistant tool calls, result bundle, assistant reply.
	require.Equal(t, 4, store.messageCount("+100"))

	store.mu.Lock()
	bundle := store.sessions["+100"][2]
	store.mu.Unlock()

	require.True(t, bundle.IsToolResultBundle())
	results := bundle.ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, "call-1", results[0].ToolUseID)
	assert.Equal(t, "call-2", results[1].ToolUseID)
	assert.Equal(t, 2, provider.callCount())

	// Identical (tool, identity, message-id, input) hits the idempotency
	// cache, so the handler ran once for the two call ids.
	assert.Equal(t, 1, handlerCalls)
}

func TestHandleMessageToolFailureIsStructured(t *testing.T) {
	def := tools.Definition{
		Name:        "find_clinics",
		Description: "Find nearby clinics",
		Policy:      &tools.ExecPolicy{Timeout: time.Second, Retries: tools.Int(1), RetryDelay: tools.Duration(time.Millisecond)},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			return nil, fmt.Errorf("provider unavailable")
		},
	}

	store := newFakeStore()
	provider := &fakeProvider{steps: []step{
		toolResponse(chat.ToolUseBlock("call-1", "find_clinics", map[string]interface{}{})),
		textResponse("No pude buscar clínicas en este momento."),
	}}
	loop := newTestLoop(t, store, provider, def)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "veterinarias cerca"})
	require.NoError(t, err)
	assert.Equal(t, "No pude buscar clínicas en este momento.", reply)

	store.mu.Lock()
	bundle := store.sessions["+100"][2]
	store.mu.Unlock()

	results := bundle.ToolResults()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, `"ok":false`)
}

func TestHandleMessageRoundBudget(t *testing.T) {
	def := tools.Definition{
		Name:        "list_pets",
		Description: "List registered pets",
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *tools.ExecutionContext) (interface{}, error) {
			return []string{}, nil
		},
	}

	store := newFakeStore()
	provider := &fakeProvider{}
	// Every round answers with another tool call, never a final reply.
	for i := 0; i < 5; i++ {
		provider.steps = append(provider.steps, toolResponse(
			chat.ToolUseBlock(fmt.Sprintf("call-%d", i+1), "list_pets", map[string]interface{}{}),
		))
	}
	loop := newTestLoop(t, store, provider, def)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "mis mascotas"})
	require.NoError(t, err)
	assert.Equal(t, ReplyClarification, reply)
	assert.Equal(t, 3, provider.callCount())
}

func TestHandleMessageRetriesTransientErrors(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{steps: []step{
		{err: fmt.Errorf("503 service unavailable")},
		textResponse("listo"),
	}}
	loop := newTestLoop(t, store, provider)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "listo", reply)
	assert.Equal(t, 2, provider.callCount())
}

func TestHandleMessageNonRetryableError(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{steps: []step{
		{err: fmt.Errorf("invalid api key")},
	}}
	loop := newTestLoop(t, store, provider)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "hola"})
	require.Error(t, err)
	assert.Equal(t, ReplyApology, reply)
	assert.Equal(t, 1, provider.callCount())
}

func TestHandleMessageTerminalAppendFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.failAppendAt = 2 // the assistant-reply append
	provider := &fakeProvider{steps: []step{textResponse("¡Hola!")}}
	loop := newTestLoop(t, store, provider)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "hola"})
	require.Error(t, err)
	assert.Equal(t, ReplyApology, reply)

	// Only the user message made it into the log; the caller knows the
	// turn is incomplete.
	assert.Equal(t, 1, store.messageCount("+100"))
}

func TestHandleMessageEmptyModelReply(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{steps: []step{textResponse("   ")}}
	loop := newTestLoop(t, store, provider)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, ReplyApology, reply)
}

func TestHandleMessageRecoversPanics(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{steps: []step{{panics: true}}}
	loop := newTestLoop(t, store, provider)

	reply, err := loop.HandleMessage(context.Background(), Inbound{Identity: "+100", Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, ReplyApology, reply)
}
