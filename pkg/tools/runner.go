package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = 1 * time.Second

	// DefaultCacheCapacity bounds the idempotency cache; the oldest
	// outcome is evicted first.
	DefaultCacheCapacity = 100
)

// Result is the structured outcome of a tool dispatch. A failed
// execution is a recoverable Result with OK=false, never a fault.
type Result struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Runner executes tools from a registry with timeout, retry, and
// idempotency semantics.
type Runner struct {
	registry *Registry
	cache    *outcomeCache
}

// NewRunner creates a runner over the given registry.
func NewRunner(registry *Registry) (*Runner, error) {
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	return &Runner{
		registry: registry,
		cache:    newOutcomeCache(DefaultCacheCapacity),
	}, nil
}

// Execute dispatches one tool call. The sequence is: cache lookup,
// input validation (no retry on failure), then up to retries+1 attempts
// each raced against the timeout, with exponential backoff between
// attempts. The final outcome is cached under the idempotency key.
func (r *Runner) Execute(ctx context.Context, toolName string, rawInput map[string]interface{}, execCtx *ExecutionContext) Result {
	if execCtx == nil {
		execCtx = &ExecutionContext{}
	}
	logger := log.With().
		Str("tool", toolName).
		Str("request_id", execCtx.RequestID).
		Logger()

	key := idempotencyKey(toolName, execCtx.Identity, execCtx.InboundMessageID, rawInput)
	if cached, ok := r.cache.Get(key); ok {
		logger.Debug().Msg("Returning cached tool outcome")
		return cached
	}

	def := r.registry.Get(toolName)
	if def == nil {
		logger.Warn().Msg("Tool not found")
		result := Result{OK: false, Error: fmt.Sprintf("tool not found: %s", toolName)}
		r.cache.Set(key, result)
		return result
	}

	if err := validateInput(r.registry.schema(toolName), rawInput); err != nil {
		// Invalid input is cached as-is and never retried; the model
		// corrects itself from the structured error.
		logger.Warn().Err(err).Msg("Tool input validation failed")
		result := Result{OK: false, Error: fmt.Sprintf("invalid input: %v", err)}
		r.cache.Set(key, result)
		return result
	}

	policy := mergePolicy(def.Policy)
	result := r.attempt(ctx, def, rawInput, execCtx, policy, logger)

	r.cache.Set(key, result)
	return result
}

// attempt runs the handler up to retries+1 times, each attempt raced
// against the policy timeout, waiting delay*2^attempt between attempts.
func (r *Runner) attempt(ctx context.Context, def *Definition, rawInput map[string]interface{}, execCtx *ExecutionContext, policy runPolicy, logger zerolog.Logger) Result {
	var lastErr error

	for attempt := 0; attempt <= policy.retries; attempt++ {
		output, err := r.runOnce(ctx, def, rawInput, execCtx, policy.timeout)
		if err == nil {
			if attempt > 0 {
				logger.Debug().Int("attempt", attempt+1).Msg("Tool succeeded after retry")
			}
			return Result{OK: true, Data: output}
		}

		lastErr = err
		logger.Warn().
			Int("attempt", attempt+1).
			Int("max_attempts", policy.retries+1).
			Err(err).
			Msg("Tool attempt failed")

		if attempt == policy.retries {
			break
		}

		delay := policy.retryDelay * (1 << attempt)
		select {
		case <-ctx.Done():
			return Result{OK: false, Error: fmt.Sprintf("tool %s aborted: %v", def.Name, ctx.Err())}
		case <-time.After(delay):
		}
	}

	return Result{OK: false, Error: fmt.Sprintf("tool %s failed after %d attempts: %v", def.Name, policy.retries+1, lastErr)}
}

// runOnce executes the handler once with a timeout race. A panicking
// handler is reported as an error, not propagated.
func (r *Runner) runOnce(ctx context.Context, def *Definition, rawInput map[string]interface{}, execCtx *ExecutionContext, timeout time.Duration) (interface{}, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errChan <- fmt.Errorf("tool %s panicked: %v", def.Name, rec)
			}
		}()

		output, err := def.Handler(timeoutCtx, rawInput, execCtx)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- output
		}
	}()

	select {
	case output := <-resultChan:
		return output, nil
	case err := <-errChan:
		return nil, err
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("tool %s timed out after %v", def.Name, timeout)
	}
}

// runPolicy is a fully resolved execution policy.
type runPolicy struct {
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
}

func mergePolicy(policy *ExecPolicy) runPolicy {
	merged := runPolicy{
		timeout:    DefaultTimeout,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
	}
	if policy == nil {
		return merged
	}
	if policy.Timeout > 0 {
		merged.timeout = policy.Timeout
	}
	if policy.Retries != nil && *policy.Retries >= 0 {
		merged.retries = *policy.Retries
	}
	if policy.RetryDelay != nil && *policy.RetryDelay >= 0 {
		merged.retryDelay = *policy.RetryDelay
	}
	return merged
}

// idempotencyKey fingerprints one unit of tool work. Canonical JSON of
// the input (map keys marshal sorted) keeps the key deterministic.
func idempotencyKey(tool, identity, messageID string, input map[string]interface{}) string {
	canonical, err := json.Marshal(input)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", input))
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", tool, identity, messageID)
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// outcomeCache is a bounded insertion-ordered cache of dispatch
// outcomes.
type outcomeCache struct {
	mu       sync.Mutex
	entries  map[string]Result
	order    []string
	capacity int
}

func newOutcomeCache(capacity int) *outcomeCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &outcomeCache{
		entries:  make(map[string]Result),
		capacity: capacity,
	}
}

func (c *outcomeCache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[key]
	return result, ok
}

func (c *outcomeCache) Set(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = result
}

func (c *outcomeCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
