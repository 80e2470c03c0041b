package tools

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRunner(t *testing.T, defs ...Definition) *Runner {
	t.Helper()

	reg := NewRegistry()
	for _, def := range defs {
		require.NoError(t, reg.Register(def))
	}

	runner, err := NewRunner(reg)
	require.NoError(t, err)
	return runner
}

func execCtx(messageID string) *ExecutionContext {
	return &ExecutionContext{
		RequestID:        "req-1",
		Identity:         "+100",
		InboundMessageID: messageID,
	}
}

func TestNewRunner(t *testing.T) {
	t.Run("should require a registry", func(t *testing.T) {
		_, err := NewRunner(nil)
		assert.Error(t, err)
	})
}

func TestExecuteSuccess(t *testing.T) {
	runner := setupRunner(t, echoDefinition("echo"))

	result := runner.Execute(context.Background(), "echo",
		map[string]interface{}{"value": "hola"}, execCtx("msg-1"))

	assert.True(t, result.OK)
	assert.Equal(t, "hola", result.Data)
	assert.Empty(t, result.Error)
}

func TestExecuteUnknownTool(t *testing.T) {
	runner := setupRunner(t)

	result := runner.Execute(context.Background(), "missing", nil, execCtx("msg-1"))

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "tool not found")
}

func TestExecuteValidation(t *testing.T) {
	var calls int32
	def := Definition{
		Name:        "strict",
		Description: "Requires a value",
		Parameters: []Parameter{
			{Name: "value", Type: "string", Description: "Required value", Required: true},
		},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		},
	}
	runner := setupRunner(t, def)

	t.Run("should fail fast without invoking the handler", func(t *testing.T) {
		result := runner.Execute(context.Background(), "strict",
			map[string]interface{}{}, execCtx("msg-1"))

		assert.False(t, result.OK)
		assert.Contains(t, result.Error, "invalid input")
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "validation failure must not reach the handler")
	})

	t.Run("should cache the validation failure", func(t *testing.T) {
		result := runner.Execute(context.Background(), "strict",
			map[string]interface{}{}, execCtx("msg-1"))
		assert.False(t, result.OK)
		assert.Equal(t, 1, runner.cache.Size())
	})

	t.Run("should reject unknown fields", func(t *testing.T) {
		result := runner.Execute(context.Background(), "strict",
			map[string]interface{}{"value": "ok", "extra": true}, execCtx("msg-2"))
		assert.False(t, result.OK)
	})
}

func TestExecuteRetries(t *testing.T) {
	var attempts int32
	var attemptTimes []time.Time

	def := Definition{
		Name:        "flaky",
		Description: "Always fails",
		Parameters:  []Parameter{},
		Policy:      &ExecPolicy{Timeout: time.Second, Retries: Int(2), RetryDelay: Duration(20 * time.Millisecond)},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			atomic.AddInt32(&attempts, 1)
			attemptTimes = append(attemptTimes, time.Now())
			return nil, fmt.Errorf("boom")
		},
	}
	runner := setupRunner(t, def)

	result := runner.Execute(context.Background(), "flaky", nil, execCtx("msg-1"))

	t.Run("should attempt exactly retries+1 times", func(t *testing.T) {
		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	})

	t.Run("should end in a structured failure", func(t *testing.T) {
		assert.False(t, result.OK)
		assert.Contains(t, result.Error, "failed after 3 attempts")
		assert.Contains(t, result.Error, "boom")
	})

	t.Run("should back off with non-decreasing delays", func(t *testing.T) {
		require.Len(t, attemptTimes, 3)
		first := attemptTimes[1].Sub(attemptTimes[0])
		second := attemptTimes[2].Sub(attemptTimes[1])
		assert.GreaterOrEqual(t, second, first)
		assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	})
}

func TestExecuteTimeout(t *testing.T) {
	def := Definition{
		Name:        "slow",
		Description: "Sleeps past the timeout",
		Parameters:  []Parameter{},
		Policy:      &ExecPolicy{Timeout: 30 * time.Millisecond, Retries: Int(1), RetryDelay: Duration(10 * time.Millisecond)},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	runner := setupRunner(t, def)

	start := time.Now()
	result := runner.Execute(context.Background(), "slow", nil, execCtx("msg-1"))

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecutePanicRecovery(t *testing.T) {
	def := Definition{
		Name:        "panicky",
		Description: "Panics on purpose",
		Parameters:  []Parameter{},
		Policy:      &ExecPolicy{Timeout: time.Second, Retries: Int(1), RetryDelay: Duration(5 * time.Millisecond)},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			panic("kaboom")
		},
	}
	runner := setupRunner(t, def)

	result := runner.Execute(context.Background(), "panicky", nil, execCtx("msg-1"))

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "panicked")
}

func TestExecuteIdempotency(t *testing.T) {
	var calls int32
	def := Definition{
		Name:        "side_effect",
		Description: "Counts invocations",
		Parameters:  []Parameter{},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			return atomic.AddInt32(&calls, 1), nil
		},
	}
	runner := setupRunner(t, def)

	t.Run("should execute at most once for identical dispatches", func(t *testing.T) {
		first := runner.Execute(context.Background(), "side_effect", nil, execCtx("msg-1"))
		second := runner.Execute(context.Background(), "side_effect", nil, execCtx("msg-1"))

		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Equal(t, first, second)
	})

	t.Run("should re-execute when the message id differs", func(t *testing.T) {
		runner.Execute(context.Background(), "side_effect", nil, execCtx("msg-2"))
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("should re-execute when the input differs", func(t *testing.T) {
		// Input outside the declared schema fails validation, so use a
		// permissive tool for this case.
		reg := NewRegistry()
		require.NoError(t, reg.Register(Definition{
			Name:        "lookup",
			Description: "Accepts a query",
			Parameters: []Parameter{
				{Name: "q", Type: "string", Description: "Query", Required: true},
			},
			Handler: func(ctx context.Context, input map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
				return atomic.AddInt32(&calls, 1), nil
			},
		}))
		r2, err := NewRunner(reg)
		require.NoError(t, err)

		r2.Execute(context.Background(), "lookup", map[string]interface{}{"q": "a"}, execCtx("msg-3"))
		r2.Execute(context.Background(), "lookup", map[string]interface{}{"q": "b"}, execCtx("msg-3"))
		assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	})
}

func TestIdempotencyKey(t *testing.T) {
	t.Run("should be deterministic across map ordering", func(t *testing.T) {
		a := idempotencyKey("t", "+100", "m1", map[string]interface{}{"a": 1, "b": 2})
		b := idempotencyKey("t", "+100", "m1", map[string]interface{}{"b": 2, "a": 1})
		assert.Equal(t, a, b)
	})

	t.Run("should differ per component", func(t *testing.T) {
		base := idempotencyKey("t", "+100", "m1", nil)
		assert.NotEqual(t, base, idempotencyKey("u", "+100", "m1", nil))
		assert.NotEqual(t, base, idempotencyKey("t", "+200", "m1", nil))
		assert.NotEqual(t, base, idempotencyKey("t", "+100", "m2", nil))
	})
}

func TestOutcomeCacheEviction(t *testing.T) {
	cache := newOutcomeCache(3)

	for i := 0; i < 4; i++ {
		cache.Set(fmt.Sprintf("k%d", i), Result{OK: true, Data: i})
	}

	_, ok := cache.Get("k0")
	assert.False(t, ok, "oldest entry should be evicted first")

	for i := 1; i < 4; i++ {
		_, ok := cache.Get(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
	}
	assert.Equal(t, 3, cache.Size())
}

func TestMergePolicy(t *testing.T) {
	t.Run("should default everything for nil policy", func(t *testing.T) {
		merged := mergePolicy(nil)
		assert.Equal(t, DefaultTimeout, merged.timeout)
		assert.Equal(t, DefaultRetries, merged.retries)
		assert.Equal(t, DefaultRetryDelay, merged.retryDelay)
	})

	t.Run("should keep overrides and default the rest", func(t *testing.T) {
		merged := mergePolicy(&ExecPolicy{Timeout: 5 * time.Second})
		assert.Equal(t, 5*time.Second, merged.timeout)
		assert.Equal(t, DefaultRetries, merged.retries)
	})

	t.Run("should honor an explicit zero", func(t *testing.T) {
		merged := mergePolicy(&ExecPolicy{Retries: Int(0), RetryDelay: Duration(0)})
		assert.Equal(t, 0, merged.retries)
		assert.Equal(t, time.Duration(0), merged.retryDelay)
	})
}

func TestExecuteNoRetriesPolicy(t *testing.T) {
	var attempts int32
	def := Definition{
		Name:        "charge_once",
		Description: "Must never run twice",
		Parameters:  []Parameter{},
		Policy:      &ExecPolicy{Timeout: time.Second, Retries: Int(0)},
		Handler: func(ctx context.Context, input map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, fmt.Errorf("boom")
		},
	}
	runner := setupRunner(t, def)

	result := runner.Execute(context.Background(), "charge_once", nil, execCtx("msg-1"))

	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "failed after 1 attempts")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}
