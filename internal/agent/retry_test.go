package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, Jitter: 0}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastRetry(3), "op", func(error) bool { return true },
		func() (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "done", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := Retry(context.Background(), fastRetry(3), "op", func(error) bool { return true },
		func() (int, error) {
			calls++
			return 0, boom
		})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	terminal := errors.New("terminal")
	_, err := Retry(context.Background(), fastRetry(5), "op",
		func(err error) bool { return !errors.Is(err, terminal) },
		func() (int, error) {
			calls++
			return 0, terminal
		})
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastRetry(3), "op", func(error) bool { return true },
		func() (int, error) {
			calls++
			return 0, errors.New("x")
		})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestBackoffDoubles(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Jitter: 0}
	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(3))
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := cfg.Backoff(2)
		assert.GreaterOrEqual(t, d, 1600*time.Millisecond)
		assert.LessOrEqual(t, d, 2400*time.Millisecond)
	}
}

func TestMockAgentScriptsResponses(t *testing.T) {
	m := NewMockAgent()
	m.Enqueue(`{"result":"error","message":"first"}`, `{"result":"success","message":"second"}`)

	raw, err := m.Prompt(context.Background(), PromptSpec{User: "a"})
	require.NoError(t, err)
	out, err := DecodeOutcome(raw)
	require.NoError(t, err)
	assert.Equal(t, ResultError, out.Result)

	raw, err = m.Prompt(context.Background(), PromptSpec{User: "b"})
	require.NoError(t, err)
	out, _ = DecodeOutcome(raw)
	assert.Equal(t, ResultSuccess, out.Result)

	// Queue drained: default response.
	raw, err = m.Prompt(context.Background(), PromptSpec{User: "c"})
	require.NoError(t, err)
	out, _ = DecodeOutcome(raw)
	assert.Equal(t, ResultSuccess, out.Result)

	assert.Equal(t, 3, m.CallCount())
}

func TestReflectTypeProducesSchema(t *testing.T) {
	s := ReflectType[Outcome]()
	require.NotNil(t, s)
	assert.NotEmpty(t, SchemaJSON(s))
	assert.Contains(t, SchemaJSON(s), "result")
}
