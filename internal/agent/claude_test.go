package agent

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableClaudeError(t *testing.T) {
	assert.True(t, isRetryableClaudeError(fmt.Errorf("%w: deadline", ErrTimeout)))
	assert.False(t, isRetryableClaudeError(errors.New("bad request")))

	for _, code := range []int{429, 503, 504, 529} {
		err := &anthropic.Error{StatusCode: code}
		assert.True(t, isRetryableClaudeError(fmt.Errorf("api: %w", err)), "status %d", code)
	}
	assert.False(t, isRetryableClaudeError(&anthropic.Error{StatusCode: 400}))
	assert.False(t, isRetryableClaudeError(&anthropic.Error{StatusCode: 401}))
}

func TestNewClaudeAgentDefaults(t *testing.T) {
	a := NewClaudeAgent("key", "claude-sonnet-4-5")
	assert.Equal(t, 5*time.Minute, a.timeout)
	assert.Equal(t, DefaultRetryConfig(), a.retry)

	a = NewClaudeAgent("key", "claude-sonnet-4-5",
		WithTimeout(time.Minute),
		WithRetry(RetryConfig{MaxAttempts: 1}))
	assert.Equal(t, time.Minute, a.timeout)
	assert.Equal(t, 1, a.retry.MaxAttempts)
}
