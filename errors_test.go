package streamhost

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryExhaustedError_Message(t *testing.T) {
	t.Parallel()
	err := &RetryExhaustedError{Attempts: []string{"bad json", "still bad"}}
	msg := err.Error()
	assert.Contains(t, msg, "all 2 attempts failed")
	assert.Contains(t, msg, "attempt 1: bad json")
	assert.Contains(t, msg, "attempt 2: still bad")
}

func TestIsRetryExhausted(t *testing.T) {
	t.Parallel()
	inner := &RetryExhaustedError{Attempts: []string{"x"}}
	wrapped := fmt.Errorf("turn failed: %w", inner)

	assert.True(t, IsRetryExhausted(inner))
	assert.True(t, IsRetryExhausted(wrapped))
	assert.False(t, IsRetryExhausted(errors.New("other")))
	assert.False(t, IsRetryExhausted(nil))
}

func TestClientError(t *testing.T) {
	t.Parallel()
	err := &ClientError{Err: fmt.Errorf("%w: 7 calls, limit 5", ErrTooManyToolCalls)}
	require.ErrorIs(t, err, ErrTooManyToolCalls)
	assert.True(t, IsClientError(err))
	assert.True(t, IsClientError(fmt.Errorf("turn: %w", err)))
	assert.Contains(t, err.Error(), "invalid model output")
	assert.Contains(t, err.Error(), "too many tool calls")

	withReason := &ClientError{Reason: "empty tool name"}
	assert.Equal(t, "invalid model output: empty tool name", withReason.Error())

	assert.False(t, IsClientError(ErrRoundLimit))
	assert.False(t, IsClientError(nil))
}

func TestSystemError(t *testing.T) {
	t.Parallel()
	inner := errors.New("connection refused")
	err := &SystemError{Err: fmt.Errorf("generate: %w", inner)}

	require.ErrorIs(t, err, inner)
	assert.True(t, IsSystemError(err))
	assert.False(t, IsSystemError(&ClientError{Reason: "x"}))
	assert.False(t, IsClientError(err))
	assert.Contains(t, err.Error(), "system error")
}
