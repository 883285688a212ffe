package streamhost

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for streamhost. Use errors.Is to check.
var (
	// ErrMalformedToolCall marks a response whose tool-call JSON could not be
	// parsed even after a repair pass. Retryable by the outer loop.
	ErrMalformedToolCall = errors.New("malformed tool call")

	// ErrTooManyToolCalls marks a response exceeding max_tools_per_request.
	// The attempt fails before any call is executed.
	ErrTooManyToolCalls = errors.New("too many tool calls in response")

	// ErrRoundLimit marks an attempt that exceeded the tool-round bound
	// without producing a final answer.
	ErrRoundLimit = errors.New("tool round limit exceeded")

	// ErrToolBlocked is returned by a safety policy for a tool whose name
	// matches a blocked pattern.
	ErrToolBlocked = errors.New("tool blocked by policy")

	// ErrRateLimited is returned by a safety policy when the per-minute call
	// budget is spent.
	ErrRateLimited = errors.New("tool call rate limit exceeded")
)

// RetryExhaustedError is returned when every attempt of a turn failed. It
// carries the ordered error text of each attempt so the caller sees the full
// chain, not just the last failure.
type RetryExhaustedError struct {
	Attempts []string
}

func (e *RetryExhaustedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "all %d attempts failed", len(e.Attempts))
	for i, msg := range e.Attempts {
		fmt.Fprintf(&sb, "; attempt %d: %s", i+1, msg)
	}
	return sb.String()
}

// IsRetryExhausted reports whether err is or wraps a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// ClientError marks a failure caused by the model's own output: malformed
// tool-call JSON, a blown per-response tool budget. A lower-temperature
// retry may fix it, so the orchestrator's annealing loop treats these as
// retryable. Err optionally wraps a sentinel (e.g. ErrMalformedToolCall)
// for errors.Is/errors.As.
type ClientError struct {
	Reason string
	Err    error
}

func (e *ClientError) Error() string {
	if e.Reason != "" {
		return "invalid model output: " + e.Reason
	}
	return "invalid model output: " + e.Err.Error()
}

// Unwrap supports errors.Is/errors.As on wrapped chains.
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError marks an infrastructure failure: generator unreachable,
// backend transport down. Retrying at a different temperature will not
// help; surface it to the operator instead.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "system error: " + e.Err.Error()
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsClientError reports whether err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError reports whether err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}
