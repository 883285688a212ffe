package streamhost

import (
	"fmt"
	"strings"
	"time"
)

// RetryStrategy controls the outer per-turn retry loop: how many attempts,
// the flat delay between them, and how much the sampling temperature drops
// per attempt (annealing toward literal, format-compliant output).
type RetryStrategy struct {
	MaxRetries           int           `yaml:"max_retries"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	TemperatureReduction float64       `yaml:"temperature_reduction"`
}

// DefaultRetryStrategy matches the interactive defaults: three retries, two
// seconds apart, cooling by 0.1 each attempt.
func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{
		MaxRetries:           3,
		RetryDelay:           2 * time.Second,
		TemperatureReduction: 0.1,
	}
}

// Temperature returns the annealed temperature for an attempt:
// max(0, base - reduction*attempt). Attempt 0 is the first try.
func (s RetryStrategy) Temperature(base float64, attempt int) float64 {
	t := base - s.TemperatureReduction*float64(attempt)
	if t < 0 {
		return 0
	}
	return t
}

// RetryContext tracks one turn's attempts. Created fresh per user message,
// discarded after; errors are kept in attempt order.
type RetryContext struct {
	Attempt        int
	Temperature    float64
	PreviousErrors []string
}

// AddError records one failed attempt's error text.
func (rc *RetryContext) AddError(msg string) {
	rc.PreviousErrors = append(rc.PreviousErrors, msg)
}

// BuildRetryPrompt appends a correction block to the original prompt: every
// prior attempt's error plus format reminders. With no prior errors the
// prompt is returned unchanged.
func (rc *RetryContext) BuildRetryPrompt(original string) string {
	if len(rc.PreviousErrors) == 0 {
		return original
	}
	var sb strings.Builder
	sb.WriteString(original)
	sb.WriteString("\n\nIMPORTANT: Previous attempts failed with these errors:\n")
	for i, msg := range rc.PreviousErrors {
		fmt.Fprintf(&sb, "Attempt %d: %s\n", i+1, msg)
	}
	sb.WriteString("\nPlease correct these issues in your response. Ensure:\n")
	sb.WriteString("1. Tool calls use valid JSON format\n")
	sb.WriteString("2. Parameter names match the schema exactly\n")
	sb.WriteString("3. Required parameters are not missing\n")
	return sb.String()
}
