package streamhost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SafetyConfig bounds what a single turn may ask of the generator and the
// tool backend. The host itself enforces only MaxTokensPerRequest (forwarded
// on every generator call) and MaxToolsPerRequest (checked before any
// execution in a round). BlockedToolPatterns and RateLimitPerMinute are a
// declared policy surface: build a checker with Policy and wire it in front
// of the backend yourself.
type SafetyConfig struct {
	MaxTokensPerRequest int      `yaml:"max_tokens_per_request"`
	MaxToolsPerRequest  int      `yaml:"max_tools_per_request"`
	RateLimitPerMinute  int      `yaml:"rate_limit_per_minute"`
	BlockedToolPatterns []string `yaml:"blocked_tool_patterns"`
}

// DefaultSafetyConfig mirrors a conservative interactive setup.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		MaxTokensPerRequest: 2048,
		MaxToolsPerRequest:  5,
		RateLimitPerMinute:  30,
	}
}

// ToolPolicy checks one prospective tool call by name. It returns nil to
// allow, or an error explaining the refusal.
type ToolPolicy func(name string) error

// Policy builds a ToolPolicy from the blocked patterns (substring match on
// the tool name) and the per-minute rate window. The returned closure owns
// its window state and is safe for concurrent use.
func (c SafetyConfig) Policy() ToolPolicy {
	patterns := append([]string(nil), c.BlockedToolPatterns...)
	var win rateWindow
	limit := c.RateLimitPerMinute
	return func(name string) error {
		for _, p := range patterns {
			if p != "" && strings.Contains(name, p) {
				return fmt.Errorf("%w: %q matches pattern %q", ErrToolBlocked, name, p)
			}
		}
		if limit > 0 && !win.allow(limit, time.Now()) {
			return fmt.Errorf("%w: more than %d calls per minute", ErrRateLimited, limit)
		}
		return nil
	}
}

// rateWindow is a sliding one-minute window of call timestamps.
type rateWindow struct {
	mu    sync.Mutex
	calls []time.Time
}

func (w *rateWindow) allow(limit int, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-time.Minute)
	kept := w.calls[:0]
	for _, t := range w.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.calls = kept
	if len(w.calls) >= limit {
		return false
	}
	w.calls = append(w.calls, now)
	return true
}

// PolicyBackend wraps a ToolBackend so every CallTool consults a ToolPolicy
// first. A refused call never reaches the inner backend; the refusal surfaces
// as the call's error and is recorded like any other tool failure.
type PolicyBackend struct {
	Backend ToolBackend
	Check   ToolPolicy
}

var _ ToolBackend = (*PolicyBackend)(nil)

func (p *PolicyBackend) ListTools(ctx context.Context) ([]ToolInfo, error) {
	return p.Backend.ListTools(ctx)
}

func (p *PolicyBackend) CallTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	if p.Check != nil {
		if err := p.Check(name); err != nil {
			return nil, err
		}
	}
	return p.Backend.CallTool(ctx, name, params)
}
