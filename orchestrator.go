package streamhost

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxToolRounds bounds generate/execute cycles within one turn.
	DefaultMaxToolRounds = 10

	// DefaultBaseTemperature is the sampling temperature of a turn's first
	// attempt; retries anneal downward from it.
	DefaultBaseTemperature = 0.7

	// DefaultMaxContextTokens bounds retained conversation history.
	DefaultMaxContextTokens = 4096

	// continuationTemperature is used for every re-prompt after tool
	// execution. Continuations summarize concrete results, so they sample
	// cooler than the opening generation regardless of annealing state.
	continuationTemperature = 0.3
)

// TurnResult is the outcome of one completed ProcessMessage turn.
type TurnResult struct {
	// Text is the narrative with tool-call JSON and think blocks removed.
	Text string

	// ToolCalls lists every call the model requested, in extraction order
	// across all rounds.
	ToolCalls []ToolCall

	// ExecutedTools lists every tool invocation of the turn, in execution
	// order across all rounds.
	ExecutedTools []ExecutedTool

	// Attempt is the zero-based retry attempt that produced this result.
	Attempt int

	// Rounds counts generate/execute cycles the turn used.
	Rounds int
}

// Host orchestrates complete conversation turns: it prompts the generator,
// extracts and executes tool calls through the backend, re-prompts with
// results until the model stops requesting tools, and retries failed
// attempts with annealed temperature.
type Host struct {
	gen  Generator
	exec *toolExecutor
	conv *ConversationManager
	tmpl *PromptTemplate
	opts hostOptions
	log  *slog.Logger
}

// NewHost creates a host over a generator and a tool backend.
func NewHost(gen Generator, backend ToolBackend, opts ...HostOption) *Host {
	o := defaultHostOptions()
	for _, opt := range opts {
		opt(&o)
	}
	tmpl := o.template
	if tmpl == nil {
		tmpl = NewPromptTemplate(o.modelName)
	}
	exec := newToolExecutor(backend, o.inst)
	exec.validator = o.validator
	return &Host{
		gen:  gen,
		exec: exec,
		conv: NewConversationManager(o.maxContext),
		tmpl: tmpl,
		opts: o,
		log:  o.logger,
	}
}

// Conversation exposes the host's history manager, e.g. to pin a system
// message or clear state between sessions.
func (h *Host) Conversation() *ConversationManager { return h.conv }

// EnhanceSystemPrompt extends a system prompt with the backend's current
// tool descriptions and usage instructions.
func (h *Host) EnhanceSystemPrompt(ctx context.Context, original string) (string, error) {
	start := time.Now()
	h.opts.inst.Emit(EventPromptEnhancementStart, map[string]any{
		"original_len": len(original),
	})
	tools, err := h.exec.listTools(ctx)
	if err != nil {
		return "", fmt.Errorf("list tools: %w", err)
	}
	enhanced := h.tmpl.EnhanceSystemPrompt(original, tools)
	h.opts.inst.EmitTimed(EventPromptEnhancementComplete, time.Since(start), map[string]any{
		"tool_count":   len(tools),
		"enhanced_len": len(enhanced),
	})
	return enhanced, nil
}

// ProcessMessage runs one full conversation turn for userMessage. On
// success the turn is recorded in conversation history. When every attempt
// fails the returned error is a *RetryExhaustedError carrying each
// attempt's failure in order.
func (h *Host) ProcessMessage(ctx context.Context, userMessage string) (*TurnResult, error) {
	turnID := uuid.NewString()
	turnStart := time.Now()

	tools, err := h.exec.listTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	var prompt string
	if h.opts.injectTools {
		prompt = h.tmpl.FormatWithTools(tools, h.conv.History(), userMessage)
	} else {
		prompt = h.tmpl.FormatWithTools(nil, h.conv.History(), userMessage)
	}

	rc := &RetryContext{Temperature: h.opts.baseTemperature}
	for attempt := 0; attempt <= h.opts.retry.MaxRetries; attempt++ {
		temp := h.opts.retry.Temperature(h.opts.baseTemperature, attempt)
		rc.Attempt = attempt
		rc.Temperature = temp

		attemptPrompt := prompt
		if attempt > 0 {
			attemptPrompt = rc.BuildRetryPrompt(prompt)
			h.log.Debug("retrying turn",
				slog.String("turn_id", turnID),
				slog.Int("attempt", attempt),
				slog.Float64("temperature", temp))
		}

		result, err := h.runTurn(ctx, turnID, tools, attemptPrompt, userMessage, temp)
		if err == nil {
			result.Attempt = attempt
			h.conv.AddUserMessage(userMessage)
			h.conv.AddAssistantTurn(result.Text, result.ToolCalls, result.ExecutedTools)
			h.opts.inst.EmitTurnTimed(EventPerformanceMetric, turnID, time.Since(turnStart), map[string]any{
				"attempt":    attempt,
				"rounds":     result.Rounds,
				"tool_count": len(result.ExecutedTools),
			})
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		h.log.Debug("turn attempt failed",
			slog.String("turn_id", turnID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		rc.AddError(err.Error())

		if attempt < h.opts.retry.MaxRetries && h.opts.retry.RetryDelay > 0 {
			select {
			case <-time.After(h.opts.retry.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, &RetryExhaustedError{Attempts: rc.PreviousErrors}
}

// runTurn executes one attempt: an opening generation followed by
// execute/re-prompt rounds until the model stops requesting tools.
func (h *Host) runTurn(ctx context.Context, turnID string, tools []ToolInfo, prompt, userMessage string, temp float64) (*TurnResult, error) {
	text, calls, err := h.generate(ctx, turnID, prompt, temp)
	if err != nil {
		return nil, err
	}

	var (
		requested []ToolCall
		executed  []ExecutedTool
		round     = 0
	)
	for {
		if len(calls) == 0 {
			return &TurnResult{
				Text:          text,
				ToolCalls:     requested,
				ExecutedTools: executed,
				Rounds:        round,
			}, nil
		}
		if round >= h.opts.maxToolRounds {
			return nil, fmt.Errorf("%w after %d rounds", ErrRoundLimit, round)
		}
		round++
		requested = append(requested, calls...)

		for _, call := range calls {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			executed = append(executed, h.exec.execute(ctx, call))
		}

		if !h.opts.continuation {
			return &TurnResult{
				Text:          h.tmpl.InlineResults(text, executed),
				ToolCalls:     requested,
				ExecutedTools: executed,
				Rounds:        round,
			}, nil
		}

		cont := h.tmpl.ContinuationPrompt(tools, text, executed, userMessage)
		h.opts.inst.EmitTurn(EventContinuationRequest, turnID, map[string]any{
			"round":      round,
			"tool_count": len(executed),
		})
		text, calls, err = h.generate(ctx, turnID, cont, continuationTemperature)
		if err != nil {
			return nil, err
		}
		// The continuation replaces the previous text outright; only the
		// final round's response reaches the caller.
		h.opts.inst.EmitTurn(EventContinuationResponse, turnID, map[string]any{
			"round":      round,
			"text_len":   len(text),
			"tool_calls": len(calls),
		})
	}
}

// generate runs one model call and extracts its tool calls. The
// per-response tool budget is enforced here, before anything executes.
func (h *Host) generate(ctx context.Context, turnID, prompt string, temp float64) (string, []ToolCall, error) {
	resp, err := h.gen.Generate(ctx, GenerateRequest{
		Prompt:      prompt,
		Temperature: temp,
		MaxTokens:   h.opts.safety.MaxTokensPerRequest,
	})
	if err != nil {
		return "", nil, &SystemError{Err: fmt.Errorf("generate: %w", err)}
	}

	text := StripThink(resp.Text)

	start := time.Now()
	h.opts.inst.EmitTurn(EventToolDetectionStart, turnID, map[string]any{
		"text_len": len(text),
	})
	calls, err := ExtractToolCalls(text)
	if err != nil {
		return "", nil, &ClientError{Err: err}
	}
	h.opts.inst.EmitTimed(EventToolDetectionComplete, time.Since(start), map[string]any{
		"tool_calls": len(calls),
	})

	if len(calls) > h.opts.safety.MaxToolsPerRequest {
		return "", nil, &ClientError{Err: fmt.Errorf("%w: %d calls, limit %d",
			ErrTooManyToolCalls, len(calls), h.opts.safety.MaxToolsPerRequest)}
	}
	if len(calls) > 0 {
		text = RemoveToolCalls(text)
	}
	return text, calls, nil
}

