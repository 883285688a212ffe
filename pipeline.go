package streamhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// StreamingMode determines how Pipeline wires a fragment stream. It selects
// wiring only; the classifier logic is the same in every buffering mode.
type StreamingMode interface {
	isStreamingMode()
}

// SmartBuffering classifies fragments with bounded lookahead: tool-call
// spans arrive tagged ClassToolCall so the consumer can suppress them.
// MaxBufferChars bounds narrative buffering (<= 0 uses the default).
type SmartBuffering struct {
	MaxBufferChars int
}

// Passthrough forwards every fragment unmodified as narrative. The classifier
// is never invoked and the execution channel stays empty.
type Passthrough struct{}

// WithPlaceholders classifies like SmartBuffering but substitutes Placeholder
// for tool-call spans on the display channel. Tools still execute.
type WithPlaceholders struct {
	Placeholder string
}

func (SmartBuffering) isStreamingMode()   {}
func (Passthrough) isStreamingMode()      {}
func (WithPlaceholders) isStreamingMode() {}

// Channel capacities: display events buffer generously, executions sparsely.
// A slow display consumer eventually backpressures classification, which in
// turn delays delivery (not execution) of tool completions.
const (
	displayChanCap = 100
	toolChanCap    = 10
)

// StreamHandle is an active streaming response: a display channel of
// classified tokens and an execution channel of completed tool invocations.
// Both close when their producing loop ends; the loops end independently.
type StreamHandle struct {
	Tokens <-chan Token
	Tools  <-chan ExecutedTool
}

// toolExecutor serializes all backend traffic behind one mutex: a single
// in-flight ListTools or CallTool at a time, across the pipeline and every
// orchestrator round sharing this executor.
type toolExecutor struct {
	backend   ToolBackend
	mu        sync.Mutex
	validator *SchemaValidator // nil disables parameter validation
	inst      *Collector
}

func newToolExecutor(backend ToolBackend, inst *Collector) *toolExecutor {
	return &toolExecutor{backend: backend, inst: inst}
}

func (e *toolExecutor) listTools(ctx context.Context) ([]ToolInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.ListTools(ctx)
}

// execute invokes one tool call and always produces an ExecutedTool: backend
// failures are embedded as {"error": message} results, never raised.
func (e *toolExecutor) execute(ctx context.Context, call ToolCall) ExecutedTool {
	e.inst.Emit(EventToolExecutionStart, map[string]any{
		"tool_name": call.Tool,
		"params":    json.RawMessage(call.Params),
	})

	start := time.Now()
	result, err := e.callValidated(ctx, call)
	elapsed := time.Since(start)

	executed := ExecutedTool{
		ToolName:        call.Tool,
		Parameters:      call.Params,
		ExecutionTimeMS: elapsed.Milliseconds(),
	}
	if err != nil {
		msg, mErr := json.Marshal(err.Error())
		if mErr != nil {
			msg = []byte(`"tool execution failed"`)
		}
		executed.Result = json.RawMessage(fmt.Sprintf(`{"error": %s}`, msg))
		e.inst.EmitTimed(EventToolExecutionError, elapsed, map[string]any{
			"tool_name": call.Tool,
			"error":     err.Error(),
		})
	} else {
		executed.Result = result
	}

	e.inst.EmitTimed(EventToolExecutionComplete, elapsed, map[string]any{
		"tool_name": call.Tool,
		"success":   err == nil,
	})
	return executed
}

func (e *toolExecutor) callValidated(ctx context.Context, call ToolCall) (json.RawMessage, error) {
	if e.validator != nil {
		if err := e.validator.Validate(call.Tool, call.Params); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.CallTool(ctx, call.Tool, call.Params)
}

// Pipeline wires a live fragment source through the classifier and fans
// outputs into independent display and tool-execution loops.
type Pipeline struct {
	mode StreamingMode
	exec *toolExecutor
	inst *Collector
}

// NewPipeline creates a pipeline over a tool backend. A nil mode defaults to
// SmartBuffering with the default buffer bound.
func NewPipeline(backend ToolBackend, mode StreamingMode, opts ...PipelineOption) *Pipeline {
	if mode == nil {
		mode = SmartBuffering{}
	}
	var o pipelineOptions
	for _, opt := range opts {
		opt(&o)
	}
	exec := newToolExecutor(backend, o.inst)
	exec.validator = o.validator
	return &Pipeline{mode: mode, exec: exec, inst: o.inst}
}

// Run consumes fragments until the channel closes or ctx is done, returning
// a handle over the display and execution channels. Two goroutines service
// the handle: one classifies and emits display tokens, one executes parsed
// tool calls sequentially. Each terminates when its upstream closes or ctx is
// cancelled; neither termination forces the other beyond channel closure.
func (p *Pipeline) Run(ctx context.Context, fragments <-chan string) *StreamHandle {
	tokens := make(chan Token, displayChanCap)
	tools := make(chan ExecutedTool, toolChanCap)

	switch mode := p.mode.(type) {
	case Passthrough:
		close(tools)
		go p.runPassthrough(ctx, fragments, tokens)
	case SmartBuffering:
		calls := make(chan ToolCall, toolChanCap)
		go p.runClassify(ctx, fragments, tokens, calls, nil)
		go p.runExecute(ctx, calls, tools)
	case WithPlaceholders:
		calls := make(chan ToolCall, toolChanCap)
		placeholder := mode.Placeholder
		go p.runClassify(ctx, fragments, tokens, calls, &placeholder)
		go p.runExecute(ctx, calls, tools)
	}

	return &StreamHandle{Tokens: tokens, Tools: tools}
}

func (p *Pipeline) runPassthrough(ctx context.Context, fragments <-chan string, tokens chan<- Token) {
	defer close(tokens)
	for {
		select {
		case <-ctx.Done():
			return
		case frag, ok := <-fragments:
			if !ok {
				return
			}
			if !sendToken(ctx, tokens, Token{Class: ClassNarrative, Text: frag}) {
				return
			}
		}
	}
}

// runClassify owns the single Classifier instance for this stream.
// placeholder, when non-nil, replaces tool-call spans on the display side.
func (p *Pipeline) runClassify(ctx context.Context, fragments <-chan string, tokens chan<- Token, calls chan<- ToolCall, placeholder *string) {
	defer close(tokens)
	defer close(calls)

	classifier := NewClassifier(p.maxBufferChars())
	for {
		var frag string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case frag, ok = <-fragments:
		}
		if !ok {
			// Stream end: the residual buffer flushes as display text only.
			// A flushed tool-call span never reaches the execution channel.
			if tok, ok := classifier.Flush(); ok {
				sendToken(ctx, tokens, p.displayToken(tok, placeholder))
			}
			return
		}

		toks, parsed := classifier.Process(frag)
		for _, tok := range toks {
			if p.inst.LogsClassifications() {
				p.inst.Emit(EventTokenClassified, map[string]any{
					"classification": tok.Class.String(),
					"token_length":   len(tok.Text),
				})
			}
			if !sendToken(ctx, tokens, p.displayToken(tok, placeholder)) {
				return
			}
		}
		for _, call := range parsed {
			select {
			case <-ctx.Done():
				return
			case calls <- call:
			}
		}
	}
}

func (p *Pipeline) runExecute(ctx context.Context, calls <-chan ToolCall, tools chan<- ExecutedTool) {
	defer close(tools)
	for {
		select {
		case <-ctx.Done():
			return
		case call, ok := <-calls:
			if !ok {
				return
			}
			executed := p.exec.execute(ctx, call)
			select {
			case <-ctx.Done():
				return
			case tools <- executed:
			}
		}
	}
}

func (p *Pipeline) displayToken(tok Token, placeholder *string) Token {
	if placeholder != nil && tok.Class == ClassToolCall {
		return Token{Class: ClassNarrative, Text: *placeholder}
	}
	return tok
}

func (p *Pipeline) maxBufferChars() int {
	if mode, ok := p.mode.(SmartBuffering); ok {
		return mode.MaxBufferChars
	}
	return 0
}

func sendToken(ctx context.Context, tokens chan<- Token, tok Token) bool {
	select {
	case <-ctx.Done():
		return false
	case tokens <- tok:
		return true
	}
}
