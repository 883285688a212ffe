// Package testutil provides test helpers for streamhost: scripted
// generators and tool backends, schema reflection, and fragment sources.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/skosovsky/streamhost"
)

// MockGenerator returns scripted responses in FIFO order and records every
// request it receives, including temperatures, so tests can assert on
// annealing behavior.
type MockGenerator struct {
	mu        sync.Mutex
	responses []mockResponse
	requests  []streamhost.GenerateRequest
}

type mockResponse struct {
	text string
	err  error
}

// Ensure MockGenerator implements Generator.
var _ streamhost.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a generator that will return the given texts in
// order. Once exhausted it keeps returning the last text.
func NewMockGenerator(texts ...string) *MockGenerator {
	g := &MockGenerator{}
	for _, t := range texts {
		g.responses = append(g.responses, mockResponse{text: t})
	}
	return g
}

// QueueResponse appends a scripted text response.
func (g *MockGenerator) QueueResponse(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = append(g.responses, mockResponse{text: text})
}

// QueueError appends a scripted failure.
func (g *MockGenerator) QueueError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = append(g.responses, mockResponse{err: err})
}

// Generate pops the next scripted response.
func (g *MockGenerator) Generate(_ context.Context, req streamhost.GenerateRequest) (*streamhost.GenerateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if len(g.responses) == 0 {
		return nil, fmt.Errorf("mock generator: no scripted responses")
	}
	next := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	if next.err != nil {
		return nil, next.err
	}
	return &streamhost.GenerateResponse{Text: next.text, FinishReason: "stop"}, nil
}

// Requests returns a copy of every request received so far.
func (g *MockGenerator) Requests() []streamhost.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]streamhost.GenerateRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// Temperatures returns the temperature of each request, in order.
func (g *MockGenerator) Temperatures() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	temps := make([]float64, 0, len(g.requests))
	for _, r := range g.requests {
		temps = append(temps, r.Temperature)
	}
	return temps
}

// Call records one tool invocation received by MockBackend.
type Call struct {
	Name   string
	Params json.RawMessage
}

// MockBackend serves a fixed tool catalog and scripted results, recording
// every invocation.
type MockBackend struct {
	mu      sync.Mutex
	tools   []streamhost.ToolInfo
	results map[string]json.RawMessage
	errs    map[string]error
	calls   []Call
}

// Ensure MockBackend implements ToolBackend.
var _ streamhost.ToolBackend = (*MockBackend)(nil)

// NewMockBackend creates a backend serving the given tools.
func NewMockBackend(tools ...streamhost.ToolInfo) *MockBackend {
	return &MockBackend{
		tools:   tools,
		results: map[string]json.RawMessage{},
		errs:    map[string]error{},
	}
}

// SetResult scripts the result for a tool name.
func (b *MockBackend) SetResult(name string, result json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[name] = result
}

// SetError scripts a failure for a tool name.
func (b *MockBackend) SetError(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[name] = err
}

// ListTools returns the fixed catalog.
func (b *MockBackend) ListTools(_ context.Context) ([]streamhost.ToolInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]streamhost.ToolInfo, len(b.tools))
	copy(out, b.tools)
	return out, nil
}

// CallTool records the call and returns its scripted result.
func (b *MockBackend) CallTool(_ context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, Call{Name: name, Params: params})
	if err, ok := b.errs[name]; ok {
		return nil, err
	}
	if result, ok := b.results[name]; ok {
		return result, nil
	}
	return json.RawMessage(`{}`), nil
}

// Calls returns a copy of every invocation received so far.
func (b *MockBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// ToolInfoFor builds a ToolInfo whose input schema is reflected from args,
// the way real backends derive schemas from typed parameters.
func ToolInfoFor(name, description string, args any) streamhost.ToolInfo {
	r := &jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(args)

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal schema for %s: %v", name, err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("testutil: unmarshal schema for %s: %v", name, err))
	}
	return streamhost.ToolInfo{Name: name, Description: description, InputSchema: m}
}

// FragmentChannel delivers the given fragments on a channel and closes it,
// emulating a streaming LLM source.
func FragmentChannel(fragments ...string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}
