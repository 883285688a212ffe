package streamhost

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend serves fixed tools and results and records invocations.
type scriptedBackend struct {
	mu      sync.Mutex
	tools   []ToolInfo
	results map[string]json.RawMessage
	errs    map[string]error
	called  []string
}

func newScriptedBackend(tools ...ToolInfo) *scriptedBackend {
	return &scriptedBackend{
		tools:   tools,
		results: map[string]json.RawMessage{},
		errs:    map[string]error{},
	}
}

func (b *scriptedBackend) ListTools(context.Context) ([]ToolInfo, error) {
	return b.tools, nil
}

func (b *scriptedBackend) CallTool(_ context.Context, name string, _ json.RawMessage) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.called = append(b.called, name)
	if err, ok := b.errs[name]; ok {
		return nil, err
	}
	if r, ok := b.results[name]; ok {
		return r, nil
	}
	return json.RawMessage(`{}`), nil
}

func (b *scriptedBackend) callNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.called...)
}

func feedFragments(fragments ...string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func drainHandle(t *testing.T, h *StreamHandle) ([]Token, []ExecutedTool) {
	t.Helper()
	var (
		toks  []Token
		execs []ExecutedTool
		wg    sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for tok := range h.Tokens {
			toks = append(toks, tok)
		}
	}()
	go func() {
		defer wg.Done()
		for ex := range h.Tools {
			execs = append(execs, ex)
		}
	}()
	wg.Wait()
	return toks, execs
}

func TestPipeline_SmartBuffering(t *testing.T) {
	t.Parallel()
	backend := newScriptedBackend()
	backend.results["list_files"] = json.RawMessage(`{"files": ["a.txt"]}`)

	p := NewPipeline(backend, SmartBuffering{})
	handle := p.Run(context.Background(), feedFragments(
		"He says hi.\n\n",
		`{"tool": "list_files", `,
		`"params": {"path": "/tmp"}}`,
	))

	toks, execs := drainHandle(t, handle)

	require.Len(t, execs, 1)
	assert.Equal(t, "list_files", execs[0].ToolName)
	assert.JSONEq(t, `{"files": ["a.txt"]}`, string(execs[0].Result))
	assert.False(t, execs[0].Failed())

	require.NotEmpty(t, toks)
	assert.Equal(t, ClassNarrative, toks[0].Class)
	sawToolSpan := false
	for _, tok := range toks {
		if tok.Class == ClassToolCall {
			sawToolSpan = true
			assert.Contains(t, tok.Text, "list_files")
		}
	}
	assert.True(t, sawToolSpan)
	assert.Equal(t, []string{"list_files"}, backend.callNames())
}

func TestPipeline_Passthrough(t *testing.T) {
	t.Parallel()
	p := NewPipeline(newScriptedBackend(), Passthrough{})
	handle := p.Run(context.Background(), feedFragments(
		"raw ", `{"tool": "x", "params": {}}`, " text",
	))

	toks, execs := drainHandle(t, handle)

	assert.Empty(t, execs, "passthrough never executes")
	require.Len(t, toks, 3)
	var all strings.Builder
	for _, tok := range toks {
		assert.Equal(t, ClassNarrative, tok.Class)
		all.WriteString(tok.Text)
	}
	assert.Equal(t, `raw {"tool": "x", "params": {}} text`, all.String())
}

func TestPipeline_Placeholders(t *testing.T) {
	t.Parallel()
	backend := newScriptedBackend()
	p := NewPipeline(backend, WithPlaceholders{Placeholder: "[running tool...]"})
	handle := p.Run(context.Background(), feedFragments(
		"Checking.\n", `{"tool": "list_files", "params": {"path": "."}}`,
	))

	toks, execs := drainHandle(t, handle)

	require.Len(t, execs, 1, "placeholder mode still executes")
	for _, tok := range toks {
		assert.Equal(t, ClassNarrative, tok.Class)
		assert.NotContains(t, tok.Text, `"tool"`)
	}
	found := false
	for _, tok := range toks {
		if tok.Text == "[running tool...]" {
			found = true
		}
	}
	assert.True(t, found, "tool span must be replaced by the placeholder")
}

func TestPipeline_ToolFailureEmbedded(t *testing.T) {
	t.Parallel()
	backend := newScriptedBackend()
	backend.errs["broken"] = errors.New("backend exploded")

	p := NewPipeline(backend, SmartBuffering{})
	handle := p.Run(context.Background(), feedFragments(
		`{"tool": "broken", "params": {}}`,
	))

	_, execs := drainHandle(t, handle)
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Failed())
	assert.Contains(t, string(execs[0].Result), "backend exploded")
}

func TestPipeline_ValidationRejectsBeforeBackend(t *testing.T) {
	t.Parallel()
	backend := newScriptedBackend(ToolInfo{
		Name:        "list_files",
		InputSchema: fileToolSchema(),
	})
	validator := NewSchemaValidator(backend.tools)

	p := NewPipeline(backend, SmartBuffering{}, WithPipelineValidation(validator))
	handle := p.Run(context.Background(), feedFragments(
		`{"tool": "list_files", "params": {"path": 42}}`,
	))

	_, execs := drainHandle(t, handle)
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Failed())
	assert.Empty(t, backend.callNames(), "invalid params must not reach the backend")
}

func TestPipeline_UnterminatedCallNeverExecutes(t *testing.T) {
	t.Parallel()
	backend := newScriptedBackend()
	p := NewPipeline(backend, SmartBuffering{})
	handle := p.Run(context.Background(), feedFragments(
		`{"tool": "x", "params": {"a":`,
	))

	toks, execs := drainHandle(t, handle)
	assert.Empty(t, execs)
	assert.Empty(t, backend.callNames())

	// The residue is still visible as display text.
	require.NotEmpty(t, toks)
	assert.Equal(t, ClassToolCall, toks[len(toks)-1].Class)
}

func TestPipeline_ContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	fragments := make(chan string)

	p := NewPipeline(newScriptedBackend(), SmartBuffering{})
	handle := p.Run(ctx, fragments)

	fragments <- "some text"
	cancel()

	// Both channels close promptly after cancellation.
	timeout := time.After(2 * time.Second)
	for open := 2; open > 0; {
		select {
		case _, ok := <-handle.Tokens:
			if !ok {
				handle.Tokens = nil
				open--
			}
		case _, ok := <-handle.Tools:
			if !ok {
				handle.Tools = nil
				open--
			}
		case <-timeout:
			t.Fatal("pipeline did not shut down after context cancellation")
		}
	}
	close(fragments)
}