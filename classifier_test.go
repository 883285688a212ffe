package streamhost

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canonicalStream = "He says hi.\n\n{\"tool\": \"list_files\", \"params\": {\"path\": \"/tmp\"}}"

// runClassifier feeds fragments through a fresh classifier and returns all
// emitted tokens and calls, including the flush residue.
func runClassifier(fragments ...string) ([]Token, []ToolCall) {
	c := NewClassifier(0)
	var toks []Token
	var calls []ToolCall
	for _, f := range fragments {
		ts, cs := c.Process(f)
		toks = append(toks, ts...)
		calls = append(calls, cs...)
	}
	if tok, ok := c.Flush(); ok {
		toks = append(toks, tok)
	}
	return toks, calls
}

func concatText(toks []Token) string {
	var b strings.Builder
	for _, tok := range toks {
		b.WriteString(tok.Text)
	}
	return b.String()
}

func TestClassifier_NarrativeFlushOnNewline(t *testing.T) {
	t.Parallel()
	c := NewClassifier(0)

	toks, calls := c.Process("The quick brown")
	assert.Empty(t, toks)
	assert.Empty(t, calls)

	toks, calls = c.Process(" fox.\n")
	require.Len(t, toks, 1)
	assert.Equal(t, ClassNarrative, toks[0].Class)
	assert.Equal(t, "The quick brown fox.\n", toks[0].Text)
	assert.Empty(t, calls)
}

func TestClassifier_ToolCallSingleFragment(t *testing.T) {
	t.Parallel()
	toks, calls := runClassifier(canonicalStream)

	require.Len(t, calls, 1)
	assert.Equal(t, "list_files", calls[0].Tool)
	assert.JSONEq(t, `{"path": "/tmp"}`, string(calls[0].Params))

	require.Len(t, toks, 2)
	assert.Equal(t, ClassNarrative, toks[0].Class)
	assert.Equal(t, "He says hi.\n\n", toks[0].Text)
	assert.Equal(t, ClassToolCall, toks[1].Class)
	assert.Equal(t, canonicalStream, concatText(toks))
}

func TestClassifier_SplitInvariance(t *testing.T) {
	t.Parallel()

	wantToks, wantCalls := runClassifier(canonicalStream)
	wantText := concatText(wantToks)
	require.Len(t, wantCalls, 1)

	// Every two-way split.
	for i := 1; i < len(canonicalStream); i++ {
		toks, calls := runClassifier(canonicalStream[:i], canonicalStream[i:])
		assert.Equal(t, wantText, concatText(toks), "split at %d", i)
		require.Len(t, calls, 1, "split at %d", i)
		assert.Equal(t, wantCalls[0], calls[0], "split at %d", i)
	}

	// Character by character.
	fragments := strings.Split(canonicalStream, "")
	toks, calls := runClassifier(fragments...)
	assert.Equal(t, wantText, concatText(toks))
	require.Len(t, calls, 1)
	assert.Equal(t, wantCalls[0], calls[0])
}

func TestClassifier_NoToolKey_Identity(t *testing.T) {
	t.Parallel()
	input := "Numbers like {1, 2, 3} are fine.\nAnd so is prose across\nseveral lines."

	for _, n := range []int{1, 3, 7} {
		var fragments []string
		for i := 0; i < len(input); i += n {
			end := min(i+n, len(input))
			fragments = append(fragments, input[i:end])
		}
		toks, calls := runClassifier(fragments...)
		assert.Empty(t, calls)
		assert.Equal(t, input, concatText(toks))
		for _, tok := range toks {
			assert.Equal(t, ClassNarrative, tok.Class)
		}
	}
}

func TestClassifier_BoundedBuffer(t *testing.T) {
	t.Parallel()
	c := NewClassifier(50)

	var emitted []Token
	for i := 0; i < 300; i++ {
		toks, calls := c.Process("a")
		emitted = append(emitted, toks...)
		assert.Empty(t, calls)
	}
	if tok, ok := c.Flush(); ok {
		emitted = append(emitted, tok)
	}

	require.NotEmpty(t, emitted)
	total := 0
	for _, tok := range emitted {
		assert.LessOrEqual(t, len(tok.Text), 51)
		total += len(tok.Text)
	}
	assert.Equal(t, 300, total)
}

func TestClassifier_NonToolObjectIsNarrative(t *testing.T) {
	t.Parallel()
	toks, calls := runClassifier(`{"a": 1}` + "\n")

	assert.Empty(t, calls)
	assert.Equal(t, `{"a": 1}`+"\n", concatText(toks))
	for _, tok := range toks {
		assert.Equal(t, ClassNarrative, tok.Class)
	}
}

func TestClassifier_BackToBackCalls(t *testing.T) {
	t.Parallel()
	input := `{"tool": "a", "params": {}}` + "\n" + `{"tool": "b", "params": {}}`

	_, calls := runClassifier(input)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Tool)
	assert.Equal(t, "b", calls[1].Tool)

	// Same result fed byte by byte.
	_, calls = runClassifier(strings.Split(input, "")...)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Tool)
	assert.Equal(t, "b", calls[1].Tool)
}

func TestClassifier_BracesInsideStringParams(t *testing.T) {
	t.Parallel()
	input := `{"tool": "echo", "params": {"text": "a } b { c"}}`

	_, calls := runClassifier(input)
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].Tool)
	assert.JSONEq(t, `{"text": "a } b { c"}`, string(calls[0].Params))
}

func TestClassifier_UnterminatedCallFlushesAsSpan(t *testing.T) {
	t.Parallel()
	c := NewClassifier(0)

	toks, calls := c.Process(`{"tool": "x", "params": {"path": "/tmp"`)
	assert.Empty(t, toks)
	assert.Empty(t, calls)

	tok, ok := c.Flush()
	require.True(t, ok)
	assert.Equal(t, ClassToolCall, tok.Class)
	assert.Contains(t, tok.Text, `"tool": "x"`)

	// Flush resets: the classifier is reusable.
	_, calls = c.Process("plain text\n")
	assert.Empty(t, calls)
}

func TestClassifier_MarkerWithoutObjectBecomesNarrative(t *testing.T) {
	t.Parallel()
	c := NewClassifier(0)

	var toks []Token
	ts, calls := c.Process("[TOOL")
	toks = append(toks, ts...)
	assert.Empty(t, calls)

	ts, calls = c.Process(strings.Repeat("x", 60))
	toks = append(toks, ts...)
	assert.Empty(t, calls)

	require.NotEmpty(t, toks)
	assert.Equal(t, ClassNarrative, toks[0].Class)
	assert.Equal(t, "[TOOL"+strings.Repeat("x", 60), concatText(toks))
}

func TestClassifier_FlushEmpty(t *testing.T) {
	t.Parallel()
	c := NewClassifier(0)
	_, ok := c.Flush()
	assert.False(t, ok)
}

func TestClassifier_MalformedToolObjectIsNarrative(t *testing.T) {
	t.Parallel()
	// Balanced object with a tool key but no params: prose, not a call.
	toks, calls := runClassifier(`{"tool": "x"}` + "\n")

	assert.Empty(t, calls)
	assert.Equal(t, `{"tool": "x"}`+"\n", concatText(toks))
}
