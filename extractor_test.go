package streamhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripThink(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no block", "hello", "hello"},
		{"leading block", "<think>reasoning here</think>\nThe answer is 4.", "The answer is 4."},
		{"multiline block", "<think>line one\nline two</think>answer", "answer"},
		{"only first block stripped", "<think>a</think>x<think>b</think>", "x<think>b</think>"},
		{"whitespace trimmed", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StripThink(tt.in))
		})
	}
}

func TestExtractToolCalls_Single(t *testing.T) {
	t.Parallel()
	text := `I'll list the files.

{"tool": "list_files", "params": {"path": "/tmp"}}`

	calls, err := ExtractToolCalls(text)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "list_files", calls[0].Tool)
	assert.JSONEq(t, `{"path": "/tmp"}`, string(calls[0].Params))
}

func TestExtractToolCalls_BackToBackWithNestedBraces(t *testing.T) {
	t.Parallel()
	text := `{"tool": "a", "params": {"q": "find {x}"}}{"tool": "b", "params": {"n": {"deep": 1}}}`

	calls, err := ExtractToolCalls(text)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Tool)
	assert.Equal(t, "b", calls[1].Tool)
	assert.JSONEq(t, `{"n": {"deep": 1}}`, string(calls[1].Params))
}

func TestExtractToolCalls_IgnoresNonToolObjects(t *testing.T) {
	t.Parallel()
	text := `Here is data: {"count": 3} and a call {"tool": "x", "params": {}} done.`

	calls, err := ExtractToolCalls(text)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "x", calls[0].Tool)
}

func TestExtractToolCalls_None(t *testing.T) {
	t.Parallel()
	calls, err := ExtractToolCalls("just prose, no JSON at all")
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestExtractToolCalls_RepairsAlmostValidJSON(t *testing.T) {
	t.Parallel()
	// Trailing comma: models emit this constantly.
	calls, err := ExtractToolCalls(`{"tool": "x", "params": {"a": 1,}}`)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "x", calls[0].Tool)
}

func TestExtractToolCalls_MalformedIsError(t *testing.T) {
	t.Parallel()
	// Tool key present but no params: not repairable into a valid call.
	_, err := ExtractToolCalls(`{"tool": "x"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedToolCall)
}

func TestExtractToolCalls_UnterminatedIgnored(t *testing.T) {
	t.Parallel()
	calls, err := ExtractToolCalls(`prose {"tool": "x", "params": {"a":`)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestRemoveToolCalls(t *testing.T) {
	t.Parallel()
	text := `Checking now.

{"tool": "list_files", "params": {"path": "/tmp"}}

Will report back.`

	got := RemoveToolCalls(text)
	assert.Equal(t, "Checking now.\n\n\n\nWill report back.", got)
	assert.NotContains(t, got, "list_files")
}

func TestRemoveToolCalls_KeepsNonToolObjects(t *testing.T) {
	t.Parallel()
	text := `data {"count": 3} end`
	assert.Equal(t, text, RemoveToolCalls(text))
}
