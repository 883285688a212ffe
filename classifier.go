package streamhost

import (
	"encoding/json"
	"regexp"
	"strings"
)

// parserState is the classifier's position in the stream.
type parserState int

const (
	stateNarrative parserState = iota
	stateMaybeToolStart
	stateInToolCall
	stateAfterToolCall
)

const (
	// DefaultMaxBufferChars is how much narrative the classifier buffers before
	// forcing an emission.
	DefaultMaxBufferChars = 200

	// maybeToolStartLimit bounds how long a suspected tool start may stay
	// unresolved before it is reclassified as narrative.
	maybeToolStartLimit = 50
)

// toolStartPattern flags buffers that may be opening a tool call: a JSON object
// with a "tool" key, an explicit [TOOL or <tool> marker, or '{' at line start.
var toolStartPattern = regexp.MustCompile(`(?m)\{["'\s]*tool["'\s]*:|\[TOOL|<tool>|^[ \t]*\{`)

// Classifier consumes incrementally arriving text fragments and emits
// classified spans: narrative, complete tool-call objects, or pending text.
// It buffers across calls within a state and clears the buffer on every
// emission. A Classifier is single-owner mutable state: use it from one
// goroutine only (Pipeline runs exactly one per stream).
type Classifier struct {
	buf       strings.Builder
	state     parserState
	maxBuffer int
}

// NewClassifier returns a Classifier. maxBufferChars bounds narrative
// buffering; values <= 0 select DefaultMaxBufferChars.
func NewClassifier(maxBufferChars int) *Classifier {
	if maxBufferChars <= 0 {
		maxBufferChars = DefaultMaxBufferChars
	}
	return &Classifier{maxBuffer: maxBufferChars}
}

// Process appends one fragment and advances the state machine until no
// further progress is possible on the current buffer. It returns the spans
// emitted and any complete, parsed tool calls. The returned calls are the
// execution triggers; a ClassToolCall span only mirrors what was consumed
// from the display's point of view.
//
// Running to a fixpoint rather than one step per call makes the
// concatenated output independent of how the stream was fragmented.
func (c *Classifier) Process(fragment string) ([]Token, []ToolCall) {
	c.buf.WriteString(fragment)

	var toks []Token
	var calls []ToolCall
	for c.step(&toks, &calls) {
	}
	return toks, calls
}

// step runs one transition and reports whether it made progress (emitted
// spans, consumed buffer, or changed state).
func (c *Classifier) step(toks *[]Token, calls *[]ToolCall) bool {
	buf := c.buf.String()

	switch c.state {
	case stateNarrative:
		if buf == "" {
			return false
		}
		if loc := toolStartPattern.FindStringIndex(buf); loc != nil {
			// Everything before the suspected start is plain narrative.
			if loc[0] > 0 {
				*toks = append(*toks, Token{Class: ClassNarrative, Text: buf[:loc[0]]})
				c.setBuf(buf[loc[0]:])
			}
			c.state = stateMaybeToolStart
			return true
		}
		if len(buf) > c.maxBuffer || strings.HasSuffix(buf, "\n") || strings.HasSuffix(buf, ". ") {
			// Buffer cap or a natural boundary, safe to emit.
			*toks = append(*toks, Token{Class: ClassNarrative, Text: buf})
			c.buf.Reset()
			return true
		}
		return false

	case stateMaybeToolStart:
		start := strings.IndexByte(buf, '{')
		if start < 0 {
			// A [TOOL / <tool> marker that never opens an object is prose.
			if len(buf) > maybeToolStartLimit {
				*toks = append(*toks, Token{Class: ClassNarrative, Text: buf})
				c.buf.Reset()
				c.state = stateNarrative
				return true
			}
			return false
		}
		if end, ok := balancedObjectEnd(buf, start); ok {
			return c.completeObject(toks, calls, buf, start, end)
		}
		// Object opened but not yet closed.
		c.state = stateInToolCall
		return true

	case stateInToolCall:
		start := strings.IndexByte(buf, '{')
		if start < 0 {
			c.state = stateNarrative
			return true
		}
		if end, ok := balancedObjectEnd(buf, start); ok {
			return c.completeObject(toks, calls, buf, start, end)
		}
		// Still open; wait for more input. Stream end flushes the
		// remainder as display text.
		return false

	case stateAfterToolCall:
		// Accumulate separator whitespace; anything else restarts the
		// narrative rules.
		if strings.TrimSpace(buf) == "" {
			return false
		}
		c.state = stateNarrative
		return true
	}
	return false
}

// completeObject consumes a balanced {...} object ending at end. A valid
// {tool, params} object becomes a tool call; anything else is prose.
func (c *Classifier) completeObject(toks *[]Token, calls *[]ToolCall, buf string, start, end int) bool {
	if call, ok := parseToolCall(buf[start:end]); ok {
		*toks = append(*toks, Token{Class: ClassToolCall, Text: buf[:end]})
		*calls = append(*calls, call)
		c.setBuf(buf[end:])
		c.state = stateAfterToolCall
		return true
	}
	*toks = append(*toks, Token{Class: ClassNarrative, Text: buf[:end]})
	c.setBuf(buf[end:])
	c.state = stateNarrative
	return true
}

func (c *Classifier) setBuf(s string) {
	c.buf.Reset()
	c.buf.WriteString(s)
}

// Flush drains the residual buffer at stream end. A buffer still inside a tool
// call flushes as a ClassToolCall span so the unterminated call is at least
// visible as text; it never produces a parsed ToolCall, so consumers must not
// treat a flushed span as an execution trigger.
func (c *Classifier) Flush() (Token, bool) {
	if c.buf.Len() == 0 {
		c.reset()
		return Token{}, false
	}
	tok := Token{Class: ClassNarrative, Text: c.buf.String()}
	if c.state == stateInToolCall {
		tok.Class = ClassToolCall
	}
	c.reset()
	return tok, true
}

func (c *Classifier) reset() {
	c.buf.Reset()
	c.state = stateNarrative
}

// parseToolCall strictly parses buf as a {tool, params} object. No repair is
// attempted here: mid-stream, malformed JSON is prose.
func parseToolCall(buf string) (ToolCall, bool) {
	var call ToolCall
	if err := json.Unmarshal([]byte(buf), &call); err != nil {
		return ToolCall{}, false
	}
	if call.Tool == "" || call.Params == nil {
		return ToolCall{}, false
	}
	return call, true
}
