package streamhost

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// EventType discriminates instrumentation events in the JSONL log.
type EventType string

const (
	EventPromptEnhancementStart    EventType = "prompt_enhancement_start"
	EventPromptEnhancementComplete EventType = "prompt_enhancement_complete"
	EventToolDetectionStart        EventType = "tool_detection_start"
	EventToolDetectionComplete     EventType = "tool_detection_complete"
	EventToolExecutionStart        EventType = "tool_execution_start"
	EventToolExecutionComplete     EventType = "tool_execution_complete"
	EventToolExecutionError        EventType = "tool_execution_error"
	EventContinuationRequest       EventType = "continuation_request"
	EventContinuationResponse      EventType = "continuation_response"
	EventTokenClassified           EventType = "token_classified"
	EventPerformanceMetric         EventType = "performance_metric"
)

// Event is one instrumentation record: an event-type discriminator, a
// timestamp, and free-form details. One JSON object per log line.
type Event struct {
	EventType  EventType      `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	TurnID     string         `json:"turn_id,omitempty"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// InstrumentationConfig controls the debug log sink.
type InstrumentationConfig struct {
	// LogPath is the append-only JSONL file. Empty disables instrumentation.
	LogPath string `yaml:"log_path"`
	// LogTokenClassifications emits one event per classified span. Verbose.
	LogTokenClassifications bool `yaml:"log_token_classifications"`
	// LogPerformanceMetrics emits timing events around tool execution.
	LogPerformanceMetrics bool `yaml:"log_performance_metrics"`
}

// Collector receives events fire-and-forget and appends them as JSONL through
// a single background writer. Emit never blocks the calling pipeline: the
// queue is unbounded and drained by one goroutine. A nil *Collector is a
// valid no-op sink.
type Collector struct {
	cfg InstrumentationConfig

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	done   chan struct{}
}

// NewCollector opens (or creates) the append-only log at cfg.LogPath and
// starts the writer goroutine. Returns (nil, nil) when LogPath is empty.
// Callers must Close to flush.
func NewCollector(cfg InstrumentationConfig) (*Collector, error) {
	if cfg.LogPath == "" {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: open %s: %w", cfg.LogPath, err)
	}
	c := &Collector{cfg: cfg, done: make(chan struct{})}
	c.cond = sync.NewCond(&c.mu)
	go c.run(f)
	return c, nil
}

// Emit queues one event. Safe for concurrent use; never blocks on I/O.
func (c *Collector) Emit(t EventType, details map[string]any) {
	c.emit(Event{EventType: t, Details: details})
}

// EmitTimed queues one event carrying a duration. Timing events are
// dropped unless LogPerformanceMetrics is set.
func (c *Collector) EmitTimed(t EventType, d time.Duration, details map[string]any) {
	if !c.LogsPerformance() {
		return
	}
	ms := d.Milliseconds()
	c.emit(Event{EventType: t, DurationMS: &ms, Details: details})
}

// EmitTurn queues one event tagged with a turn ID.
func (c *Collector) EmitTurn(t EventType, turnID string, details map[string]any) {
	c.emit(Event{EventType: t, TurnID: turnID, Details: details})
}

// EmitTurnTimed queues one event tagged with a turn ID and carrying a
// duration, subject to the same LogPerformanceMetrics gate as EmitTimed.
func (c *Collector) EmitTurnTimed(t EventType, turnID string, d time.Duration, details map[string]any) {
	if !c.LogsPerformance() {
		return
	}
	ms := d.Milliseconds()
	c.emit(Event{EventType: t, TurnID: turnID, DurationMS: &ms, Details: details})
}

func (c *Collector) emit(ev Event) {
	if c == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	c.mu.Lock()
	if !c.closed {
		c.queue = append(c.queue, ev)
		c.cond.Signal()
	}
	c.mu.Unlock()
}

// LogsClassifications reports whether per-span classification events are wanted.
func (c *Collector) LogsClassifications() bool {
	return c != nil && c.cfg.LogTokenClassifications
}

// LogsPerformance reports whether timing events are wanted.
func (c *Collector) LogsPerformance() bool {
	return c != nil && c.cfg.LogPerformanceMetrics
}

// Close stops accepting events, waits for the writer to drain the queue, and
// closes the file. Safe to call twice; safe on a nil Collector.
func (c *Collector) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.cond.Signal()
	c.mu.Unlock()
	<-c.done
	return nil
}

// run is the single writer: it swaps the queue out under the lock, then
// serializes and appends outside it. Events are written at least once in
// emission order.
func (c *Collector) run(f *os.File) {
	defer close(c.done)
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		batch := c.queue
		c.queue = nil
		closed := c.closed
		c.mu.Unlock()

		for _, ev := range batch {
			b, err := json.Marshal(ev)
			if err != nil {
				fmt.Fprintf(os.Stderr, "instrumentation: marshal: %v\n", err)
				continue
			}
			w.Write(b)
			w.WriteByte('\n')
		}
		w.Flush()

		if closed && len(batch) == 0 {
			return
		}
		if closed {
			// Drain once more in case events raced with Close.
			c.mu.Lock()
			empty := len(c.queue) == 0
			c.mu.Unlock()
			if empty {
				return
			}
		}
	}
}

// ToolStats aggregates per-tool numbers from an instrumentation log.
type ToolStats struct {
	TotalCalls      int
	SuccessfulCalls int
	TotalDurationMS int64
	MaxDurationMS   int64
}

// AnalyzeLog reads a JSONL instrumentation file and aggregates tool execution
// stats by tool name. Unparseable lines are skipped. Execution timing is
// only recorded when the log was written with LogPerformanceMetrics set.
func AnalyzeLog(path string) (map[string]ToolStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stats := make(map[string]ToolStats)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		if ev.EventType != EventToolExecutionComplete {
			continue
		}
		name, _ := ev.Details["tool_name"].(string)
		if name == "" {
			continue
		}
		s := stats[name]
		s.TotalCalls++
		if success, _ := ev.Details["success"].(bool); success {
			s.SuccessfulCalls++
		}
		if ev.DurationMS != nil {
			s.TotalDurationMS += *ev.DurationMS
			if *ev.DurationMS > s.MaxDurationMS {
				s.MaxDurationMS = *ev.DurationMS
			}
		}
		stats[name] = s
	}
	return stats, sc.Err()
}
