// Package ollama adapts the Ollama native HTTP API to the streamhost
// Generator interface, including the streaming fragment source the
// pipeline consumes.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skosovsky/streamhost"
)

const (
	// DefaultBaseURL is the local Ollama daemon.
	DefaultBaseURL = "http://localhost:11434"

	defaultTimeout = 120 * time.Second
)

// Client calls the Ollama /api/generate endpoint. Implements
// streamhost.Generator.
type Client struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
}

var _ streamhost.Generator = (*Client)(nil)

// NewClient creates a client for the given base URL and model. An empty
// baseURL selects the local daemon.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		Model:   model,
		HTTP:    &http.Client{Timeout: defaultTimeout},
	}
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Stop    []string `json:"stop,omitempty"`
	Options options  `json:"options"`
}

type options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate runs a non-streaming completion.
func (c *Client) Generate(ctx context.Context, req streamhost.GenerateRequest) (*streamhost.GenerateResponse, error) {
	body, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var gr generateResponse
	if err := json.NewDecoder(body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	resp := &streamhost.GenerateResponse{
		Text:         gr.Response,
		FinishReason: gr.DoneReason,
	}
	if gr.PromptEvalCount > 0 || gr.EvalCount > 0 {
		resp.Usage = &streamhost.TokenUsage{
			PromptTokens:     gr.PromptEvalCount,
			CompletionTokens: gr.EvalCount,
			TotalTokens:      gr.PromptEvalCount + gr.EvalCount,
		}
	}
	return resp, nil
}

// Stream runs a streaming completion, delivering response fragments as
// Ollama emits them. The fragment channel closes when the stream ends;
// a failure mid-stream is delivered on the error channel (capacity 1)
// after the fragment channel closes.
func (c *Client) Stream(ctx context.Context, req streamhost.GenerateRequest) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(fragments)
		defer close(errs)

		body, err := c.post(ctx, req, true)
		if err != nil {
			errs <- err
			return
		}
		defer body.Close()

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var gr generateResponse
			if err := json.Unmarshal(line, &gr); err != nil {
				errs <- fmt.Errorf("ollama: decode stream line: %w", err)
				return
			}
			if gr.Response != "" {
				select {
				case fragments <- gr.Response:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if gr.Done {
				return
			}
		}
		if err := sc.Err(); err != nil {
			errs <- fmt.Errorf("ollama: read stream: %w", err)
		}
	}()

	return fragments, errs
}

func (c *Client) post(ctx context.Context, req streamhost.GenerateRequest, stream bool) (io.ReadCloser, error) {
	payload := generateRequest{
		Model:  c.Model,
		Prompt: req.Prompt,
		Stream: stream,
		Stop:   req.StopSequences,
		Options: options{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: API error %d: %s", resp.StatusCode, bytes.TrimSpace(text))
	}
	return resp.Body, nil
}
