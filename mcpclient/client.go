// Package mcpclient is a minimal MCP (Model Context Protocol) client over
// newline-delimited JSON-RPC 2.0 on a child process's stdio. It implements
// the streamhost ToolBackend interface.
package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/skosovsky/streamhost"
)

// ProtocolVersion is the MCP protocol revision this client speaks.
const ProtocolVersion = "2024-11-05"

// Client talks JSON-RPC 2.0 to one MCP server. Requests are strictly
// sequential: one request in flight at a time, matching the line-oriented
// transport. Implements streamhost.ToolBackend.
type Client struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	nextID uint64
	log    *slog.Logger

	// set only by Connect; Close terminates the child.
	cmd *exec.Cmd
}

var _ streamhost.ToolBackend = (*Client)(nil)

// NewClient creates a client over an existing transport. Useful for tests
// and non-process transports; production callers usually want Connect.
func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{
		w:   w,
		r:   bufio.NewReader(r),
		log: slog.Default(),
	}
}

// Connect spawns the server process and attaches to its stdio. The caller
// must Close the client to terminate the child.
func Connect(ctx context.Context, command string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: spawn %s: %w", command, err)
	}

	c := NewClient(stdout, stdin)
	c.cmd = cmd
	return c, nil
}

// Close releases the transport and, for Connect-created clients, waits for
// the child process to exit.
func (c *Client) Close() error {
	if wc, ok := c.w.(io.Closer); ok {
		wc.Close()
	}
	if c.cmd != nil {
		return c.cmd.Wait()
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ServerInfo identifies the connected MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

// Initialize performs the MCP handshake and sends the initialized
// notification. Must be called once before ListTools or CallTool.
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) (*ServerInfo, error) {
	params, err := json.Marshal(map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"clientInfo": map[string]string{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.request(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}
	var init initializeResult
	if err := json.Unmarshal(raw, &init); err != nil {
		return nil, fmt.Errorf("mcp: parse initialize result: %w", err)
	}

	if err := c.notify("notifications/initialized", nil); err != nil {
		return nil, err
	}
	c.log.Debug("mcp server initialized",
		slog.String("server", init.ServerInfo.Name),
		slog.String("version", init.ServerInfo.Version))
	return &init.ServerInfo, nil
}

type toolEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]streamhost.ToolInfo, error) {
	raw, err := c.request(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []toolEntry `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp: parse tools list: %w", err)
	}

	tools := make([]streamhost.ToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, streamhost.ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return tools, nil
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallTool invokes one tool. Servers wrap results in content blocks; the
// first text block is decoded as JSON when possible and returned as a JSON
// string otherwise. A server-side isError flag becomes a Go error.
func (c *Client) CallTool(ctx context.Context, name string, paramsJSON json.RawMessage) (json.RawMessage, error) {
	args := paramsJSON
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	params, err := json.Marshal(map[string]json.RawMessage{
		"name":      json.RawMessage(fmt.Sprintf("%q", name)),
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.request(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var result struct {
		Content []contentBlock `json:"content"`
		IsError bool           `json:"isError"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp: parse tool result: %w", err)
	}

	var text string
	for _, block := range result.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if result.IsError {
		return nil, fmt.Errorf("mcp: tool %s failed: %s", name, text)
	}
	if text == "" {
		return json.RawMessage(`null`), nil
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	quoted, err := json.Marshal(text)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(quoted), nil
}

// request sends one request line and blocks for its response line.
func (c *Client) request(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if err := c.send(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	var resp rpcResponse
	for {
		line, err := c.r.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("mcp: read response: %w", err)
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("mcp: parse response: %w", err)
		}
		// Servers may interleave notifications (no id) with responses;
		// only the line answering our id terminates the wait.
		var respID uint64
		if len(resp.ID) == 0 || json.Unmarshal(resp.ID, &respID) != nil || respID != id {
			c.log.Debug("mcp: skipping non-matching line", slog.String("id", string(resp.ID)))
			continue
		}
		break
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp: %s: %w", method, resp.Error)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("mcp: %s: response has no result", method)
	}
	return resp.Result, nil
}

func (c *Client) notify(method string, params json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Client) send(req rpcRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if _, err := c.w.Write(raw); err != nil {
		return fmt.Errorf("mcp: write request: %w", err)
	}
	return nil
}
