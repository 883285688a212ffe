package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeServer implements just enough MCP over line-delimited JSON-RPC for the
// client tests: initialize, tools/list, tools/call.
func fakeServer(t *testing.T, in io.Reader, out io.WriteCloser) {
	t.Helper()
	defer out.Close()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		var req rpcRequest
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			t.Errorf("server: bad request line: %v", err)
			return
		}
		if req.ID == nil {
			// Notification; nothing to send back.
			continue
		}

		var result any
		switch req.Method {
		case "initialize":
			var params struct {
				ProtocolVersion string `json:"protocolVersion"`
			}
			json.Unmarshal(req.Params, &params)
			if params.ProtocolVersion != ProtocolVersion {
				t.Errorf("server: unexpected protocol version %q", params.ProtocolVersion)
			}
			result = map[string]any{
				"protocolVersion": ProtocolVersion,
				"serverInfo":      map[string]string{"name": "fake", "version": "1.0"},
			}
		case "tools/list":
			result = map[string]any{
				"tools": []map[string]any{{
					"name":        "list_files",
					"description": "List directory contents",
					"inputSchema": map[string]any{"type": "object"},
				}},
			}
		case "tools/call":
			var params struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			}
			json.Unmarshal(req.Params, &params)
			switch params.Name {
			case "list_files":
				result = map[string]any{
					"content": []map[string]any{{"type": "text", "text": `{"files": ["a.txt"]}`}},
				}
			case "plain_text":
				result = map[string]any{
					"content": []map[string]any{{"type": "text", "text": "not json"}},
				}
			case "broken":
				result = map[string]any{
					"isError": true,
					"content": []map[string]any{{"type": "text", "text": "tool blew up"}},
				}
			default:
				resp, _ := json.Marshal(map[string]any{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"error":   map[string]any{"code": -32601, "message": "unknown tool"},
				})
				fmt.Fprintf(out, "%s\n", resp)
				continue
			}
		default:
			t.Errorf("server: unexpected method %q", req.Method)
			return
		}

		resp, err := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
		require.NoError(t, err)
		fmt.Fprintf(out, "%s\n", resp)
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeServer(t, serverIn, serverOut)
	}()
	t.Cleanup(func() {
		clientOut.Close()
		<-done
	})
	return NewClient(clientIn, clientOut)
}

func TestClient_InitializeAndListTools(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()

	info, err := c.Initialize(ctx, "streamhost", "test")
	require.NoError(t, err)
	assert.Equal(t, "fake", info.Name)

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "list_files", tools[0].Name)
	assert.Equal(t, "List directory contents", tools[0].Description)
	assert.Equal(t, "object", tools[0].InputSchema["type"])
}

func TestClient_CallTool(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	result, err := c.CallTool(context.Background(), "list_files", json.RawMessage(`{"path": "/tmp"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"files": ["a.txt"]}`, string(result))
}

func TestClient_CallToolPlainTextResult(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	result, err := c.CallTool(context.Background(), "plain_text", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"not json"`, string(result))
}

func TestClient_CallToolServerError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	_, err := c.CallTool(context.Background(), "broken", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool blew up")
}

func TestClient_CallToolUnknownRPCError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)

	_, err := c.CallTool(context.Background(), "missing", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestClient_SkipsInterleavedNotifications(t *testing.T) {
	t.Parallel()
	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()
	c := NewClient(clientIn, clientOut)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer serverOut.Close()

		sc := bufio.NewScanner(serverIn)
		if !sc.Scan() {
			t.Error("server: no request line")
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			t.Errorf("server: bad request line: %v", err)
			return
		}

		// A server-initiated notification lands before the response; the
		// client must keep reading until its own id answers.
		fmt.Fprintln(serverOut, `{"jsonrpc": "2.0", "method": "notifications/progress", "params": {"progress": 1}}`)
		resp, _ := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"tools": []map[string]any{{"name": "list_files", "inputSchema": map[string]any{"type": "object"}}},
			},
		})
		fmt.Fprintf(serverOut, "%s\n", resp)
	}()
	t.Cleanup(func() {
		clientOut.Close()
		<-done
	})

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "list_files", tools[0].Name)
}

func TestClient_ContextAlreadyCancelled(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListTools(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
