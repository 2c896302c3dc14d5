package loadsim

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Caller issues one tool call and reports the result body plus whether the
// server marked it as an error envelope.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (body string, isError bool, err error)
}

// Client speaks JSON-RPC 2.0 to the tool server's streamable HTTP
// endpoint. Initialize must be called once before CallTool so the session
// id handshake completes.
type Client struct {
	endpoint  string
	authToken string
	hc        *http.Client

	sessionID string
	nextID    atomic.Int64
}

func NewClient(endpoint, authToken string) *Client {
	return &Client{
		endpoint:  endpoint,
		authToken: authToken,
		hc:        &http.Client{Timeout: 2 * time.Minute},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// Initialize performs the protocol handshake and captures the session id
// the server assigns.
func (c *Client) Initialize(ctx context.Context) error {
	result, header, err := c.post(ctx, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "webgrab-loadsim",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if len(result) == 0 {
		return fmt.Errorf("initialize: empty result")
	}
	if id := header.Get("Mcp-Session-Id"); id != "" {
		c.sessionID = id
	}
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// CallTool invokes one tool. The client's auth token, if any, is injected
// as the auth_token argument.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	sent := make(map[string]any, len(args)+1)
	maps.Copy(sent, args)
	if c.authToken != "" {
		sent["auth_token"] = c.authToken
	}

	result, _, err := c.post(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": sent,
	})
	if err != nil {
		return "", false, err
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", false, fmt.Errorf("decode tool result: %w", err)
	}
	var texts []string
	for _, item := range out.Content {
		if item.Type == "text" {
			texts = append(texts, item.Text)
		}
	}
	return strings.Join(texts, "\n"), out.IsError, nil
}

func (c *Client) notify(ctx context.Context, method string) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %s", resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, params any) (json.RawMessage, http.Header, error) {
	id := c.nextID.Add(1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.send(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.Header, fmt.Errorf("%s: server returned %s", method, resp.Status)
	}

	rpcResp, err := decodeResponse(resp, id)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("%s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, resp.Header, fmt.Errorf("%s: rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, resp.Header, nil
}

func (c *Client) send(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", c.sessionID)
	}
	return c.hc.Do(req)
}

// decodeResponse handles both plain JSON bodies and SSE streams; the
// streamable transport may answer with either.
func decodeResponse(resp *http.Response, wantID int64) (*rpcResponse, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		var out rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &out, nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, found := strings.CutPrefix(line, "data:")
		if !found {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		var out rpcResponse
		if err := json.Unmarshal([]byte(data), &out); err != nil {
			continue
		}
		if out.ID == wantID && (out.Result != nil || out.Error != nil) {
			return &out, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	return nil, fmt.Errorf("no response for request %d in event stream", wantID)
}
