package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/webgrab/webgrab/config"
	"github.com/webgrab/webgrab/models"
	"github.com/webgrab/webgrab/service"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := &config.Config{
		Server:  config.ServerConfig{WebURL: "http://localhost:8080"},
		Storage: config.StorageConfig{Root: t.TempDir(), ChunkSize: 50000},
		Fetch: config.FetchConfig{
			Timeout:          5 * time.Second,
			MaxResponseChars: 100000,
			AllowPrivateURLs: true,
		},
		RateLimit: config.RateLimitConfig{MaxCalls: 60, WindowSeconds: 60},
	}
	if mutate != nil {
		mutate(cfg)
	}
	svc, err := service.New(cfg)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	return New(svc)
}

func newPageServer(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const notePage = `<!DOCTYPE html>
<html lang="en"><head><title>Release Notes</title></head>
<body><h1>Release Notes</h1><p>The cache layer was rewritten.</p>
<a href="/changelog">Changelog</a></body></html>`

func TestDispatch_UnknownTool(t *testing.T) {
	s := newTestServer(t, nil)

	_, terr := s.Dispatch(context.Background(), "grab_page", nil)
	if terr == nil || terr.Code != models.ErrCodeUnknownTool {
		t.Fatalf("err = %v, want %s", terr, models.ErrCodeUnknownTool)
	}
	if terr.Details["tool"] != "grab_page" {
		t.Errorf("details.tool = %v", terr.Details["tool"])
	}
}

func TestDispatch_Ping(t *testing.T) {
	s := newTestServer(t, nil)

	out, terr := s.Dispatch(context.Background(), "ping", map[string]any{})
	if terr != nil {
		t.Fatalf("ping: %v", terr)
	}
	pong, ok := out.(*models.PingResponse)
	if !ok {
		t.Fatalf("result type = %T", out)
	}
	if pong.Status != "ok" || pong.Service != "webgrab" {
		t.Errorf("pong = %+v", pong)
	}
}

func TestDispatch_GetContent(t *testing.T) {
	srv := newPageServer(t, notePage)
	s := newTestServer(t, nil)

	// JSON numbers and stringified numbers must both be accepted.
	out, terr := s.Dispatch(context.Background(), "get_content", map[string]any{
		"url":           srv.URL,
		"depth":         float64(1),
		"max_bytes":     "50000",
		"include_links": false,
	})
	if terr != nil {
		t.Fatalf("get_content: %v", terr)
	}
	res, ok := out.(*models.CrawlResult)
	if !ok {
		t.Fatalf("result type = %T", out)
	}
	if res.Title != "Release Notes" {
		t.Errorf("title = %q", res.Title)
	}
	if len(res.Links) != 0 {
		t.Errorf("links = %d, want 0 with include_links=false", len(res.Links))
	}
}

func TestDispatch_MissingURL(t *testing.T) {
	s := newTestServer(t, nil)

	_, terr := s.Dispatch(context.Background(), "get_content", map[string]any{})
	if terr == nil || terr.Code != models.ErrCodeInvalidArgument {
		t.Fatalf("err = %v, want %s", terr, models.ErrCodeInvalidArgument)
	}
	if terr.Details["argument"] != "url" {
		t.Errorf("details.argument = %v", terr.Details["argument"])
	}
}

func TestDispatch_RejectsUnusableArgTypes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		tool string
		args map[string]any
		arg  string
	}{
		{"bool depth", "get_content", map[string]any{"url": "http://x", "depth": true}, "depth"},
		{"array selector", "get_content", map[string]any{"url": "http://x", "selector": []any{"main"}}, "selector"},
		{"object timeout", "get_structure", map[string]any{"url": "http://x", "timeout_seconds": map[string]any{}}, "timeout_seconds"},
		{"non-numeric chunk index", "get_session_chunk", map[string]any{"session_id": "a", "chunk_index": "two"}, "chunk_index"},
		{"non-string header value", "set_antidetection", map[string]any{"profile": "custom", "custom_headers": map[string]any{"X-Tag": float64(3)}}, "custom_headers.X-Tag"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, terr := s.Dispatch(context.Background(), tc.tool, tc.args)
			if terr == nil || terr.Code != models.ErrCodeInvalidArgument {
				t.Fatalf("err = %v, want %s", terr, models.ErrCodeInvalidArgument)
			}
			if terr.Details["argument"] != tc.arg {
				t.Errorf("details.argument = %v, want %s", terr.Details["argument"], tc.arg)
			}
		})
	}
}

func TestDispatch_SessionTools(t *testing.T) {
	srv := newPageServer(t, notePage)
	s := newTestServer(t, nil)
	ctx := context.Background()

	out, terr := s.Dispatch(ctx, "get_content", map[string]any{
		"url":        srv.URL,
		"session":    true,
		"chunk_size": float64(40),
	})
	if terr != nil {
		t.Fatalf("get_content: %v", terr)
	}
	env, ok := out.(*models.SessionEnvelope)
	if !ok {
		t.Fatalf("result type = %T, want *models.SessionEnvelope", out)
	}
	if env.SessionID == "" || env.TotalChunks < 2 {
		t.Fatalf("envelope = %+v", env)
	}

	out, terr = s.Dispatch(ctx, "get_session_info", map[string]any{"session_id": env.SessionID})
	if terr != nil {
		t.Fatalf("get_session_info: %v", terr)
	}
	info := out.(*models.SessionInfo)
	if info.TotalChunks != env.TotalChunks || info.URL != srv.URL {
		t.Errorf("info = %+v", info)
	}

	// chunk_index arrives as a JSON number; a stringified index works too.
	out, terr = s.Dispatch(ctx, "get_session_chunk", map[string]any{
		"session_id":  env.SessionID,
		"chunk_index": float64(0),
	})
	if terr != nil {
		t.Fatalf("get_session_chunk: %v", terr)
	}
	first := out.(string)
	out, terr = s.Dispatch(ctx, "get_session_chunk", map[string]any{
		"session_id":  env.SessionID,
		"chunk_index": "1",
	})
	if terr != nil {
		t.Fatalf("get_session_chunk[1]: %v", terr)
	}
	second := out.(string)
	if first == "" || second == "" || first == second {
		t.Errorf("chunks: first %d bytes, second %d bytes", len(first), len(second))
	}

	out, terr = s.Dispatch(ctx, "get_session", map[string]any{"session_id": env.SessionID})
	if terr != nil {
		t.Fatalf("get_session: %v", terr)
	}
	content := out.(*models.SessionContent)
	if int64(len(content.Content)) != env.TotalSize {
		t.Errorf("joined size = %d, want %d", len(content.Content), env.TotalSize)
	}
	if !strings.HasPrefix(content.Content, first) {
		t.Errorf("joined content does not start with chunk 0")
	}

	out, terr = s.Dispatch(ctx, "get_session_urls", map[string]any{
		"session_id": env.SessionID,
		"as_json":    false,
	})
	if terr != nil {
		t.Fatalf("get_session_urls: %v", terr)
	}
	urls := out.(*models.SessionURLs)
	if len(urls.ChunkURLs) != env.TotalChunks {
		t.Fatalf("chunk urls = %d, want %d", len(urls.ChunkURLs), env.TotalChunks)
	}
	want := "http://localhost:8080/sessions/" + env.SessionID + "/chunks/0"
	if urls.ChunkURLs[0] != want {
		t.Errorf("chunk url = %q, want %q", urls.ChunkURLs[0], want)
	}

	out, terr = s.Dispatch(ctx, "list_sessions", nil)
	if terr != nil {
		t.Fatalf("list_sessions: %v", terr)
	}
	list := out.(*models.SessionList)
	if list.Total != 1 || len(list.Sessions) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestDispatch_MissingChunkIndex(t *testing.T) {
	s := newTestServer(t, nil)

	_, terr := s.Dispatch(context.Background(), "get_session_chunk", map[string]any{"session_id": "abc"})
	if terr == nil || terr.Code != models.ErrCodeInvalidArgument {
		t.Fatalf("err = %v, want %s", terr, models.ErrCodeInvalidArgument)
	}
	if terr.Details["argument"] != "chunk_index" {
		t.Errorf("details.argument = %v", terr.Details["argument"])
	}
}

func TestDispatch_RateLimitExceeded(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{MaxCalls: 2, WindowSeconds: 60}
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, terr := s.Dispatch(ctx, "ping", nil); terr != nil {
			t.Fatalf("ping %d: %v", i, terr)
		}
	}
	_, terr := s.Dispatch(ctx, "ping", nil)
	if terr == nil || terr.Code != models.ErrCodeRateLimitExceeded {
		t.Fatalf("err = %v, want %s", terr, models.ErrCodeRateLimitExceeded)
	}
	if _, ok := terr.Details["reset_seconds"]; !ok {
		t.Errorf("details missing reset_seconds: %v", terr.Details)
	}
}

func TestDispatch_AuthOrdering(t *testing.T) {
	const secret = "rpc-test-secret"
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth = config.AuthConfig{Enabled: true, Secret: secret}
	})
	ctx := context.Background()

	// A bad token fails before argument validation ever runs.
	_, terr := s.Dispatch(ctx, "get_content", map[string]any{"auth_token": "not.a.jwt"})
	if terr == nil || terr.Code != models.ErrCodeAuth {
		t.Fatalf("err = %v, want %s", terr, models.ErrCodeAuth)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{"groups": []string{"research"}}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	out, terr := s.Dispatch(ctx, "list_sessions", map[string]any{"auth_token": token})
	if terr != nil {
		t.Fatalf("list_sessions: %v", terr)
	}
	if list := out.(*models.SessionList); list.Total != 0 {
		t.Errorf("fresh store lists %d sessions", list.Total)
	}
}

func TestToolHandler_ErrorEnvelope(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.toolHandler("get_content")

	req := mcp.CallToolRequest{}
	req.Params.Name = "get_content"
	req.Params.Arguments = map[string]any{}

	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	if !result.IsError {
		t.Fatal("result not flagged as error")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", result.Content[0])
	}
	var env struct {
		Success  bool           `json:"success"`
		Code     string         `json:"error_code"`
		Message  string         `json:"message"`
		Details  map[string]any `json:"details"`
		Recovery string         `json:"recovery_strategy"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &env); err != nil {
		t.Fatalf("envelope not JSON: %v\n%s", err, tc.Text)
	}
	if env.Success || env.Code != models.ErrCodeInvalidArgument {
		t.Errorf("envelope = %+v", env)
	}
	if env.Details["argument"] != "url" {
		t.Errorf("details.argument = %v", env.Details["argument"])
	}
	if env.Recovery == "" {
		t.Error("recovery_strategy is empty")
	}
}

func TestToolHandler_SuccessJSON(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.toolHandler("ping")

	req := mcp.CallToolRequest{}
	req.Params.Name = "ping"

	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	tc := result.Content[0].(mcp.TextContent)
	var pong models.PingResponse
	if err := json.Unmarshal([]byte(tc.Text), &pong); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if pong.Status != "ok" || pong.Service != "webgrab" || pong.Build == "" {
		t.Errorf("pong = %+v", pong)
	}
}

// Every declared tool must have a handler, and vice versa.
func TestToolDefinitions_MatchHandlers(t *testing.T) {
	s := newTestServer(t, nil)

	declared := map[string]bool{}
	for _, tool := range toolDefinitions() {
		declared[tool.Name] = true
		if _, ok := s.handlers[tool.Name]; !ok {
			t.Errorf("tool %q has no handler", tool.Name)
		}
	}
	for name := range s.handlers {
		if !declared[name] {
			t.Errorf("handler %q has no tool definition", name)
		}
	}
	if len(declared) != 9 {
		t.Errorf("declared %d tools, want 9", len(declared))
	}
}
