// Package rpc exposes the retrieval service as an MCP tool server.
//
// Every tool call runs the same gate sequence: resolve the caller from the
// optional auth_token argument, admit it through the inbound rate limiter,
// then run the handler. Failures never surface as protocol errors; they are
// serialized into the standard error envelope and returned with the
// result's error flag set, so an agent can always parse the body.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/webgrab/webgrab/antidetect"
	"github.com/webgrab/webgrab/auth"
	"github.com/webgrab/webgrab/models"
	"github.com/webgrab/webgrab/service"
)

type handlerFunc func(ctx context.Context, caller auth.Caller, args map[string]any) (any, *models.ToolError)

// Server routes tool calls into a service context.
type Server struct {
	svc      *service.Service
	handlers map[string]handlerFunc
}

// New builds the tool router over one service context.
func New(svc *service.Service) *Server {
	s := &Server{svc: svc}
	s.handlers = map[string]handlerFunc{
		"ping":              s.handlePing,
		"set_antidetection": s.handleSetAntidetection,
		"get_content":       s.handleGetContent,
		"get_structure":     s.handleGetStructure,
		"get_session_info":  s.handleGetSessionInfo,
		"get_session_chunk": s.handleGetSessionChunk,
		"get_session":       s.handleGetSession,
		"get_session_urls":  s.handleGetSessionURLs,
		"list_sessions":     s.handleListSessions,
	}
	return s
}

// MCPServer assembles the mcp-go server with every tool registered.
// The caller picks the transport (stdio or streamable HTTP).
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		service.Name,
		service.Version,
		server.WithToolCapabilities(false),
	)
	for _, tool := range toolDefinitions() {
		srv.AddTool(tool, s.toolHandler(tool.Name))
	}
	return srv
}

// Dispatch runs one named tool call against the service. Unknown names
// get an UNKNOWN_TOOL envelope rather than a transport error, so agents
// that guess tool names still receive machine-readable guidance.
func (s *Server) Dispatch(ctx context.Context, name string, args map[string]any) (any, *models.ToolError) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, models.NewToolError(models.ErrCodeUnknownTool,
			fmt.Sprintf("unknown tool %q", name), nil).
			WithDetail("tool", name)
	}

	token, terr := argString(args, "auth_token")
	if terr != nil {
		return nil, terr
	}
	caller, terr := s.svc.Auth().Resolve(token)
	if terr != nil {
		slog.Warn("tool call rejected", "tool", name, "error_code", terr.Code)
		return nil, terr
	}
	if terr := s.svc.Limiter().Allow(caller.Identity()); terr != nil {
		slog.Warn("tool call throttled", "tool", name, "identity", caller.Identity())
		return nil, terr
	}

	started := time.Now()
	out, terr := h(ctx, caller, args)
	if terr != nil {
		slog.Warn("tool call failed",
			"tool", name,
			"identity", caller.Identity(),
			"error_code", terr.Code,
			"duration_ms", time.Since(started).Milliseconds())
		return nil, terr
	}
	slog.Info("tool call",
		"tool", name,
		"identity", caller.Identity(),
		"duration_ms", time.Since(started).Milliseconds())
	return out, nil
}

// toolHandler bridges one registered tool into Dispatch. Panics in a
// handler must not kill the transport loop, so they are converted into
// INTERNAL_ERROR envelopes here.
func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("tool handler panic", "tool", name, "panic", r)
				result = errorResult(models.NewToolError(models.ErrCodeInternal,
					fmt.Sprintf("internal error in %s", name), nil))
				err = nil
			}
		}()

		out, terr := s.Dispatch(ctx, name, request.GetArguments())
		if terr != nil {
			return errorResult(terr), nil
		}
		body, merr := json.Marshal(out)
		if merr != nil {
			return errorResult(models.NewToolError(models.ErrCodeInternal,
				"cannot serialize tool result", merr)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func errorResult(terr *models.ToolError) *mcp.CallToolResult {
	body, err := json.Marshal(terr.ToEnvelope())
	if err != nil {
		return mcp.NewToolResultError(`{"success":false,"error_code":"INTERNAL_ERROR","message":"cannot serialize error"}`)
	}
	return mcp.NewToolResultError(string(body))
}

func (s *Server) handlePing(_ context.Context, _ auth.Caller, _ map[string]any) (any, *models.ToolError) {
	return s.svc.Ping(), nil
}

func (s *Server) handleSetAntidetection(_ context.Context, _ auth.Caller, args map[string]any) (any, *models.ToolError) {
	profile, terr := requireString(args, "profile")
	if terr != nil {
		return nil, terr
	}
	headers, terr := argStringMap(args, "custom_headers")
	if terr != nil {
		return nil, terr
	}
	userAgent, terr := argString(args, "custom_user_agent")
	if terr != nil {
		return nil, terr
	}
	delay, terr := argFloatPtr(args, "rate_limit_delay")
	if terr != nil {
		return nil, terr
	}
	maxChars, terr := argIntPtr(args, "max_response_chars")
	if terr != nil {
		return nil, terr
	}
	return s.svc.Configure(antidetect.Params{
		Profile:          profile,
		CustomHeaders:    headers,
		CustomUserAgent:  userAgent,
		RateLimitDelay:   delay,
		MaxResponseChars: maxChars,
	})
}

func (s *Server) handleGetContent(ctx context.Context, caller auth.Caller, args map[string]any) (any, *models.ToolError) {
	url, terr := requireString(args, "url")
	if terr != nil {
		return nil, terr
	}
	req := &models.ContentRequest{URL: url}
	if req.Depth, terr = argInt(args, "depth", 0); terr != nil {
		return nil, terr
	}
	if req.MaxPagesPerLevel, terr = argInt(args, "max_pages_per_level", 0); terr != nil {
		return nil, terr
	}
	if req.Selector, terr = argString(args, "selector"); terr != nil {
		return nil, terr
	}
	if req.IncludeLinks, terr = argBoolPtr(args, "include_links"); terr != nil {
		return nil, terr
	}
	if req.IncludeImages, terr = argBool(args, "include_images", false); terr != nil {
		return nil, terr
	}
	if req.IncludeMeta, terr = argBool(args, "include_meta", false); terr != nil {
		return nil, terr
	}
	if req.FilterNoise, terr = argBoolPtr(args, "filter_noise"); terr != nil {
		return nil, terr
	}
	if req.Session, terr = argBool(args, "session", false); terr != nil {
		return nil, terr
	}
	if req.ChunkSize, terr = argInt(args, "chunk_size", 0); terr != nil {
		return nil, terr
	}
	if req.MaxBytes, terr = argInt(args, "max_bytes", 0); terr != nil {
		return nil, terr
	}
	if req.TimeoutSeconds, terr = argFloat(args, "timeout_seconds", 0); terr != nil {
		return nil, terr
	}
	if req.ParseResults, terr = argBool(args, "parse_results", false); terr != nil {
		return nil, terr
	}
	if req.SourceProfileName, terr = argString(args, "source_profile_name"); terr != nil {
		return nil, terr
	}
	if req.ExtractMode, terr = argString(args, "extract_mode"); terr != nil {
		return nil, terr
	}
	if req.OutputFormat, terr = argString(args, "output_format"); terr != nil {
		return nil, terr
	}
	return s.svc.GetContent(ctx, req, caller)
}

func (s *Server) handleGetStructure(ctx context.Context, _ auth.Caller, args map[string]any) (any, *models.ToolError) {
	url, terr := requireString(args, "url")
	if terr != nil {
		return nil, terr
	}
	req := &models.StructureRequest{URL: url}
	if req.Selector, terr = argString(args, "selector"); terr != nil {
		return nil, terr
	}
	if req.IncludeMeta, terr = argBoolPtr(args, "include_meta"); terr != nil {
		return nil, terr
	}
	if req.TimeoutSeconds, terr = argFloat(args, "timeout_seconds", 0); terr != nil {
		return nil, terr
	}
	return s.svc.GetStructure(ctx, req)
}

func (s *Server) handleGetSessionInfo(_ context.Context, caller auth.Caller, args map[string]any) (any, *models.ToolError) {
	guid, terr := requireString(args, "session_id")
	if terr != nil {
		return nil, terr
	}
	return s.svc.SessionInfo(guid, caller)
}

func (s *Server) handleGetSessionChunk(_ context.Context, caller auth.Caller, args map[string]any) (any, *models.ToolError) {
	guid, terr := requireString(args, "session_id")
	if terr != nil {
		return nil, terr
	}
	if _, ok := args["chunk_index"]; !ok {
		return nil, missingArg("chunk_index")
	}
	index, terr := argInt(args, "chunk_index", 0)
	if terr != nil {
		return nil, terr
	}
	return s.svc.SessionChunk(guid, index, caller)
}

func (s *Server) handleGetSession(ctx context.Context, caller auth.Caller, args map[string]any) (any, *models.ToolError) {
	guid, terr := requireString(args, "session_id")
	if terr != nil {
		return nil, terr
	}
	maxBytes, terr := argInt(args, "max_bytes", 0)
	if terr != nil {
		return nil, terr
	}
	seconds, terr := argFloat(args, "timeout_seconds", 0)
	if terr != nil {
		return nil, terr
	}
	var timeout time.Duration
	if seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}
	return s.svc.SessionRead(ctx, guid, caller, int64(maxBytes), timeout)
}

func (s *Server) handleGetSessionURLs(_ context.Context, caller auth.Caller, args map[string]any) (any, *models.ToolError) {
	guid, terr := requireString(args, "session_id")
	if terr != nil {
		return nil, terr
	}
	asJSON, terr := argBool(args, "as_json", true)
	if terr != nil {
		return nil, terr
	}
	baseURL, terr := argString(args, "base_url")
	if terr != nil {
		return nil, terr
	}
	return s.svc.SessionURLs(guid, caller, asJSON, baseURL)
}

func (s *Server) handleListSessions(_ context.Context, caller auth.Caller, _ map[string]any) (any, *models.ToolError) {
	return s.svc.ListSessions(caller)
}
