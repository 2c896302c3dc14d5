// Package service assembles the retrieval pipeline into one explicit
// dependency context. Both serving surfaces (the MCP tool server and the
// HTTP API) operate on a single Service; nothing in the pipeline lives in
// package-level state.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/webgrab/webgrab/antidetect"
	"github.com/webgrab/webgrab/auth"
	"github.com/webgrab/webgrab/config"
	"github.com/webgrab/webgrab/crawl"
	"github.com/webgrab/webgrab/extract"
	"github.com/webgrab/webgrab/fetch"
	"github.com/webgrab/webgrab/models"
	"github.com/webgrab/webgrab/newsfeed"
	"github.com/webgrab/webgrab/ratelimit"
	"github.com/webgrab/webgrab/robots"
	"github.com/webgrab/webgrab/safeurl"
	"github.com/webgrab/webgrab/session"
)

// Service identity reported by ping and the HTTP root.
const (
	Name    = "webgrab"
	Version = "1.2.0"
)

// Service owns every shared component of the retrieval pipeline.
type Service struct {
	cfg *config.Config

	state     *antidetect.State
	fetcher   *fetch.Engine
	robots    *robots.Engine
	extractor *extract.Extractor
	crawler   *crawl.Crawler
	profiles  *newsfeed.Registry
	sessions  *session.Store
	verifier  auth.Verifier
	limiter   *ratelimit.Limiter

	respectRobots bool
	started       time.Time
}

// New wires the pipeline from configuration. It starts no listener; the
// caller owns the serving loops and the housekeeper.
func New(cfg *config.Config) (*Service, error) {
	profiles, err := newsfeed.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("load source profiles: %w", err)
	}
	sessions, err := session.NewStore(cfg.Storage.Root, cfg.Storage.ChunkSize, cfg.Server.WebURL)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	state := antidetect.NewState(cfg.Fetch.RateLimitDelay, cfg.Fetch.MaxResponseChars, time.Now().UnixNano())
	validator := safeurl.New(cfg.Fetch.AllowPrivateURLs)
	fetcher := fetch.New(validator, state, fetch.Options{
		Timeout:    cfg.Fetch.Timeout,
		MaxRetries: cfg.Fetch.MaxRetries,
		BaseDelay:  cfg.Fetch.BaseDelay,
		MaxDelay:   cfg.Fetch.MaxDelay,
	})
	robotsEngine := robots.NewEngine(nil, Name)
	extractor := extract.New()

	return &Service{
		cfg:           cfg,
		state:         state,
		fetcher:       fetcher,
		robots:        robotsEngine,
		extractor:     extractor,
		crawler:       crawl.New(fetcher, extractor, robotsEngine, cfg.Fetch.RespectRobots),
		profiles:      profiles,
		sessions:      sessions,
		verifier:      auth.NewVerifier(cfg.Auth.Enabled, cfg.Auth.Secret),
		limiter:       ratelimit.New(cfg.RateLimit.MaxCalls, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second),
		respectRobots: cfg.Fetch.RespectRobots,
		started:       time.Now(),
	}, nil
}

// Auth returns the bearer-token verifier.
func (s *Service) Auth() auth.Verifier { return s.verifier }

// Limiter returns the inbound tool-call limiter.
func (s *Service) Limiter() *ratelimit.Limiter { return s.limiter }

// Store returns the session store; the housekeeper prunes through it.
func (s *Service) Store() *session.Store { return s.sessions }

// Ping answers the health tool.
func (s *Service) Ping() *models.PingResponse {
	return &models.PingResponse{
		Status:    "ok",
		Service:   Name,
		Build:     Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Identity answers GET /.
func (s *Service) Identity() *models.ServiceIdentity {
	return &models.ServiceIdentity{
		Service: Name,
		Version: Version,
		Endpoints: []string{
			"GET /",
			"GET /ping",
			"GET /health",
			"GET /sessions/:id/info",
			"GET /sessions/:id/chunks/:index",
			"GET /sessions/:id/urls",
		},
	}
}

// Health reports liveness plus a storage writability probe.
func (s *Service) Health() *models.HealthResponse {
	writable := s.storageWritable()
	status := "ok"
	if !writable {
		status = "degraded"
	}
	return &models.HealthResponse{
		Status:          status,
		Service:         Name,
		Version:         Version,
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		StorageWritable: writable,
	}
}

func (s *Service) storageWritable() bool {
	f, err := os.CreateTemp(s.sessions.Root(), ".healthcheck-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// Configure applies a set_antidetection call.
func (s *Service) Configure(p antidetect.Params) (*models.AntidetectionSnapshot, *models.ToolError) {
	snap, terr := s.state.Configure(p)
	if terr != nil {
		return nil, terr
	}
	slog.Info("anti-detection configured",
		"profile", snap.Profile,
		"rate_limit_delay", snap.RateLimitDelay,
		"max_response_chars", snap.MaxResponseChars)
	return snap, nil
}

// GetContent runs one get_content call: crawl, optional news parse, then
// either session persistence or response shaping. The return value is a
// *models.CrawlResult or, in session mode, a *models.SessionEnvelope.
func (s *Service) GetContent(ctx context.Context, req *models.ContentRequest, caller auth.Caller) (any, *models.ToolError) {
	req.Defaults()
	if req.URL == "" {
		return nil, models.NewToolError(models.ErrCodeInvalidArgument, "url is required", nil).
			WithDetail("argument", "url")
	}

	// A bad profile name must fail before any network traffic.
	var profile *newsfeed.SourceProfile
	if req.ParseResults {
		p, terr := s.profiles.Get(req.SourceProfileName)
		if terr != nil {
			return nil, terr
		}
		profile = p
	}

	result, terr := s.crawler.Run(ctx, crawl.Params{
		URL:              req.URL,
		Depth:            req.Depth,
		MaxPagesPerLevel: req.MaxPagesPerLevel,
		Selector:         req.Selector,
		ExtractMode:      req.ExtractMode,
		OutputFormat:     req.OutputFormat,
		IncludeLinks:     *req.IncludeLinks,
		IncludeImages:    req.IncludeImages,
		IncludeMeta:      req.IncludeMeta,
		FilterNoise:      *req.FilterNoise,
		Timeout:          timeoutFrom(req.TimeoutSeconds),
	})
	if terr != nil {
		return nil, terr
	}

	if req.ParseResults {
		pages, perr := newsfeed.FromCrawl(result)
		if perr != nil {
			return nil, perr
		}
		result.Parsed = newsfeed.NewParser(profile).Parse(pages, req.URL, time.Now().UTC())
	}

	if req.Session {
		body, err := json.Marshal(result)
		if err != nil {
			return nil, models.NewToolError(models.ErrCodeInternal, "cannot serialize crawl result", err)
		}
		meta, serr := s.sessions.Create(string(body), "json", caller.PrimaryGroup(), req.URL, req.ChunkSize)
		if serr != nil {
			return nil, serr
		}
		slog.Info("crawl persisted as session",
			"session_id", meta.GUID,
			"url", req.URL,
			"total_chunks", meta.Extra.TotalChunks,
			"size_bytes", meta.SizeBytes)
		return &models.SessionEnvelope{
			SessionID:   meta.GUID,
			TotalChunks: meta.Extra.TotalChunks,
			TotalSize:   meta.SizeBytes,
			ChunkSize:   meta.Extra.ChunkSize,
			Preview:     meta.Extra.Preview,
		}, nil
	}

	budget := s.state.MaxResponseChars()
	if req.MaxBytes > 0 {
		budget = req.MaxBytes
	}
	crawl.Shape(result, budget)
	return result, nil
}

// GetStructure fetches one page and reports its layout.
func (s *Service) GetStructure(ctx context.Context, req *models.StructureRequest) (*models.PageStructure, *models.ToolError) {
	req.Defaults()
	if req.URL == "" {
		return nil, models.NewToolError(models.ErrCodeInvalidArgument, "url is required", nil).
			WithDetail("argument", "url")
	}
	if terr := s.robotsAllow(ctx, req.URL); terr != nil {
		return nil, terr
	}

	res := s.fetcher.Fetch(ctx, &fetch.Request{URL: req.URL, Timeout: timeoutFrom(req.TimeoutSeconds)})
	if res.Error != nil {
		return nil, models.NewToolError(res.Error.Code, res.Error.Message, nil).
			WithDetail("url", req.URL)
	}
	if !res.Success() {
		d := crawl.ClassifyStatus(res.Status)
		return nil, models.NewToolError(d.Code, d.Message, nil).
			WithDetail("url", req.URL).
			WithDetail("status", res.Status)
	}

	return s.extractor.Analyze(res.Body, res.FinalURL, extract.StructureOptions{
		Selector:    req.Selector,
		IncludeMeta: *req.IncludeMeta,
	})
}

// robotsAllow enforces robots.txt for single-page operations. Unparseable
// URLs pass through; the fetch engine reports them properly.
func (s *Service) robotsAllow(ctx context.Context, raw string) *models.ToolError {
	if !s.respectRobots {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	allowed, _, robotsURL := s.robots.Check(ctx, u)
	if !allowed {
		return models.NewToolError(models.ErrCodeRobotsBlocked, "disallowed by "+robotsURL, nil).
			WithDetail("url", raw).
			WithDetail("robots_url", robotsURL)
	}
	return nil
}

// SessionInfo returns one session's metadata.
func (s *Service) SessionInfo(guid string, caller auth.Caller) (*models.SessionInfo, *models.ToolError) {
	return s.sessions.Info(guid, caller)
}

// SessionChunk returns one chunk of a session.
func (s *Service) SessionChunk(guid string, index int, caller auth.Caller) (string, *models.ToolError) {
	return s.sessions.Chunk(guid, index, caller)
}

// SessionRead joins every chunk of a session, subject to maxBytes and an
// overall timeout across chunks.
func (s *Service) SessionRead(ctx context.Context, guid string, caller auth.Caller, maxBytes int64, timeout time.Duration) (*models.SessionContent, *models.ToolError) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.sessions.ReadAll(ctx, guid, caller, maxBytes)
}

// SessionURLs returns a session's chunk index, structured or as URLs.
func (s *Service) SessionURLs(guid string, caller auth.Caller, asJSON bool, baseURL string) (*models.SessionURLs, *models.ToolError) {
	return s.sessions.URLs(guid, caller, asJSON, baseURL)
}

// ListSessions enumerates the sessions the caller may read.
func (s *Service) ListSessions(caller auth.Caller) (*models.SessionList, *models.ToolError) {
	return s.sessions.List(caller)
}

func timeoutFrom(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
