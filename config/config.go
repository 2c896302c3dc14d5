package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Storage      StorageConfig
	Fetch        FetchConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Housekeeping HousekeepingConfig
	Seq          SeqConfig
	Log          LogConfig
}

// ServerConfig controls the two listening surfaces.
type ServerConfig struct {
	Host string // default: "0.0.0.0"

	// WebPort serves the HTTP API.
	WebPort int // default: 8080

	// MCPPort serves the tool-call RPC over streamable HTTP.
	MCPPort int // default: 8081

	// WebURL is the public base URL used when building chunk URLs.
	WebURL string // default: "http://localhost:{WebPort}"

	// CORSOrigins lists allowed CORS origins for the HTTP API.
	CORSOrigins []string // default: ["*"]

	Mode string // "debug", "release", "test"; default: "release"
}

// StorageConfig controls the session store.
type StorageConfig struct {
	// Root is the directory holding session blobs and metadata.
	Root string // default: "./data"

	// ChunkSize is the default session chunk size in characters.
	ChunkSize int // default: 50000
}

// FetchConfig controls the outbound fetch engine.
type FetchConfig struct {
	// Timeout is the default per-request deadline.
	Timeout time.Duration // default: 30s

	// MaxRetries bounds retries on retryable statuses and transport errors.
	MaxRetries int // default: 3

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration // default: 1s

	// MaxDelay caps backoff and Retry-After waits.
	MaxDelay time.Duration // default: 30s

	// MaxResponseChars is the default inline response budget.
	MaxResponseChars int // default: 100000

	// RateLimitDelay is the default per-host pacing delay in seconds,
	// adjustable at runtime through set_antidetection.
	RateLimitDelay float64 // default: 0

	// AllowPrivateURLs disables SSRF address checks. Testing only.
	AllowPrivateURLs bool // default: false

	// RespectRobots enforces robots.txt on crawled pages. Testing-only
	// opt-out; tool responses always report it as enabled.
	RespectRobots bool // default: true
}

// AuthConfig controls bearer-token authorization.
type AuthConfig struct {
	// Enabled toggles token verification. When false every caller is
	// anonymous with full access.
	Enabled bool // default: false

	// Secret is the HS256 signing secret. Required when Enabled.
	Secret string
}

// RateLimitConfig controls the inbound sliding-window limiter on tool calls.
type RateLimitConfig struct {
	// MaxCalls per window per identity.
	MaxCalls int // default: 60

	// Window length in seconds.
	WindowSeconds int // default: 60
}

// HousekeepingConfig controls the periodic storage pruner.
type HousekeepingConfig struct {
	// Interval between prune runs.
	Interval time.Duration // default: 60m

	// MaxStorageMB is the prune target for the whole store.
	MaxStorageMB int // default: 1024

	// LockStale is how old the prune lock may be before it is reclaimed.
	LockStale time.Duration // default: 1h, floor: 30s
}

// SeqConfig controls the optional Seq log sink.
type SeqConfig struct {
	// URL is the Seq ingestion base URL. Empty disables the sink.
	URL string

	// APIKey is sent as X-Seq-ApiKey.
	APIKey string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	webPort := envIntOr("WEBGRAB_WEB_PORT", 8080)

	cfg := &Config{
		Server: ServerConfig{
			Host:        envOr("WEBGRAB_HOST", "0.0.0.0"),
			WebPort:     webPort,
			MCPPort:     envIntOr("WEBGRAB_MCP_PORT", 8081),
			WebURL:      envOr("WEBGRAB_WEB_URL", fmt.Sprintf("http://localhost:%d", webPort)),
			CORSOrigins: envSliceOr("WEBGRAB_CORS_ORIGINS", []string{"*"}),
			Mode:        envOr("WEBGRAB_MODE", "release"),
		},
		Storage: StorageConfig{
			Root:      envOr("WEBGRAB_STORAGE", "./data"),
			ChunkSize: envIntOr("WEBGRAB_CHUNK_SIZE", 50000),
		},
		Fetch: FetchConfig{
			Timeout:          envDurationOr("WEBGRAB_FETCH_TIMEOUT", 30*time.Second),
			MaxRetries:       envIntOr("WEBGRAB_FETCH_MAX_RETRIES", 3),
			BaseDelay:        envDurationOr("WEBGRAB_FETCH_BASE_DELAY", time.Second),
			MaxDelay:         envDurationOr("WEBGRAB_FETCH_MAX_DELAY", 30*time.Second),
			MaxResponseChars: envIntOr("WEBGRAB_MAX_RESPONSE_CHARS", 100000),
			RateLimitDelay:   envFloatOr("WEBGRAB_RATE_LIMIT_DELAY", 0),
			AllowPrivateURLs: envBoolOr("WEBGRAB_ALLOW_PRIVATE_URLS", false),
			RespectRobots:    envBoolOr("WEBGRAB_RESPECT_ROBOTS", true),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("WEBGRAB_AUTH_ENABLED", false),
			Secret:  os.Getenv("WEBGRAB_AUTH_SECRET"),
		},
		RateLimit: RateLimitConfig{
			MaxCalls:      envIntOr("WEBGRAB_RATE_LIMIT_CALLS", 60),
			WindowSeconds: envIntOr("WEBGRAB_RATE_LIMIT_WINDOW", 60),
		},
		Housekeeping: HousekeepingConfig{
			Interval:     time.Duration(envIntOr("WEBGRAB_HOUSEKEEPING_INTERVAL_MINS", 60)) * time.Minute,
			MaxStorageMB: envIntOr("WEBGRAB_MAX_STORAGE_MB", 1024),
			LockStale:    time.Duration(envIntOr("WEBGRAB_HOUSEKEEPER_LOCK_STALE_SECONDS", 3600)) * time.Second,
		},
		Seq: SeqConfig{
			URL:    os.Getenv("WEBGRAB_SEQ_URL"),
			APIKey: os.Getenv("WEBGRAB_SEQ_API_KEY"),
		},
		Log: LogConfig{
			Level:  envOr("WEBGRAB_LOG_LEVEL", "info"),
			Format: envOr("WEBGRAB_LOG_FORMAT", "json"),
		},
	}

	if cfg.Housekeeping.LockStale < 30*time.Second {
		cfg.Housekeeping.LockStale = 30 * time.Second
	}
	return cfg
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.WebPort <= 0 || c.Server.WebPort > 65535 {
		return fmt.Errorf("WEBGRAB_WEB_PORT out of range: %d", c.Server.WebPort)
	}
	if c.Server.MCPPort <= 0 || c.Server.MCPPort > 65535 {
		return fmt.Errorf("WEBGRAB_MCP_PORT out of range: %d", c.Server.MCPPort)
	}
	if c.Server.WebPort == c.Server.MCPPort {
		return fmt.Errorf("WEBGRAB_WEB_PORT and WEBGRAB_MCP_PORT must differ")
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("WEBGRAB_STORAGE must not be empty")
	}
	if c.Storage.ChunkSize <= 0 {
		return fmt.Errorf("WEBGRAB_CHUNK_SIZE must be positive: %d", c.Storage.ChunkSize)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("WEBGRAB_FETCH_MAX_RETRIES must be >= 0: %d", c.Fetch.MaxRetries)
	}
	if c.Fetch.MaxResponseChars < 4000 || c.Fetch.MaxResponseChars > 4000000 {
		return fmt.Errorf("WEBGRAB_MAX_RESPONSE_CHARS out of [4000,4000000]: %d", c.Fetch.MaxResponseChars)
	}
	if c.Fetch.RateLimitDelay < 0 {
		return fmt.Errorf("WEBGRAB_RATE_LIMIT_DELAY must be >= 0: %f", c.Fetch.RateLimitDelay)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("WEBGRAB_AUTH_SECRET is required when WEBGRAB_AUTH_ENABLED=true")
	}
	if c.RateLimit.MaxCalls <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate limit parameters must be positive: calls=%d window=%d",
			c.RateLimit.MaxCalls, c.RateLimit.WindowSeconds)
	}
	if c.Housekeeping.MaxStorageMB <= 0 {
		return fmt.Errorf("WEBGRAB_MAX_STORAGE_MB must be positive: %d", c.Housekeeping.MaxStorageMB)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
