package models

import "fmt"

// Error codes used in tool responses, HTTP responses and internal error handling.
const (
	// Fetch pipeline.
	ErrCodeInvalidURL      = "INVALID_URL"
	ErrCodeURLNotFound     = "URL_NOT_FOUND"
	ErrCodeAccessDenied    = "ACCESS_DENIED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeFetch           = "FETCH_ERROR"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeConnection      = "CONNECTION_ERROR"
	ErrCodeSSRFBlocked     = "SSRF_BLOCKED"
	ErrCodeRobotsBlocked   = "ROBOTS_BLOCKED"
	ErrCodeEncodingFailure = "ENCODING_ERROR"

	// Extraction.
	ErrCodeSelectorNotFound = "SELECTOR_NOT_FOUND"
	ErrCodeInvalidSelector  = "INVALID_SELECTOR"
	ErrCodeExtraction       = "EXTRACTION_ERROR"
	ErrCodeContentTooLarge  = "CONTENT_TOO_LARGE"

	// Configuration tools and startup.
	ErrCodeInvalidProfile          = "INVALID_PROFILE"
	ErrCodeInvalidRateLimit        = "INVALID_RATE_LIMIT"
	ErrCodeInvalidMaxResponseChars = "INVALID_MAX_RESPONSE_CHARS"
	ErrCodeInvalidArgument         = "INVALID_ARGUMENT"
	ErrCodeConfiguration           = "CONFIGURATION_ERROR"

	// Crawl limits.
	ErrCodeMaxDepthExceeded = "MAX_DEPTH_EXCEEDED"
	ErrCodeMaxPagesExceeded = "MAX_PAGES_EXCEEDED"

	// Session store.
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeInvalidChunkIndex = "INVALID_CHUNK_INDEX"
	ErrCodeSession           = "SESSION_ERROR"

	// Authorization and inbound limiting.
	ErrCodeAuth              = "AUTH_ERROR"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

	// News parser.
	ErrCodeCrawlInput      = "CRAWL_INPUT"
	ErrCodeSourceProfile   = "SOURCE_PROFILE"
	ErrCodeDateParseFailed = "DATE_PARSE_FAILED"
	ErrCodeParse           = "PARSE_ERROR"

	// Everything else.
	ErrCodeInternal    = "INTERNAL_ERROR"
	ErrCodeUnknownTool = "UNKNOWN_TOOL"
)

// recoveryStrategies maps each error code to a short hint telling the caller
// what to do next. Codes absent from the table fall back to a generic retry hint.
var recoveryStrategies = map[string]string{
	ErrCodeInvalidURL:              "check the URL syntax and scheme (http/https) and resubmit",
	ErrCodeURLNotFound:             "verify the URL exists; do not retry unchanged",
	ErrCodeAccessDenied:            "the origin refused the request; try a different anti-detection profile or a different URL",
	ErrCodeRateLimited:             "the origin is rate limiting; wait and retry with a higher rate_limit_delay",
	ErrCodeFetch:                   "transient upstream failure; retry later",
	ErrCodeTimeout:                 "increase timeout_seconds or retry when the origin is responsive",
	ErrCodeConnection:              "check that the host is reachable, then retry",
	ErrCodeSSRFBlocked:             "the target resolves to a private or metadata address and will never be fetched",
	ErrCodeRobotsBlocked:           "the site's robots.txt disallows this path for our agent; pick another URL",
	ErrCodeEncodingFailure:         "the document declared an encoding that could not be decoded; try selector-free extraction",
	ErrCodeSelectorNotFound:        "the selector matched nothing; inspect the page with get_structure and adjust it",
	ErrCodeInvalidSelector:         "the CSS selector does not parse; fix its syntax",
	ErrCodeExtraction:              "the document could not be processed; retry or fetch without a selector",
	ErrCodeContentTooLarge:         "re-issue with session=true, raise max_bytes, or iterate chunks via get_session_chunk",
	ErrCodeInvalidProfile:          "use one of: none, balanced, stealth, custom, browser_tls",
	ErrCodeInvalidRateLimit:        "rate_limit_delay must be >= 0 seconds",
	ErrCodeInvalidMaxResponseChars: "max_response_chars must be between 4000 and 4000000",
	ErrCodeInvalidArgument:         "fix the named argument and resubmit",
	ErrCodeConfiguration:           "fix the service configuration and restart",
	ErrCodeMaxDepthExceeded:        "depth is limited to 3; lower the requested depth",
	ErrCodeMaxPagesExceeded:        "max_pages_per_level is limited to 20; lower the requested value",
	ErrCodeSessionNotFound:         "the session does not exist or has been pruned; re-run the crawl",
	ErrCodeInvalidChunkIndex:       "use a chunk_index in [0, total_chunks-1] as reported by get_session_info",
	ErrCodeSession:                 "session storage failed; retry, and check WEBGRAB_STORAGE if it persists",
	ErrCodeAuth:                    "the bearer token is invalid or expired; obtain a fresh token",
	ErrCodePermissionDenied:        "the session belongs to another group; use a token whose primary group matches",
	ErrCodeRateLimitExceeded:       "too many calls; wait reset_seconds and retry",
	ErrCodeCrawlInput:              "parse_results needs a crawl result shaped input; call get_content with parse_results=true",
	ErrCodeSourceProfile:           "unknown or invalid source profile; use a listed profile name or 'generic'",
	ErrCodeParse:                   "the parser failed on this input; report the URL so the source profile can be fixed",
	ErrCodeInternal:                "unexpected failure; retry, and report if it persists",
	ErrCodeUnknownTool:             "check the tool name against the advertised tool list",
}

// RecoveryStrategy returns the caller-facing recovery hint for a code.
func RecoveryStrategy(code string) string {
	if s, ok := recoveryStrategies[code]; ok {
		return s
	}
	return "retry; if the failure persists, report the error code and details"
}

// ErrorEnvelope is the wire shape of every failure, on both the tool-call
// and HTTP surfaces.
type ErrorEnvelope struct {
	Success          bool           `json:"success"`
	ErrorCode        string         `json:"error_code"`
	Message          string         `json:"message"`
	Details          map[string]any `json:"details,omitempty"`
	RecoveryStrategy string         `json:"recovery_strategy"`
}

// ErrorDetail is the compact error shape embedded in page and fetch results.
type ErrorDetail struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ToolError is the internal error type carrying a stable error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ToolError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error // wrapped original error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a new ToolError.
func NewToolError(code, message string, err error) *ToolError {
	return &ToolError{Code: code, Message: message, Err: err}
}

// WithDetail attaches one structured detail and returns the same error.
func (e *ToolError) WithDetail(key string, value any) *ToolError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// ToEnvelope converts an internal error to the wire failure envelope.
func (e *ToolError) ToEnvelope() *ErrorEnvelope {
	return &ErrorEnvelope{
		Success:          false,
		ErrorCode:        e.Code,
		Message:          e.Message,
		Details:          e.Details,
		RecoveryStrategy: RecoveryStrategy(e.Code),
	}
}

// ToDetail converts an internal error to the compact embedded form.
func (e *ToolError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
