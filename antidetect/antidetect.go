// Package antidetect holds the process-wide anti-detection configuration:
// which header profile outbound requests use, the user-agent rotation state,
// the per-host pacing delay and the inline response budget.
package antidetect

import (
	"math/rand"
	"net/http"
	"sync"

	"github.com/webgrab/webgrab/models"
)

// Profile selects the outgoing header set and wire behavior.
type Profile string

const (
	// ProfileNone sends a minimal service UA and nothing else.
	ProfileNone Profile = "none"
	// ProfileBalanced sends a real desktop browser header set.
	ProfileBalanced Profile = "balanced"
	// ProfileStealth adds client hints and Sec-Fetch-* on top of balanced.
	ProfileStealth Profile = "stealth"
	// ProfileCustom overlays caller-supplied headers on the balanced set.
	ProfileCustom Profile = "custom"
	// ProfileBrowserTLS uses balanced headers over a TLS wire that
	// impersonates a Chrome ClientHello.
	ProfileBrowserTLS Profile = "browser_tls"
)

// ParseProfile maps a string to a Profile.
func ParseProfile(s string) (Profile, bool) {
	switch Profile(s) {
	case ProfileNone, ProfileBalanced, ProfileStealth, ProfileCustom, ProfileBrowserTLS:
		return Profile(s), true
	}
	return "", false
}

// ServiceUA is the minimal user agent of the none profile.
const ServiceUA = "webgrab/1.2"

// browserUA pairs a user-agent string with the client-hint values a real
// browser would send alongside it. Non-Chromium entries leave SecChUA empty;
// those browsers do not send client hints.
type browserUA struct {
	UA       string
	SecChUA  string
	Platform string
}

var uaPool = []browserUA{
	{
		UA:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		SecChUA:  `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		Platform: `"Windows"`,
	},
	{
		UA:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		SecChUA:  `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		Platform: `"macOS"`,
	},
	{
		UA:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		SecChUA:  `"Microsoft Edge";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		Platform: `"Windows"`,
	},
	{
		UA:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		SecChUA:  `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		Platform: `"Linux"`,
	},
	{
		UA: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	},
	{
		UA: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	},
}

// Params are the set_antidetection arguments. Pointer fields distinguish
// "not provided" from zero.
type Params struct {
	Profile          string
	CustomHeaders    map[string]string
	CustomUserAgent  string
	RateLimitDelay   *float64
	MaxResponseChars *int
}

// State is the mutable anti-detection configuration. One State is shared by
// all fetches of a service context; all access goes through the mutex.
type State struct {
	mu sync.Mutex

	profile          Profile
	customHeaders    map[string]string
	customUA         string
	rateLimitDelay   float64 // seconds
	maxResponseChars int

	rng    *rand.Rand
	sticky browserUA
	hasUA  bool
}

// NewState builds the configuration with its defaults. The seed drives UA
// rotation; pass a fixed value in tests for reproducible header sets.
func NewState(defaultDelay float64, defaultMaxChars int, seed int64) *State {
	return &State{
		profile:          ProfileBalanced,
		rateLimitDelay:   defaultDelay,
		maxResponseChars: defaultMaxChars,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// Configure validates and applies a set_antidetection call atomically,
// returning the applied snapshot.
func (s *State) Configure(p Params) (*models.AntidetectionSnapshot, *models.ToolError) {
	profile, ok := ParseProfile(p.Profile)
	if !ok {
		return nil, models.NewToolError(models.ErrCodeInvalidProfile,
			"unknown profile: must be one of none, balanced, stealth, custom, browser_tls", nil).
			WithDetail("profile", p.Profile)
	}
	if p.RateLimitDelay != nil && *p.RateLimitDelay < 0 {
		return nil, models.NewToolError(models.ErrCodeInvalidRateLimit,
			"rate_limit_delay must be >= 0 seconds", nil).
			WithDetail("rate_limit_delay", *p.RateLimitDelay)
	}
	if p.MaxResponseChars != nil &&
		(*p.MaxResponseChars < models.MinResponseChars || *p.MaxResponseChars > models.MaxResponseChars) {
		return nil, models.NewToolError(models.ErrCodeInvalidMaxResponseChars,
			"max_response_chars must be in [4000, 4000000]", nil).
			WithDetail("max_response_chars", *p.MaxResponseChars)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.profile = profile
	if p.CustomHeaders != nil {
		s.customHeaders = make(map[string]string, len(p.CustomHeaders))
		for k, v := range p.CustomHeaders {
			s.customHeaders[k] = v
		}
	}
	s.customUA = p.CustomUserAgent
	if p.RateLimitDelay != nil {
		s.rateLimitDelay = *p.RateLimitDelay
	}
	if p.MaxResponseChars != nil {
		s.maxResponseChars = *p.MaxResponseChars
	}
	// The sticky UA belongs to the previous configuration; the next fetch
	// draws a fresh one.
	s.hasUA = false

	return s.snapshotLocked(), nil
}

// Snapshot reports the current configuration.
func (s *State) Snapshot() *models.AntidetectionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() *models.AntidetectionSnapshot {
	snap := &models.AntidetectionSnapshot{
		Success:          true,
		Profile:          string(s.profile),
		RateLimitDelay:   s.rateLimitDelay,
		MaxResponseChars: s.maxResponseChars,
		RespectRobotsTxt: true,
	}
	if s.profile == ProfileCustom && s.customUA != "" {
		snap.UserAgent = s.customUA
	}
	return snap
}

// Profile returns the active profile.
func (s *State) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// RateLimitDelaySeconds returns the per-host pacing delay.
func (s *State) RateLimitDelaySeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateLimitDelay
}

// MaxResponseChars returns the inline response budget.
func (s *State) MaxResponseChars() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxResponseChars
}

// Headers composes the outgoing header set for one request and returns it
// with the user agent used. With rotate, a fresh UA is drawn from the seeded
// pool; otherwise the sticky UA is reused for the life of the configuration.
func (s *State) Headers(rotate bool) (http.Header, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := make(http.Header)

	if s.profile == ProfileNone {
		h.Set("User-Agent", ServiceUA)
		return h, ServiceUA
	}

	if rotate || !s.hasUA {
		s.sticky = uaPool[s.rng.Intn(len(uaPool))]
		s.hasUA = true
	}
	ua := s.sticky

	h.Set("User-Agent", ua.UA)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Cache-Control", "no-cache")
	h.Set("Dnt", "1")

	// browser_tls changes the wire, not the header policy: it keeps the
	// balanced set above.
	if s.profile == ProfileStealth {
		if ua.SecChUA != "" {
			h.Set("Sec-Ch-Ua", ua.SecChUA)
			h.Set("Sec-Ch-Ua-Mobile", "?0")
			h.Set("Sec-Ch-Ua-Platform", ua.Platform)
		}
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
		h.Set("Upgrade-Insecure-Requests", "1")
	}

	uaString := ua.UA
	if s.profile == ProfileCustom {
		if s.customUA != "" {
			h.Set("User-Agent", s.customUA)
			uaString = s.customUA
		}
		for k, v := range s.customHeaders {
			h.Set(k, v)
		}
		if v := h.Get("User-Agent"); v != "" {
			uaString = v
		}
	}
	return h, uaString
}

// UserAgent returns the UA the next non-rotating request would send, without
// advancing rotation state for the none profile.
func (s *State) UserAgent() string {
	_, ua := s.Headers(false)
	return ua
}
