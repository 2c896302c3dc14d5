// Package robots fetches, parses and evaluates robots.txt files with a
// process-lifetime per-origin cache. Evaluation follows the most-specific
// match policy: among matching Allow/Disallow patterns the one with the
// greatest effective length (pattern with trailing '*' and '$' stripped)
// wins, and Allow beats Disallow on ties.
package robots

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Rule is one Allow or Disallow pattern. Patterns support '*' (any sequence)
// and a trailing '$' (end anchor); anything else is a prefix match.
type Rule struct {
	Pattern string
	Allow   bool
}

// Group is one user-agent group of a robots file.
type Group struct {
	Agents     []string
	Rules      []Rule
	CrawlDelay time.Duration // 0 when unset
}

// File is a parsed robots.txt. The zero value allows everything.
type File struct {
	Groups   []Group
	Sitemaps []string
}

// Parse reads robots.txt text into a File. Lines are `field: value` with
// '#' comments; one or more consecutive User-agent lines open a group and
// rules attach to the current group.
func Parse(text string) *File {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	f := &File{}
	current := Group{}
	sawRule := false

	flush := func() {
		if len(current.Agents) == 0 && len(current.Rules) == 0 && current.CrawlDelay == 0 {
			return
		}
		f.Groups = append(f.Groups, current)
		current = Group{}
		sawRule = false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])

		switch key {
		case "user-agent", "useragent":
			// A user-agent line after rules starts a new group.
			if sawRule {
				flush()
			}
			current.Agents = append(current.Agents, strings.ToLower(val))
		case "allow":
			if val != "" {
				current.Rules = append(current.Rules, Rule{Pattern: val, Allow: true})
			}
			sawRule = true
		case "disallow":
			// An empty Disallow allows everything; it adds no rule.
			if val != "" {
				current.Rules = append(current.Rules, Rule{Pattern: val, Allow: false})
			}
			sawRule = true
		case "crawl-delay", "crawldelay":
			if val != "" {
				if d, err := time.ParseDuration(val + "s"); err == nil && d >= 0 {
					current.CrawlDelay = d
				}
			}
			sawRule = true
		case "sitemap":
			if val != "" {
				f.Sitemaps = append(f.Sitemaps, val)
			}
		}
	}
	flush()
	return f
}

// Allowed evaluates a path (with optional query) for an agent.
// No matching group or no matching rule defaults to allow.
func (f *File) Allowed(agent, pathWithQuery string) bool {
	idx := f.selectGroup(agent)
	if idx < 0 {
		return true
	}

	bestScore := -1
	bestAllow := true
	for _, r := range f.Groups[idx].Rules {
		if !patternMatches(r.Pattern, pathWithQuery) {
			continue
		}
		score := patternSpecificity(r.Pattern)
		if score > bestScore || (score == bestScore && r.Allow && !bestAllow) {
			bestScore = score
			bestAllow = r.Allow
		}
	}
	if bestScore == -1 {
		return true
	}
	return bestAllow
}

// CrawlDelay returns the crawl delay of the agent's group, 0 when unset.
func (f *File) CrawlDelay(agent string) time.Duration {
	idx := f.selectGroup(agent)
	if idx < 0 {
		return 0
	}
	return f.Groups[idx].CrawlDelay
}

// selectGroup resolves the group for an agent: exact case-insensitive match
// first, then the longest agent token that prefixes the agent string, then
// the '*' group. Ties keep the first group seen.
func (f *File) selectGroup(agent string) int {
	ua := strings.ToLower(strings.TrimSpace(agent))
	bestIdx := -1
	bestScore := -1
	for i, g := range f.Groups {
		for _, a := range g.Agents {
			token := strings.TrimSpace(a)
			if token == "" {
				continue
			}
			var score int
			switch {
			case token == ua:
				// Exact beats any prefix.
				score = len(token) + 1<<20
			case token == "*":
				score = 0
			case strings.HasPrefix(ua, token):
				score = len(token)
			default:
				continue
			}
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
	}
	return bestIdx
}

// patternMatches anchors the pattern at the start of the path, with '*'
// matching any sequence and a trailing '$' anchoring the end.
func patternMatches(pattern, path string) bool {
	anchorEnd := strings.HasSuffix(pattern, "$")
	p := strings.TrimSuffix(pattern, "$")

	var b strings.Builder
	b.WriteString("^")
	for _, rn := range p {
		if rn == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(rn)))
	}
	if anchorEnd {
		b.WriteString("$")
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

// patternSpecificity is the effective pattern length: the pattern with
// trailing '*' and '$' characters stripped. Interior wildcards still count.
func patternSpecificity(pattern string) int {
	return len(strings.TrimRight(pattern, "*$"))
}

// maxRobotsBody caps how much of a robots.txt is read.
const maxRobotsBody = 512 * 1024

// Engine caches one File per origin for the life of the process and
// answers crawl permission checks.
type Engine struct {
	client *http.Client
	agent  string

	mu    sync.Mutex
	cache map[string]*File // origin → parsed file
}

// NewEngine builds an Engine. The client should carry a short timeout; nil
// gets a 10 second default. agent is the product token used for group
// selection and for the robots fetch itself.
func NewEngine(client *http.Client, agent string) *Engine {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Engine{
		client: client,
		agent:  agent,
		cache:  make(map[string]*File),
	}
}

// Check reports whether the URL may be fetched for the engine's agent, plus
// the group's crawl delay and the robots.txt URL consulted.
func (e *Engine) Check(ctx context.Context, u *url.URL) (allowed bool, delay time.Duration, robotsURL string) {
	origin := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	robotsURL = origin + "/robots.txt"

	f := e.fileFor(ctx, origin, robotsURL)

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return f.Allowed(e.agent, path), f.CrawlDelay(e.agent), robotsURL
}

// fileFor returns the cached File for an origin, fetching it on first use.
// The fetch happens outside the cache lock; concurrent first callers may
// both fetch, and the last store wins.
func (e *Engine) fileFor(ctx context.Context, origin, robotsURL string) *File {
	e.mu.Lock()
	if f, ok := e.cache[origin]; ok {
		e.mu.Unlock()
		return f
	}
	e.mu.Unlock()

	f := e.fetch(ctx, robotsURL)

	e.mu.Lock()
	e.cache[origin] = f
	e.mu.Unlock()
	return f
}

// fetch retrieves and parses robots.txt. Any transport error or non-200
// status yields the empty allow-all File, cached like a real one.
func (e *Engine) fetch(ctx context.Context, robotsURL string) *File {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return &File{}
	}
	req.Header.Set("User-Agent", e.agent)

	resp, err := e.client.Do(req)
	if err != nil {
		return &File{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &File{}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return &File{}
	}
	return Parse(string(body))
}

// Reset drops every cached entry. Tests use this; production entries live
// for the whole process.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.cache = make(map[string]*File)
	e.mu.Unlock()
}
