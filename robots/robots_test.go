package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestMostSpecificMatch(t *testing.T) {
	f := Parse("User-agent: *\nDisallow: /admin/\nAllow: /admin/public/\n")

	tests := []struct {
		path string
		want bool
	}{
		{"/admin/public/doc", true},
		{"/admin/private", false},
		{"/admin/", false},
		{"/other", true},
		{"/", true},
	}
	for _, tt := range tests {
		if got := f.Allowed("webgrab", tt.path); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAllowBeatsDisallowOnTie(t *testing.T) {
	f := Parse("User-agent: *\nDisallow: /dir/\nAllow: /dir/\n")
	if !f.Allowed("any", "/dir/page") {
		t.Error("Allow must win a specificity tie")
	}
}

func TestWildcardAndAnchor(t *testing.T) {
	f := Parse("User-agent: *\nDisallow: /*.pdf$\n")

	tests := []struct {
		path string
		want bool
	}{
		{"/report.pdf", false},
		{"/a/b/c.pdf", false},
		{"/report.pdf.html", true},
		{"/pdf/index", true},
	}
	for _, tt := range tests {
		if got := f.Allowed("x", tt.path); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestPrefixMatchSemantics(t *testing.T) {
	f := Parse("User-agent: *\nDisallow: /foo\n")
	for _, p := range []string{"/foo", "/foo/", "/foo/bar"} {
		if f.Allowed("x", p) {
			t.Errorf("Allowed(%q) = true, want denied by prefix rule", p)
		}
	}
	if !f.Allowed("x", "/f") {
		t.Error("shorter path must not match the prefix rule")
	}
}

func TestEffectiveSpecificityStripsTrailingOnly(t *testing.T) {
	// "/aa*" has effective length 3, beating "/a" (2) but losing to "/aaa/b" (6).
	f := Parse("User-agent: *\nAllow: /a\nDisallow: /aa*\n")
	if f.Allowed("x", "/aab") {
		t.Error("trailing-stripped disallow should outrank the shorter allow")
	}
	// Interior wildcards keep their length: "/*.pdf$" scores 6.
	if got := patternSpecificity("/*.pdf$"); got != 6 {
		t.Errorf("specificity(/*.pdf$) = %d, want 6", got)
	}
	if got := patternSpecificity("/admin/**$"); got != 7 {
		t.Errorf("specificity(/admin/**$) = %d, want 7", got)
	}
}

func TestAgentSelection(t *testing.T) {
	text := `
User-agent: *
Disallow: /all/

User-agent: webgrab
Disallow: /wg/

User-agent: web
Disallow: /web/
`
	f := Parse(text)

	// Exact match wins over prefix.
	if f.Allowed("webgrab", "/wg/x") {
		t.Error("exact agent group not selected")
	}
	if !f.Allowed("webgrab", "/web/x") {
		t.Error("exact agent must not inherit other groups' rules")
	}
	// Longest prefix when no exact match.
	if f.Allowed("webgrab/1.2", "/wg/x") {
		t.Error("longest-prefix agent group not selected")
	}
	// Fallback to *.
	if f.Allowed("otherbot", "/all/x") {
		t.Error("wildcard group not selected")
	}
	if !f.Allowed("otherbot", "/wg/x") {
		t.Error("wildcard group must not deny another group's path")
	}
}

func TestCrawlDelayAndSitemaps(t *testing.T) {
	text := `
Sitemap: https://example.com/sitemap.xml
User-agent: *
Crawl-delay: 1.5
Disallow: /x
`
	f := Parse(text)
	if got := f.CrawlDelay("any"); got != 1500*time.Millisecond {
		t.Errorf("CrawlDelay = %v, want 1.5s", got)
	}
	if len(f.Sitemaps) != 1 || f.Sitemaps[0] != "https://example.com/sitemap.xml" {
		t.Errorf("Sitemaps = %v", f.Sitemaps)
	}
}

func TestCommentsAndGroupBoundaries(t *testing.T) {
	text := `
# top comment
User-agent: a
User-agent: b
Disallow: /shared/ # trailing comment

User-agent: c
Disallow: /c/
`
	f := Parse(text)
	if len(f.Groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(f.Groups))
	}
	if f.Allowed("a", "/shared/x") || f.Allowed("b", "/shared/x") {
		t.Error("agents a and b must share the first group")
	}
	if !f.Allowed("c", "/shared/x") || f.Allowed("c", "/c/x") {
		t.Error("agent c must only see the second group")
	}
}

func TestEmptyDisallowAllowsAll(t *testing.T) {
	f := Parse("User-agent: *\nDisallow:\n")
	if !f.Allowed("x", "/anything") {
		t.Error("empty Disallow must allow everything")
	}
}

func TestEngineCachesPerOrigin(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	}))
	defer srv.Close()

	e := NewEngine(srv.Client(), "webgrab")
	u, _ := url.Parse(srv.URL + "/private/doc")

	for i := 0; i < 3; i++ {
		allowed, _, robotsURL := e.Check(context.Background(), u)
		if allowed {
			t.Fatal("expected /private/doc to be denied")
		}
		if robotsURL != srv.URL+"/robots.txt" {
			t.Errorf("robotsURL = %q", robotsURL)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", n)
	}

	pub, _ := url.Parse(srv.URL + "/public")
	if allowed, _, _ := e.Check(context.Background(), pub); !allowed {
		t.Error("expected /public to be allowed")
	}
}

func TestEngineNon200IsAllowAll(t *testing.T) {
	for _, status := range []int{401, 403, 404, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		e := NewEngine(srv.Client(), "webgrab")
		u, _ := url.Parse(srv.URL + "/anything")
		if allowed, _, _ := e.Check(context.Background(), u); !allowed {
			t.Errorf("status %d: want allow-all", status)
		}
		srv.Close()
	}
}

func TestEngineTransportErrorIsAllowAll(t *testing.T) {
	e := NewEngine(&http.Client{Timeout: 50 * time.Millisecond}, "webgrab")
	u, _ := url.Parse("http://127.0.0.1:1/doc") // nothing listens here
	if allowed, _, _ := e.Check(context.Background(), u); !allowed {
		t.Error("transport error must cache allow-all")
	}
}
