package extract

import (
	"strings"
	"testing"

	"github.com/webgrab/webgrab/models"
)

const samplePage = `<!DOCTYPE html>
<html lang="en-US">
<head>
<title>Example Domain</title>
<meta name="description" content="An example page">
<meta property="og:title" content="OG Example">
</head>
<body>
<h1>Example Domain</h1>
<p>This domain is for use in illustrative examples in documents.</p>
<a href="/about">About</a>
<a href="https://other.example.net/page" title="Else">Elsewhere</a>
<a href="/about#team">Team</a>
<a href="#top">Top</a>
<a href="mailto:hi@example.com">Mail</a>
<img src="/logo.png" alt="Logo">
<script>var tracked = true;</script>
</body>
</html>`

func TestExtract_FullPage(t *testing.T) {
	got, terr := New().Extract(samplePage, "https://example.com/", Options{})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if got.Title != "Example Domain" {
		t.Errorf("title = %q, want %q", got.Title, "Example Domain")
	}
	if got.Language != "en-US" {
		t.Errorf("language = %q, want en-US", got.Language)
	}
	if !strings.Contains(got.Text, "illustrative examples") {
		t.Errorf("text missing paragraph content: %q", got.Text)
	}
	if strings.Contains(got.Text, "tracked") {
		t.Errorf("script content leaked into text: %q", got.Text)
	}
	if len(got.Headings) != 1 || got.Headings[0].Level != 1 || got.Headings[0].Text != "Example Domain" {
		t.Errorf("headings = %+v", got.Headings)
	}
	if got.Meta["description"] != "An example page" {
		t.Errorf("meta description = %q", got.Meta["description"])
	}
	if got.Markdown != "" {
		t.Errorf("markdown populated without output_format: %q", got.Markdown)
	}
}

func TestExtract_Links(t *testing.T) {
	got, terr := New().Extract(samplePage, "https://example.com/", Options{})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	// /about and /about#team collapse, fragment-only and mailto are skipped.
	if len(got.Links) != 2 {
		t.Fatalf("links = %+v, want 2 entries", got.Links)
	}
	if got.Links[0].URL != "https://example.com/about" || got.Links[0].External {
		t.Errorf("links[0] = %+v, want internal /about", got.Links[0])
	}
	if got.Links[1].URL != "https://other.example.net/page" || !got.Links[1].External {
		t.Errorf("links[1] = %+v, want external page", got.Links[1])
	}
	if got.Links[1].Title != "Else" {
		t.Errorf("links[1].Title = %q, want Else", got.Links[1].Title)
	}

	if len(got.Images) != 1 || got.Images[0].URL != "https://example.com/logo.png" || got.Images[0].Alt != "Logo" {
		t.Errorf("images = %+v", got.Images)
	}
}

func TestExtract_Selector(t *testing.T) {
	body := `<html><body><div id="keep"><p>Wanted words here.</p></div><div id="skip"><p>Unwanted.</p></div></body></html>`
	got, terr := New().Extract(body, "https://example.com/", Options{Selector: "#keep"})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if !strings.Contains(got.Text, "Wanted words") {
		t.Errorf("selector scope missing content: %q", got.Text)
	}
	if strings.Contains(got.Text, "Unwanted") {
		t.Errorf("selector scope leaked sibling content: %q", got.Text)
	}
}

func TestExtract_SelectorInvalid(t *testing.T) {
	_, terr := New().Extract("<html><body></body></html>", "https://example.com/", Options{Selector: "div["})
	if terr == nil {
		t.Fatal("expected an error for an unparseable selector")
	}
	if terr.Code != models.ErrCodeInvalidSelector {
		t.Errorf("code = %q, want %q", terr.Code, models.ErrCodeInvalidSelector)
	}
}

func TestExtract_SelectorNotFound(t *testing.T) {
	_, terr := New().Extract("<html><body><p>x</p></body></html>", "https://example.com/", Options{Selector: ".missing"})
	if terr == nil {
		t.Fatal("expected an error for a selector with no matches")
	}
	if terr.Code != models.ErrCodeSelectorNotFound {
		t.Errorf("code = %q, want %q", terr.Code, models.ErrCodeSelectorNotFound)
	}
}

func TestExtract_AutoMode(t *testing.T) {
	body := `<html><body>
<nav><a href="/a">AAA</a><a href="/b">BBB</a></nav>
<main><p>The actual article text lives here and is comfortably long enough to clear the minimum content bar.</p></main>
<footer>Copyright Example Corp</footer>
</body></html>`
	got, terr := New().Extract(body, "https://example.com/", Options{Mode: "auto"})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if !strings.Contains(got.Text, "actual article text") {
		t.Errorf("auto mode missed main content: %q", got.Text)
	}
	if strings.Contains(got.Text, "Copyright") {
		t.Errorf("auto mode kept footer chrome: %q", got.Text)
	}
}

func TestExtract_AutoModeWidensToBody(t *testing.T) {
	body := `<html><body><main><p>Tiny.</p></main><p>Everything else on the page, which is where the content actually is for this layout.</p></body></html>`
	got, terr := New().Extract(body, "https://example.com/", Options{Mode: "auto"})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if !strings.Contains(got.Text, "Everything else") {
		t.Errorf("expected body fallback when main is too short, got %q", got.Text)
	}
}

func TestExtract_FilterNoise(t *testing.T) {
	body := `<html><body>
<div class="ad-banner top"><p>Buy things now</p></div>
<article><p>Advertisement</p><p>Real reporting stays intact.</p></article>
<div id="cookie-consent">We use cookies</div>
</body></html>`
	got, terr := New().Extract(body, "https://example.com/", Options{FilterNoise: true})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if strings.Contains(got.Text, "Buy things now") {
		t.Errorf("ad element survived: %q", got.Text)
	}
	if strings.Contains(got.Text, "Advertisement") {
		t.Errorf("noise line survived: %q", got.Text)
	}
	if strings.Contains(got.Text, "We use cookies") {
		t.Errorf("consent element survived: %q", got.Text)
	}
	if !strings.Contains(got.Text, "Real reporting stays intact.") {
		t.Errorf("real content was dropped: %q", got.Text)
	}
}

func TestExtract_FilterNoiseKeepsLookalikes(t *testing.T) {
	body := `<html><body><header class="header gradient"><h1>Department of Roads</h1></header></body></html>`
	got, terr := New().Extract(body, "https://example.com/", Options{FilterNoise: true})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if !strings.Contains(got.Text, "Department of Roads") {
		t.Errorf("token matching removed a non-ad element: %q", got.Text)
	}
}

func TestExtract_MarkdownFormat(t *testing.T) {
	body := `<html><body><h1>Title Here</h1><p>Body <strong>bold</strong> words.</p></body></html>`
	got, terr := New().Extract(body, "https://example.com/", Options{Format: "markdown"})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if !strings.Contains(got.Markdown, "# Title Here") {
		t.Errorf("markdown missing heading: %q", got.Markdown)
	}
	if !strings.Contains(got.Markdown, "**bold**") {
		t.Errorf("markdown missing emphasis: %q", got.Markdown)
	}
}

func TestExtract_TitleFallsBackToOG(t *testing.T) {
	body := `<html><head><meta property="og:title" content="From OG"></head><body><p>hello</p></body></html>`
	got, terr := New().Extract(body, "https://example.com/", Options{})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if got.Title != "From OG" {
		t.Errorf("title = %q, want From OG", got.Title)
	}
}

func TestExtract_LanguageFromMeta(t *testing.T) {
	body := `<html><head><meta http-equiv="Content-Language" content="zh-TW"></head><body><p>x</p></body></html>`
	got, terr := New().Extract(body, "https://example.com/", Options{})
	if terr != nil {
		t.Fatalf("unexpected error: %v", terr)
	}
	if got.Language != "zh-TW" {
		t.Errorf("language = %q, want zh-TW", got.Language)
	}
}

func TestExtract_InvalidBaseURL(t *testing.T) {
	_, terr := New().Extract("<html><body></body></html>", "http://exa mple.com/", Options{})
	if terr == nil {
		t.Fatal("expected an error for an unparseable base URL")
	}
	if terr.Code != models.ErrCodeInvalidURL {
		t.Errorf("code = %q, want %q", terr.Code, models.ErrCodeInvalidURL)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"squeezes runs", "a \t b", "a b"},
		{"trims lines", "  a  \n  b  ", "a\nb"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"nbsp", "a  b", "a b"},
		{"empty", "   \n  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeText(tt.in); got != tt.want {
				t.Errorf("normalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDropNoiseLines(t *testing.T) {
	in := "Headline\nAdvertisement\nBody text continues.\nSponsored Content\nEnd."
	got, dropped := dropNoiseLines(in)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if strings.Contains(got, "Advertisement") || strings.Contains(got, "Sponsored Content") {
		t.Errorf("noise lines survived: %q", got)
	}
	if !strings.Contains(got, "Body text continues.") {
		t.Errorf("real line dropped: %q", got)
	}
}

func TestDropNoiseLines_KeepsSubstrings(t *testing.T) {
	in := "The Advertisement Standards Authority ruled today."
	got, dropped := dropNoiseLines(in)
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if got != in {
		t.Errorf("text changed: %q", got)
	}
}

func TestHasAdToken(t *testing.T) {
	tests := []struct {
		attr string
		want bool
	}{
		{"ad-banner", true},
		{"sidebar ads", true},
		{"AdSense-slot", true},
		{"header", false},
		{"gradient shadow", false},
		{"breadcrumb", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := hasAdToken(tt.attr); got != tt.want {
			t.Errorf("hasAdToken(%q) = %v, want %v", tt.attr, got, tt.want)
		}
	}
}
