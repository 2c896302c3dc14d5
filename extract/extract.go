package extract

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/text/language"

	"github.com/webgrab/webgrab/models"
)

// minContentLength is the minimum text length (in characters) for a scoped
// or readability extraction to be considered valid. Below it the extractor
// assumes the main content was missed and widens back to the body.
const minContentLength = 50

// nonContentSelector names elements that never carry readable content and
// are dropped before every other step.
const nonContentSelector = "script, style, noscript, iframe, svg, canvas, template"

// mainContentSelectors is the heuristic ladder tried by extract_mode=auto,
// most specific first.
var mainContentSelectors = []string{
	"main", "article", "[role=main]", "#content", ".content",
	"#main-content", ".main-content", ".post-content", ".entry-content", ".article-body",
}

// Extractor turns fetched HTML into structured content. It is stateless
// apart from the reusable markdown converter and safe for concurrent use.
type Extractor struct {
	md *mdConverter
}

// Options scope and shape a single extraction.
type Options struct {
	// Selector narrows extraction to matching elements. Overrides Mode.
	Selector string

	// Mode is "full" (whole body), "auto" (main-content ladder) or
	// "readability". Empty means full.
	Mode string

	// Format adds a markdown rendering when "markdown".
	Format string

	// FilterNoise removes ad/promo elements and exact-match noise lines.
	FilterNoise bool
}

func New() *Extractor {
	return &Extractor{md: newMarkdownConverter()}
}

// Extract parses body and returns the page content. The caller decides which
// fields to expose; everything is always collected so a crawler can use the
// links for frontier discovery regardless of response flags.
func (x *Extractor) Extract(body, baseURL string, opts Options) (*models.ExtractedContent, *models.ToolError) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, models.NewToolError(models.ErrCodeExtraction, "could not parse document", err)
	}
	doc.Find(nonContentSelector).Remove()
	if opts.FilterNoise {
		removeAdElements(doc.Selection)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, models.NewToolError(models.ErrCodeInvalidURL, "invalid base URL", err).
			WithDetail("url", baseURL)
	}

	out := &models.ExtractedContent{
		URL:      baseURL,
		Title:    documentTitle(doc),
		Language: pageLanguage(doc),
		Meta:     metaMap(doc),
	}

	scope, terr := x.resolveScope(doc, body, base, opts, out)
	if terr != nil {
		return nil, terr
	}

	text := normalizeText(collectText(scope))
	if opts.FilterNoise {
		text, _ = dropNoiseLines(text)
	}
	out.Text = text

	out.Headings = extractHeadings(scope)
	out.Links = extractLinks(scope, base)
	out.Images = extractImages(scope, base)

	if opts.Format == "markdown" {
		md, merr := x.md.Convert(outerHTML(scope), baseURL)
		if merr != nil {
			slog.Warn("markdown conversion failed", "url", baseURL, "error", merr)
		} else {
			out.Markdown = md
		}
	}
	return out, nil
}

// resolveScope picks the selection all content is read from. A selector wins
// over the mode; readability mutates title/language when it succeeds.
func (x *Extractor) resolveScope(doc *goquery.Document, rawBody string, base *url.URL, opts Options, out *models.ExtractedContent) (*goquery.Selection, *models.ToolError) {
	if opts.Selector != "" {
		sel, err := cascadia.Compile(opts.Selector)
		if err != nil {
			return nil, models.NewToolError(models.ErrCodeInvalidSelector, "CSS selector does not parse", err).
				WithDetail("selector", opts.Selector)
		}
		scope := doc.FindMatcher(sel)
		if scope.Length() == 0 {
			return nil, models.NewToolError(models.ErrCodeSelectorNotFound, "selector matched no elements", nil).
				WithDetail("selector", opts.Selector)
		}
		return scope, nil
	}

	switch opts.Mode {
	case "auto":
		for _, s := range mainContentSelectors {
			scope := doc.Find(s)
			if scope.Length() == 0 {
				continue
			}
			if len(normalizeText(collectText(scope))) >= minContentLength {
				return scope, nil
			}
		}
	case "readability":
		article, err := readability.FromReader(strings.NewReader(rawBody), base)
		if err == nil && len(strings.TrimSpace(article.TextContent)) >= minContentLength {
			artDoc, aerr := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
			if aerr == nil {
				if article.Title != "" {
					out.Title = article.Title
				}
				if article.Language != "" {
					out.Language = canonicalLanguage(article.Language)
				}
				return artDoc.Selection, nil
			}
		}
		slog.Warn("readability extraction failed, widening to body", "url", base.String(), "error", err)
	}
	return doc.Find("body"), nil
}

var (
	reHorizontalWS = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
	reBlankRuns    = regexp.MustCompile(`\n{3,}`)
)

// collectText concatenates every descendant text node with "\n" separators,
// in document order.
func collectText(scope *goquery.Selection) string {
	var b strings.Builder
	first := true
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if !first {
				b.WriteByte('\n')
			}
			b.WriteString(n.Data)
			first = false
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range scope.Nodes {
		walk(n)
	}
	return b.String()
}

// normalizeText collapses horizontal whitespace runs to one space, trims
// each line, collapses runs of blank lines to a single one, and trims.
func normalizeText(raw string) string {
	s := reHorizontalWS.ReplaceAllString(raw, " ")
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(ln)
	}
	s = strings.Join(lines, "\n")
	s = reBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// inlineText flattens a selection's text onto one line.
func inlineText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func documentTitle(doc *goquery.Document) string {
	if t := inlineText(doc.Find("title").First()); t != "" {
		return t
	}
	title := ""
	doc.Find("meta[property]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if prop, _ := s.Attr("property"); strings.EqualFold(prop, "og:title") {
			title = strings.TrimSpace(s.AttrOr("content", ""))
			return false
		}
		return true
	})
	return title
}

func pageLanguage(doc *goquery.Document) string {
	lang, _ := doc.Find("html").Attr("lang")
	if strings.TrimSpace(lang) == "" {
		doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if he, _ := s.Attr("http-equiv"); strings.EqualFold(he, "content-language") {
				lang = s.AttrOr("content", "")
				return false
			}
			return true
		})
	}
	return canonicalLanguage(lang)
}

// canonicalLanguage normalizes a lang attribute to its BCP 47 form, keeping
// the raw value if it does not parse.
func canonicalLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if tag, err := language.Parse(raw); err == nil {
		return tag.String()
	}
	return raw
}

func metaMap(doc *goquery.Document) map[string]string {
	meta := map[string]string{}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		if name := strings.TrimSpace(s.AttrOr("name", "")); name != "" {
			meta[strings.ToLower(name)] = content
			return
		}
		if prop := strings.TrimSpace(s.AttrOr("property", "")); prop != "" {
			meta[strings.ToLower(prop)] = content
		}
	})
	return meta
}

func extractHeadings(scope *goquery.Selection) []models.Heading {
	headings := []models.Heading{}
	scope.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := inlineText(s)
		if text == "" {
			return
		}
		name := goquery.NodeName(s)
		headings = append(headings, models.Heading{
			Level: int(name[1] - '0'),
			Text:  text,
		})
	})
	return headings
}

// extractLinks resolves a[href] against the base, skips fragment-only and
// non-http(s) targets, and de-duplicates by resolved URL keeping the first
// anchor text. External means the host differs from the base host.
func extractLinks(scope *goquery.Selection, base *url.URL) []models.Link {
	links := []models.Link{}
	seen := map[string]struct{}{}
	scope.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, models.Link{
			URL:      abs,
			Text:     inlineText(s),
			Title:    strings.TrimSpace(s.AttrOr("title", "")),
			External: !strings.EqualFold(resolved.Host, base.Host),
		})
	})
	return links
}

func extractImages(scope *goquery.Selection, base *url.URL) []models.Image {
	images := []models.Image{}
	seen := map[string]struct{}{}
	scope.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return
		}
		resolved, err := base.Parse(src)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		images = append(images, models.Image{
			URL: abs,
			Alt: strings.TrimSpace(s.AttrOr("alt", "")),
		})
	})
	return images
}

func outerHTML(scope *goquery.Selection) string {
	var b strings.Builder
	scope.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			b.WriteString(h)
		}
	})
	return b.String()
}
