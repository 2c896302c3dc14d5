package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/webgrab/webgrab/models"
)

// landmarkSelector enumerates the structural containers reported as sections.
const landmarkSelector = "header, nav, main, article, section, aside, footer"

// navVocabulary marks elements that act as navigation even without a <nav>
// tag. Matched token-wise against class and id values.
var navVocabulary = map[string]struct{}{
	"nav":        {},
	"navigation": {},
	"menu":       {},
	"navbar":     {},
	"breadcrumb": {},
	"topnav":     {},
	"sidebar":    {},
}

// previewLimit caps a section's text preview.
const previewLimit = 200

// StructureOptions scope a single analysis.
type StructureOptions struct {
	// Selector narrows the analysis to matching elements.
	Selector string

	// IncludeMeta adds the meta tag map to the result.
	IncludeMeta bool
}

// Analyze parses body and reports the page's layout: landmark sections,
// navigation links, the internal/external link split, forms and the heading
// outline. It never returns body text beyond short previews.
func (x *Extractor) Analyze(body, baseURL string, opts StructureOptions) (*models.PageStructure, *models.ToolError) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, models.NewToolError(models.ErrCodeExtraction, "could not parse document", err)
	}
	doc.Find(nonContentSelector).Remove()

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, models.NewToolError(models.ErrCodeInvalidURL, "invalid base URL", err).
			WithDetail("url", baseURL)
	}

	scope := doc.Selection
	if opts.Selector != "" {
		sel, serr := cascadia.Compile(opts.Selector)
		if serr != nil {
			return nil, models.NewToolError(models.ErrCodeInvalidSelector, "CSS selector does not parse", serr).
				WithDetail("selector", opts.Selector)
		}
		scope = doc.FindMatcher(sel)
		if scope.Length() == 0 {
			return nil, models.NewToolError(models.ErrCodeSelectorNotFound, "selector matched no elements", nil).
				WithDetail("selector", opts.Selector)
		}
	}

	out := &models.PageStructure{
		URL:        baseURL,
		Title:      documentTitle(doc),
		Language:   pageLanguage(doc),
		Sections:   collectSections(scope),
		Navigation: collectNavigation(scope, base),
		Forms:      collectForms(scope, base),
		Outline:    collectOutline(scope),
	}
	out.InternalLinks, out.ExternalLinks = partitionLinks(scope, base)
	if opts.IncludeMeta {
		out.Meta = metaMap(doc)
	}
	return out, nil
}

func collectSections(scope *goquery.Selection) []models.Section {
	sections := []models.Section{}
	scope.Find(landmarkSelector).Each(func(_ int, s *goquery.Selection) {
		sec := models.Section{
			Tag:        goquery.NodeName(s),
			ID:         strings.TrimSpace(s.AttrOr("id", "")),
			Classes:    strings.Fields(s.AttrOr("class", "")),
			Heading:    inlineText(s.Find("h1, h2, h3, h4, h5, h6").First()),
			LinksCount: s.Find("a[href]").Length(),
		}
		if sec.Classes == nil {
			sec.Classes = []string{}
		}
		sec.TextPreview = clipRunes(normalizeText(collectText(s)), previewLimit)
		sections = append(sections, sec)
	})
	return sections
}

// collectNavigation gathers links from <nav> elements and from containers
// whose class or id carries a nav-vocabulary token, de-duplicated by
// resolved URL in document order.
func collectNavigation(scope *goquery.Selection, base *url.URL) []models.NavLink {
	nav := []models.NavLink{}
	seen := map[string]struct{}{}

	addFrom := func(s *goquery.Selection) {
		s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			abs := resolveHTTP(base, a.AttrOr("href", ""))
			if abs == "" {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			nav = append(nav, models.NavLink{URL: abs, Text: inlineText(a)})
		})
	}

	scope.Find("nav").Each(func(_ int, s *goquery.Selection) { addFrom(s) })
	scope.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "nav" {
			return
		}
		if hasNavToken(s.AttrOr("class", "")) || hasNavToken(s.AttrOr("id", "")) {
			addFrom(s)
		}
	})
	return nav
}

func hasNavToken(attr string) bool {
	for _, tok := range reAttrToken.FindAllString(strings.ToLower(attr), -1) {
		if _, hit := navVocabulary[tok]; hit {
			return true
		}
	}
	return false
}

// partitionLinks counts distinct resolved links split by the base host.
func partitionLinks(scope *goquery.Selection, base *url.URL) (internal, external int) {
	seen := map[string]struct{}{}
	scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		resolved.Fragment = ""
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		if strings.EqualFold(resolved.Host, base.Host) {
			internal++
		} else {
			external++
		}
	})
	return internal, external
}

func collectForms(scope *goquery.Selection, base *url.URL) []models.Form {
	forms := []models.Form{}
	scope.Find("form").Each(func(_ int, s *goquery.Selection) {
		form := models.Form{
			ID:     strings.TrimSpace(s.AttrOr("id", "")),
			Method: strings.ToUpper(strings.TrimSpace(s.AttrOr("method", ""))),
			Fields: []models.FormField{},
		}
		if form.Method == "" {
			form.Method = "GET"
		}
		if action := strings.TrimSpace(s.AttrOr("action", "")); action != "" {
			if resolved, err := base.Parse(action); err == nil {
				form.Action = resolved.String()
			} else {
				form.Action = action
			}
		}
		s.Find("input, textarea, select").Each(func(_ int, f *goquery.Selection) {
			field := models.FormField{
				Name: strings.TrimSpace(f.AttrOr("name", "")),
				ID:   strings.TrimSpace(f.AttrOr("id", "")),
			}
			switch goquery.NodeName(f) {
			case "textarea":
				field.Type = "textarea"
			case "select":
				field.Type = "select"
			default:
				field.Type = strings.ToLower(strings.TrimSpace(f.AttrOr("type", "")))
				if field.Type == "" {
					field.Type = "text"
				}
			}
			_, field.Required = f.Attr("required")
			form.Fields = append(form.Fields, field)
		})
		forms = append(forms, form)
	})
	return forms
}

func collectOutline(scope *goquery.Selection) []models.OutlineEntry {
	outline := []models.OutlineEntry{}
	scope.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := inlineText(s)
		if text == "" {
			return
		}
		name := goquery.NodeName(s)
		outline = append(outline, models.OutlineEntry{
			Level: int(name[1] - '0'),
			Text:  text,
			ID:    strings.TrimSpace(s.AttrOr("id", "")),
		})
	})
	return outline
}

// resolveHTTP resolves href against base and returns the absolute URL, or ""
// for fragments, unparseable values and non-http(s) schemes.
func resolveHTTP(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	resolved, err := base.Parse(href)
	if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
