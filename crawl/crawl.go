// Package crawl implements the depth-bounded breadth-first crawler. The
// frontier is explicit: each level is fetched in first-seen order, the next
// level comes from the internal links of the current one, and a visited set
// keyed by normalized URL prevents duplicate fetches within a call.
package crawl

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/webgrab/webgrab/extract"
	"github.com/webgrab/webgrab/fetch"
	"github.com/webgrab/webgrab/models"
	"github.com/webgrab/webgrab/robots"
)

// Crawler walks pages breadth-first through the fetch engine.
type Crawler struct {
	fetcher   *fetch.Engine
	extractor *extract.Extractor
	robots    *robots.Engine

	// respectRobots turns robots enforcement off when false. Test
	// installations only; responses always report robots as respected.
	respectRobots bool
}

func New(fetcher *fetch.Engine, extractor *extract.Extractor, robotsEngine *robots.Engine, respectRobots bool) *Crawler {
	return &Crawler{
		fetcher:       fetcher,
		extractor:     extractor,
		robots:        robotsEngine,
		respectRobots: respectRobots,
	}
}

// Params bound one crawl. Depth and MaxPagesPerLevel arrive pre-clamped from
// the request layer.
type Params struct {
	URL              string
	Depth            int
	MaxPagesPerLevel int

	Selector     string
	ExtractMode  string
	OutputFormat string

	IncludeLinks  bool
	IncludeImages bool
	IncludeMeta   bool
	FilterNoise   bool

	Timeout time.Duration
}

// Run crawls from p.URL. A root failure fails the whole call; a failed
// deeper page becomes an inline page entry and the crawl continues.
func (c *Crawler) Run(ctx context.Context, p Params) (*models.CrawlResult, *models.ToolError) {
	if p.Depth < 1 {
		p.Depth = 1
	}
	if p.MaxPagesPerLevel < 1 {
		p.MaxPagesPerLevel = 1
	}

	root, err := url.Parse(p.URL)
	if err != nil {
		return nil, models.NewToolError(models.ErrCodeInvalidURL, "root URL does not parse", err).
			WithDetail("url", p.URL)
	}
	baseHost := root.Hostname()

	started := time.Now()
	visited := map[string]struct{}{}
	level := []string{p.URL}

	var pages []models.Page
	byDepth := map[string]int{}

	for depth := 1; depth <= p.Depth && len(level) > 0; depth++ {
		candSeen := map[string]struct{}{}
		var cand []string

		for _, target := range level {
			key := normalizeURL(target)
			if _, dup := visited[key]; dup {
				continue
			}
			visited[key] = struct{}{}

			page, links := c.fetchPage(ctx, target, depth, p)
			if depth == 1 && page.Error != nil {
				terr := models.NewToolError(page.Error.Code, page.Error.Message, nil).
					WithDetail("url", target)
				if page.Error.Code == models.ErrCodeRobotsBlocked {
					// The robots URL rides in the message.
					terr.WithDetail("robots_url", strings.TrimPrefix(page.Error.Message, "disallowed by "))
				}
				return nil, terr
			}
			pages = append(pages, page)
			byDepth[strconv.Itoa(depth)]++

			if depth == p.Depth {
				continue
			}
			for _, l := range links {
				if l.External {
					continue
				}
				lu, lerr := url.Parse(l.URL)
				if lerr != nil || !strings.EqualFold(lu.Hostname(), baseHost) {
					continue
				}
				lkey := normalizeURL(l.URL)
				if _, dup := visited[lkey]; dup {
					continue
				}
				if _, dup := candSeen[lkey]; dup {
					continue
				}
				candSeen[lkey] = struct{}{}
				cand = append(cand, l.URL)
			}
		}

		if len(cand) > p.MaxPagesPerLevel {
			cand = cand[:p.MaxPagesPerLevel]
		}
		level = cand
	}

	if len(pages) == 0 {
		return nil, models.NewToolError(models.ErrCodeInternal, "crawl produced no pages", nil).
			WithDetail("url", p.URL)
	}

	res := &models.CrawlResult{Page: pages[0]}
	if p.Depth > 1 {
		maxDepth, totalText := 0, 0
		for _, pg := range pages {
			if pg.Depth > maxDepth {
				maxDepth = pg.Depth
			}
			totalText += utf8.RuneCountInString(pg.Text)
		}
		res.Pages = pages
		res.Summary = &models.CrawlSummary{
			TotalPages:      len(pages),
			MaxDepth:        maxDepth,
			TotalTextLength: totalText,
			PagesByDepth:    byDepth,
			DurationSeconds: math.Round(time.Since(started).Seconds()*1000) / 1000,
		}
	}
	return res, nil
}

// fetchPage retrieves and extracts one page. The returned links are the full
// link set for frontier discovery, regardless of the include_links mask.
func (c *Crawler) fetchPage(ctx context.Context, target string, depth int, p Params) (models.Page, []models.Link) {
	page := models.Page{URL: target, Depth: depth}

	var crawlDelay time.Duration
	if c.respectRobots {
		if u, err := url.Parse(target); err == nil {
			allowed, delay, robotsURL := c.robots.Check(ctx, u)
			if !allowed {
				page.Error = &models.ErrorDetail{
					Code:    models.ErrCodeRobotsBlocked,
					Message: "disallowed by " + robotsURL,
				}
				return page, nil
			}
			crawlDelay = delay
		}
	}

	res := c.fetcher.Fetch(ctx, &fetch.Request{URL: target, Timeout: p.Timeout, MinDelay: crawlDelay})
	page.URL = res.FinalURL
	if res.Error != nil {
		page.Error = res.Error
		return page, nil
	}
	if !res.Success() {
		page.Error = ClassifyStatus(res.Status)
		return page, nil
	}

	content, terr := c.extractor.Extract(res.Body, res.FinalURL, extract.Options{
		Selector:    p.Selector,
		Mode:        p.ExtractMode,
		Format:      p.OutputFormat,
		FilterNoise: p.FilterNoise,
	})
	if terr != nil {
		page.Error = terr.ToDetail()
		return page, nil
	}

	page.Title = content.Title
	page.Text = content.Text
	page.Markdown = content.Markdown
	page.Language = content.Language
	page.Headings = content.Headings
	if p.IncludeLinks {
		page.Links = content.Links
	}
	if p.IncludeImages {
		page.Images = content.Images
	}
	if p.IncludeMeta {
		page.Meta = content.Meta
	}
	return page, content.Links
}

// ClassifyStatus maps an HTTP error status onto a page error code.
func ClassifyStatus(status int) *models.ErrorDetail {
	code := models.ErrCodeFetch
	switch status {
	case http.StatusNotFound, http.StatusGone:
		code = models.ErrCodeURLNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		code = models.ErrCodeAccessDenied
	case http.StatusTooManyRequests:
		code = models.ErrCodeRateLimited
	}
	return &models.ErrorDetail{Code: code, Message: fmt.Sprintf("HTTP %d", status)}
}

// normalizeURL is the visited-set key: trailing slashes are stripped so
// /a and /a/ collapse to one page.
func normalizeURL(raw string) string {
	return strings.TrimRight(raw, "/")
}
