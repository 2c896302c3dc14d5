package newsfeed

import (
	"crypto/sha1"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/webgrab/webgrab/models"
)

const (
	parserVersion = "1.2.0"

	// Absolute dates parse against this single layout. Other absolute
	// formats anchor segmentation via profile patterns but surface as
	// DATE_PARSE_FAILED rather than being guessed at.
	absoluteDateLayout = "2 Jan 2006 - 3:04PM"

	bodySnippetLines = 4
	bodySnippetChars = 400
)

var (
	reTimecode = regexp.MustCompile(`^\d{2}:\d{2}$`)
	reDuration = regexp.MustCompile(`\b\d{2}:\d{2}\b`)
	reCommentN = regexp.MustCompile(`^\d+$`)
	reRelative = regexp.MustCompile(`(?i)^(\d+)\s+(minute|hour|day)s?\s+ago$`)
	reAuthor   = regexp.MustCompile(`^[A-Z][a-z]+( [A-Z][a-z]+){1,2}$`)
	reAnalysis = regexp.MustCompile(`(?i)\b(analysis|deep dive|explainer)\b`)

	telemetryFragments = []string{"sentry-trace", "baggage", "appstore"}
)

// PageInput is one crawled page handed to the parser.
type PageInput struct {
	URL      string
	Depth    int
	Text     string
	Language string
}

// FromCrawl flattens a crawl result into parser inputs. Depth-1 results
// carry the single page inline; deeper crawls carry the pages slice.
func FromCrawl(res *models.CrawlResult) ([]PageInput, *models.ToolError) {
	if res == nil {
		return nil, models.NewToolError(models.ErrCodeCrawlInput, "crawl result is empty", nil)
	}
	pages := res.Pages
	if len(pages) == 0 {
		if res.Page.URL == "" {
			return nil, models.NewToolError(models.ErrCodeCrawlInput, "crawl result has no pages", nil)
		}
		pages = []models.Page{res.Page}
	}
	in := make([]PageInput, len(pages))
	for i, pg := range pages {
		in[i] = PageInput{URL: pg.URL, Depth: pg.Depth, Text: pg.Text, Language: pg.Language}
	}
	return in, nil
}

// Parser extracts stories from listing-page text using one source profile.
// The same input always yields the same feed.
type Parser struct {
	profile *SourceProfile
}

func NewParser(profile *SourceProfile) *Parser {
	return &Parser{profile: profile}
}

// Parse runs the pipeline over the crawled pages: per-page noise strip,
// date-anchored segmentation and story extraction, then cross-page dedup
// and newest-first ordering. crawlTime resolves relative dates and is
// stamped on the feed.
func (p *Parser) Parse(pages []PageInput, rootURL string, crawlTime time.Time) *models.Feed {
	wc := newWarnCollector()
	stripped := 0
	var stories []models.Story

	for _, pg := range pages {
		lines, n := p.stripNoise(pg.Text, wc)
		stripped += n
		stories = append(stories, p.extractStories(lines, pg, rootURL, crawlTime, wc)...)
	}

	kept, removed := dedupe(stories)
	sortStories(kept)

	return &models.Feed{
		FeedMeta: models.FeedMeta{
			ParserVersion:      parserVersion,
			SourceProfile:      p.profile.Name,
			SourceName:         p.profile.DisplayName,
			SourceRootURL:      rootURL,
			CrawlTimeUTC:       crawlTime.UTC().Format(time.RFC3339),
			PagesCrawled:       len(pages),
			StoriesExtracted:   len(kept),
			DuplicatesRemoved:  removed,
			NoiseLinesStripped: stripped,
			ParseWarnings:      wc.total,
		},
		Stories:  kept,
		Warnings: wc.list(),
	}
}

// stripNoise drops boilerplate lines, returning the surviving lines trimmed
// (blanks kept) and the drop count. A line that would be dropped survives
// when the nearest non-blank neighbour above or below it is a date anchor,
// since dropping it could detach a headline block from its date.
func (p *Parser) stripNoise(text string, wc *warnCollector) ([]string, int) {
	raw := strings.Split(text, "\n")
	kept := make([]string, 0, len(raw))
	dropped := 0
	for i, line := range raw {
		t := strings.TrimSpace(line)
		if t == "" || !p.isNoise(t) {
			kept = append(kept, t)
			continue
		}
		if p.nearDateAnchor(raw, i) {
			wc.add(models.WarnStripRuleSkipped, t)
			kept = append(kept, t)
			continue
		}
		dropped++
	}
	return kept, dropped
}

func (p *Parser) isNoise(t string) bool {
	if containsFold(p.profile.NoiseMarkers, t) {
		return true
	}
	if strings.HasPrefix(t, "Photo:") || strings.HasPrefix(t, "Illustration:") {
		return true
	}
	if reTimecode.MatchString(t) {
		return true
	}
	low := strings.ToLower(t)
	for _, frag := range telemetryFragments {
		if strings.Contains(low, frag) {
			return true
		}
	}
	return false
}

func (p *Parser) nearDateAnchor(lines []string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		t := strings.TrimSpace(lines[j])
		if t == "" {
			continue
		}
		if _, ok := p.profile.matchesDate(t); ok {
			return true
		}
		break
	}
	for j := i + 1; j < len(lines); j++ {
		t := strings.TrimSpace(lines[j])
		if t == "" {
			continue
		}
		if _, ok := p.profile.matchesDate(t); ok {
			return true
		}
		break
	}
	return false
}

// extractStories segments a page on date anchors. Block i spans from just
// after the previous anchor to just before the next one, so consecutive
// blocks overlap: a story's trailing lines double as the next story's
// leading lines.
func (p *Parser) extractStories(lines []string, pg PageInput, rootURL string, crawlTime time.Time, wc *warnCollector) []models.Story {
	var anchors []int
	for i, t := range lines {
		if _, ok := p.profile.matchesDate(t); ok {
			anchors = append(anchors, i)
		}
	}
	stories := make([]models.Story, 0, len(anchors))
	for i, a := range anchors {
		start := 0
		if i > 0 {
			start = anchors[i-1] + 1
		}
		end := len(lines)
		if i < len(anchors)-1 {
			end = anchors[i+1]
		}
		stories = append(stories, p.buildStory(lines, start, a, end, pg, rootURL, crawlTime, wc))
	}
	return stories
}

func (p *Parser) buildStory(lines []string, start, anchor, end int, pg PageInput, rootURL string, crawlTime time.Time, wc *warnCollector) models.Story {
	pre := nonBlank(lines[start:anchor])
	post := nonBlank(lines[anchor+1 : end])
	block := nonBlank(lines[start:end])

	exclusive := anyFold(block, p.profile.ExclusiveMarkers)
	sponsored := anyFold(block, p.profile.SponsoredMarkers)

	// Marker lines are classification signals, not content.
	work := make([]string, 0, len(pre))
	for _, t := range pre {
		if containsFold(p.profile.ExclusiveMarkers, t) || containsFold(p.profile.SponsoredMarkers, t) {
			continue
		}
		work = append(work, t)
	}

	section := ""
	for len(work) > 0 && containsFold(p.profile.SectionLabels, work[0]) {
		section = work[0]
		work = work[1:]
	}

	headline, subheadline, rawHeadlineLine := "", "", ""
	segReason := models.SegmentationHeadingAligned

	pipeIdx := -1
	for i, t := range work {
		if strings.Contains(t, "|") {
			pipeIdx = i
			break
		}
	}
	switch {
	case pipeIdx >= 0:
		rawHeadlineLine = work[pipeIdx]
		left, right, _ := strings.Cut(rawHeadlineLine, "|")
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if section == "" && left != "" {
			section = left
		}
		headline = right
		subheadline = subheadlineAfter(work, pipeIdx, p.profile)
	case len(work) > 0:
		rawHeadlineLine = work[0]
		headline = work[0]
		subheadline = subheadlineAfter(work, 0, p.profile)
	}
	if headline == "" {
		for j := anchor - 1; j >= 0; j-- {
			if lines[j] != "" {
				headline = lines[j]
				segReason = models.SegmentationNearestLine
				break
			}
		}
	}

	var commentCount *int
	if n := len(post); n > 0 && reCommentN.MatchString(post[n-1]) {
		if v, err := strconv.Atoi(post[n-1]); err == nil {
			commentCount = &v
			post = post[:n-1]
		}
	}
	bodyLines := post
	if len(bodyLines) > bodySnippetLines {
		bodyLines = bodyLines[:bodySnippetLines]
	}
	body := strings.Join(bodyLines, " ")
	if r := []rune(body); len(r) > bodySnippetChars {
		body = string(r[:bodySnippetChars]) + "…"
	}

	rawDate, _ := p.profile.matchesDate(lines[anchor])
	var published *string
	dateFailed := false
	if iso, ok := p.normalizeDate(rawDate, crawlTime); ok {
		published = &iso
	} else {
		dateFailed = true
		wc.add(models.WarnDateParseFailed, rawDate)
	}

	tags := []string{}
	if exclusive {
		tags = append(tags, "exclusive")
	}
	author := ""
	contentType := models.ContentTypeNews
	opinion := (section != "" && containsFold(p.profile.OpinionLabels, section)) ||
		strings.HasPrefix(rawHeadlineLine, "Opinion|")
	switch {
	case sponsored:
		contentType = models.ContentTypeSponsored
	case opinion:
		contentType = models.ContentTypeOpinion
		author = p.findAuthor(block)
	case reAnalysis.MatchString(headline) || reAnalysis.MatchString(subheadline):
		contentType = models.ContentTypeAnalysis
	case hasDuration(block):
		contentType = models.ContentTypeVideo
	}

	missing := []string{}
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"headline", headline != ""},
		{"section", section != ""},
		{"subheadline", subheadline != ""},
		{"published", published != nil},
	} {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	conf := 1.0 - 0.12*float64(len(missing))
	if segReason == models.SegmentationNearestLine {
		conf -= 0.15
	}
	if dateFailed {
		conf -= 0.10
	}
	if conf < 0 {
		conf = 0
	}
	conf = math.Round(conf*100) / 100

	return models.Story{
		StoryID:      storyID(p.profile.Name, headline, published, pg.URL),
		Headline:     headline,
		Subheadline:  subheadline,
		Section:      section,
		Published:    published,
		PublishedRaw: rawDate,
		BodySnippet:  body,
		CommentCount: commentCount,
		Tags:         tags,
		ContentType:  contentType,
		Author:       author,
		Provenance: models.Provenance{
			RootURL:    rootURL,
			PageURL:    pg.URL,
			CrawlDepth: pg.Depth,
		},
		SeenOnPages: []models.PageRef{{PageURL: pg.URL, CrawlDepth: pg.Depth}},
		Language:    pg.Language,
		ParseQuality: models.ParseQuality{
			ParseConfidence:    conf,
			MissingFields:      missing,
			SegmentationReason: segReason,
		},
	}
}

// subheadlineAfter picks the line after the headline unless it reads as an
// opinion label or a byline.
func subheadlineAfter(work []string, headlineIdx int, prof *SourceProfile) string {
	next := headlineIdx + 1
	if next >= len(work) {
		return ""
	}
	cand := work[next]
	if containsFold(prof.OpinionLabels, cand) || reAuthor.MatchString(cand) {
		return ""
	}
	return cand
}

// normalizeDate renders a raw anchor value as RFC 3339 in the profile zone.
// Relative forms resolve against the crawl time in UTC before shifting into
// the profile zone.
func (p *Parser) normalizeDate(raw string, crawlTime time.Time) (string, bool) {
	if m := reRelative.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", false
		}
		var unit time.Duration
		switch strings.ToLower(m[2]) {
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		default:
			unit = 24 * time.Hour
		}
		t := crawlTime.UTC().Add(-time.Duration(n) * unit)
		return t.In(p.profile.loc).Format(time.RFC3339), true
	}
	if t, err := time.ParseInLocation(absoluteDateLayout, raw, p.profile.loc); err == nil {
		return t.Format(time.RFC3339), true
	}
	return "", false
}

// findAuthor looks for an opinion label inside the block; the line right
// above it is the byline when it is shaped like a person's name.
func (p *Parser) findAuthor(block []string) string {
	for i := 1; i < len(block); i++ {
		if containsFold(p.profile.OpinionLabels, block[i]) && reAuthor.MatchString(block[i-1]) {
			return block[i-1]
		}
	}
	return ""
}

func hasDuration(block []string) bool {
	for i := 0; i < len(block) && i < 2; i++ {
		if reDuration.MatchString(block[i]) {
			return true
		}
	}
	return false
}

func storyID(profile, headline string, published *string, pageURL string) string {
	pub := ""
	if published != nil {
		pub = *published
	}
	sum := sha1.Sum([]byte(profile + "|" + strings.ToLower(headline) + "|" + pub + "|" + pageURL))
	return profile + ":" + hex.EncodeToString(sum[:])[:16]
}

func nonBlank(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, t := range lines {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func anyFold(lines, set []string) bool {
	for _, t := range lines {
		if containsFold(set, t) {
			return true
		}
	}
	return false
}

type warnCollector struct {
	total   int
	order   []string
	example map[string]string
}

func newWarnCollector() *warnCollector {
	return &warnCollector{example: make(map[string]string)}
}

func (w *warnCollector) add(code, example string) {
	w.total++
	if _, seen := w.example[code]; !seen {
		w.order = append(w.order, code)
		w.example[code] = example
	}
}

func (w *warnCollector) list() []models.Warning {
	out := make([]models.Warning, 0, len(w.order))
	for _, code := range w.order {
		out = append(out, models.Warning{Code: code, Example: w.example[code]})
	}
	return out
}
