package models

// Content types assigned by the news parser classifier.
const (
	ContentTypeNews      = "news"
	ContentTypeOpinion   = "opinion"
	ContentTypeAnalysis  = "analysis"
	ContentTypeVideo     = "video"
	ContentTypeSponsored = "sponsored"
)

// Parser warning codes. DATE_PARSE_FAILED shares its name with the error
// taxonomy; as a warning the story survives with a null published date.
const (
	WarnDateParseFailed        = "DATE_PARSE_FAILED"
	WarnStripRuleSkipped       = "STRIP_RULE_SKIPPED_STORY_SAFETY"
	WarnParseError             = "PARSE_ERROR"
	SegmentationHeadingAligned = "date_anchor+heading_alignment"
	SegmentationNearestLine    = "date_anchor+nearest_preceding_line_fallback"
)

// Feed is the news parser's output for one crawl.
type Feed struct {
	FeedMeta FeedMeta  `json:"feed_meta"`
	Stories  []Story   `json:"stories"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// FeedMeta describes the parse run.
type FeedMeta struct {
	ParserVersion      string `json:"parser_version"`
	SourceProfile      string `json:"source_profile"`
	SourceName         string `json:"source_name"`
	SourceRootURL      string `json:"source_root_url"`
	CrawlTimeUTC       string `json:"crawl_time_utc"`
	PagesCrawled       int    `json:"pages_crawled"`
	StoriesExtracted   int    `json:"stories_extracted"`
	DuplicatesRemoved  int    `json:"duplicates_removed"`
	NoiseLinesStripped int    `json:"noise_lines_stripped"`
	ParseWarnings      int    `json:"parse_warnings"`
}

// Warning is one distinct parser warning with a single example.
type Warning struct {
	Code    string `json:"code"`
	Example string `json:"example,omitempty"`
}

// Story is one extracted news item.
type Story struct {
	StoryID     string `json:"story_id"`
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline,omitempty"`
	Section     string `json:"section,omitempty"`

	// Published is RFC 3339 with the profile's UTC offset; null when the
	// raw date could not be parsed.
	Published    *string `json:"published"`
	PublishedRaw string  `json:"published_raw"`

	BodySnippet  string `json:"body_snippet,omitempty"`
	CommentCount *int   `json:"comment_count,omitempty"`

	Tags        []string `json:"tags"`
	ContentType string   `json:"content_type"`
	Author      string   `json:"author,omitempty"`

	Provenance  Provenance `json:"provenance"`
	SeenOnPages []PageRef  `json:"seen_on_pages"`

	Language     string       `json:"language,omitempty"`
	ParseQuality ParseQuality `json:"parse_quality"`
}

// Provenance records where a story was first extracted.
type Provenance struct {
	RootURL    string `json:"root_url"`
	PageURL    string `json:"page_url"`
	CrawlDepth int    `json:"crawl_depth"`
}

// PageRef records one sighting of a story during the crawl.
type PageRef struct {
	PageURL    string `json:"page_url"`
	CrawlDepth int    `json:"crawl_depth"`
}

// ParseQuality scores how completely a story was recovered.
type ParseQuality struct {
	// ParseConfidence is in [0,1], rounded to two decimals.
	ParseConfidence float64 `json:"parse_confidence"`

	// MissingFields lists absent fields among headline, section,
	// subheadline, published (in that order).
	MissingFields []string `json:"missing_fields"`

	SegmentationReason string `json:"segmentation_reason"`
}
