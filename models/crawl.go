package models

// Page is one crawled page as returned inline to the caller. Failed pages
// carry Error and empty content fields.
type Page struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
	Markdown string `json:"markdown,omitempty"`
	Language string `json:"language,omitempty"`

	Headings []Heading         `json:"headings,omitempty"`
	Links    []Link            `json:"links,omitempty"`
	Images   []Image           `json:"images,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`

	// Depth is 1 for the root page.
	Depth int `json:"depth"`

	// Error marks a page whose fetch or extraction failed; the crawl
	// continues past it.
	Error *ErrorDetail `json:"error,omitempty"`
}

// CrawlSummary aggregates a multi-page crawl.
type CrawlSummary struct {
	TotalPages      int `json:"total_pages"`
	MaxDepth        int `json:"max_depth"`
	TotalTextLength int `json:"total_text_length"`

	// PagesByDepth counts pages per depth level, keyed by the decimal
	// level ("1", "2", ...).
	PagesByDepth map[string]int `json:"pages_by_depth"`

	DurationSeconds float64 `json:"duration_seconds"`
}

// CrawlResult is the inline response of get_content. For depth=1 only the
// embedded root page fields are populated; deeper crawls add Pages (depth
// ascending, discovery order within a level) and Summary.
type CrawlResult struct {
	Page

	Pages   []Page        `json:"pages,omitempty"`
	Summary *CrawlSummary `json:"summary,omitempty"`

	// Parsed carries the news parser's Feed when parse_results was set.
	Parsed *Feed `json:"parsed,omitempty"`

	// Truncation bookkeeping, set only when response shaping had to cut
	// the result down to the character budget.
	Truncated              bool `json:"truncated,omitempty"`
	OriginalChars          int  `json:"original_chars,omitempty"`
	ReturnedChars          int  `json:"returned_chars,omitempty"`
	PagesRemovedForLimit   int  `json:"pages_removed_for_limit,omitempty"`
	PagesTruncatedForLimit int  `json:"pages_truncated_for_limit,omitempty"`
}
