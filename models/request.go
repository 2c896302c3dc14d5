package models

// Crawl parameter bounds. Out-of-range values are clamped, not rejected.
const (
	MinDepth             = 1
	MaxDepth             = 3
	MinPagesPerLevel     = 1
	MaxPagesPerLevel     = 20
	DefaultPagesPerLevel = 5

	MinResponseChars = 4000
	MaxResponseChars = 4000000
)

// ContentRequest carries the get_content parameters after argument parsing.
type ContentRequest struct {
	// URL is the page to fetch. Required.
	URL string `json:"url"`

	// Depth is the crawl depth; 1 fetches only the root page.
	// Clamped to [1,3].
	Depth int `json:"depth,omitempty"`

	// MaxPagesPerLevel bounds frontier expansion per depth level.
	// Clamped to [1,20]. Default: 5.
	MaxPagesPerLevel int `json:"max_pages_per_level,omitempty"`

	// Selector narrows extraction to matching elements.
	Selector string `json:"selector,omitempty"`

	// IncludeLinks controls whether links appear in the response.
	// Links are still collected internally for frontier discovery.
	// Default: true.
	IncludeLinks *bool `json:"include_links,omitempty"`

	// IncludeImages adds extracted images to the response. Default: false.
	IncludeImages bool `json:"include_images,omitempty"`

	// IncludeMeta adds meta tags to the response. Default: false.
	IncludeMeta bool `json:"include_meta,omitempty"`

	// FilterNoise removes ad/promo elements and noise lines. Default: true.
	FilterNoise *bool `json:"filter_noise,omitempty"`

	// Session persists the result to the session store and returns only
	// the session envelope.
	Session bool `json:"session,omitempty"`

	// ChunkSize is the session chunk size in characters. 0 uses the
	// configured default.
	ChunkSize int `json:"chunk_size,omitempty"`

	// MaxBytes overrides the inline response budget for this call.
	// 0 uses the configured default.
	MaxBytes int `json:"max_bytes,omitempty"`

	// TimeoutSeconds is the per-request fetch timeout override.
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`

	// ParseResults runs the deterministic news parser over the crawl.
	ParseResults bool `json:"parse_results,omitempty"`

	// SourceProfileName selects the parser profile. Default: "generic".
	SourceProfileName string `json:"source_profile_name,omitempty"`

	// ExtractMode selects the extraction strategy.
	// "full" (default): whole body. "auto": heuristic main-content
	// selectors, falling back to body. "readability": readability
	// article extraction.
	ExtractMode string `json:"extract_mode,omitempty"`

	// OutputFormat adds a markdown rendering when set to "markdown".
	// Default: "text".
	OutputFormat string `json:"output_format,omitempty"`
}

// Defaults applies default values and clamps ranges.
func (r *ContentRequest) Defaults() {
	if r.Depth < MinDepth {
		r.Depth = MinDepth
	}
	if r.Depth > MaxDepth {
		r.Depth = MaxDepth
	}
	if r.MaxPagesPerLevel == 0 {
		r.MaxPagesPerLevel = DefaultPagesPerLevel
	}
	if r.MaxPagesPerLevel < MinPagesPerLevel {
		r.MaxPagesPerLevel = MinPagesPerLevel
	}
	if r.MaxPagesPerLevel > MaxPagesPerLevel {
		r.MaxPagesPerLevel = MaxPagesPerLevel
	}
	if r.IncludeLinks == nil {
		t := true
		r.IncludeLinks = &t
	}
	if r.FilterNoise == nil {
		t := true
		r.FilterNoise = &t
	}
	if r.SourceProfileName == "" {
		r.SourceProfileName = "generic"
	}
	if r.ExtractMode == "" {
		r.ExtractMode = "full"
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "text"
	}
}

// StructureRequest carries the get_structure parameters.
type StructureRequest struct {
	// URL is the page to analyze. Required.
	URL string `json:"url"`

	// Selector narrows the analysis to matching elements.
	Selector string `json:"selector,omitempty"`

	// IncludeMeta adds meta tags to the response. Default: true.
	IncludeMeta *bool `json:"include_meta,omitempty"`

	// TimeoutSeconds is the per-request fetch timeout override.
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// Defaults applies default values.
func (r *StructureRequest) Defaults() {
	if r.IncludeMeta == nil {
		t := true
		r.IncludeMeta = &t
	}
}
