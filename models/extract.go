package models

// ExtractedContent is the extractor's view of one page.
type ExtractedContent struct {
	// URL is the final URL the content was extracted from.
	URL string `json:"url"`

	// Title is the document title, falling back to og:title.
	Title string `json:"title,omitempty"`

	// Text is the cleaned text content.
	Text string `json:"text"`

	// Markdown is populated only when output_format=markdown was requested.
	Markdown string `json:"markdown,omitempty"`

	// Headings lists h1..h6 in document order.
	Headings []Heading `json:"headings,omitempty"`

	// Links lists hyperlinks, absolute and de-duplicated by resolved URL.
	Links []Link `json:"links,omitempty"`

	// Images lists images, absolute and de-duplicated by resolved URL.
	Images []Image `json:"images,omitempty"`

	// Meta maps meta tag name/property to content.
	Meta map[string]string `json:"meta,omitempty"`

	// Language comes from html[lang], else the Content-Language meta.
	Language string `json:"language,omitempty"`

	// Error is populated when extraction failed.
	Error *ErrorDetail `json:"error,omitempty"`
}

// Heading is one h1..h6 element.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Link is a hyperlink extracted from a page, resolved against the base URL.
// External is true iff the link host differs from the base host and is non-empty.
type Link struct {
	URL      string `json:"url"`
	Text     string `json:"text,omitempty"`
	Title    string `json:"title,omitempty"`
	External bool   `json:"external"`
}

// Image is an image element, resolved against the base URL.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}
