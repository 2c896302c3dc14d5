package models

// PageStructure is the structure analyzer's view of one page: layout
// landmarks, navigation, forms and the heading outline, without body text.
type PageStructure struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Language string `json:"language,omitempty"`

	// Sections lists landmark containers (header, nav, main, article,
	// section, aside, footer) in document order.
	Sections []Section `json:"sections"`

	// Navigation lists links found inside nav-vocabulary containers.
	Navigation []NavLink `json:"navigation"`

	// InternalLinks and ExternalLinks count the page's links partitioned
	// by the base host.
	InternalLinks int `json:"internal_links"`
	ExternalLinks int `json:"external_links"`

	Forms   []Form            `json:"forms"`
	Outline []OutlineEntry    `json:"outline"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Section describes one landmark container.
type Section struct {
	Tag        string   `json:"tag"`
	ID         string   `json:"id,omitempty"`
	Classes    []string `json:"classes"`
	Heading    string   `json:"heading,omitempty"`
	LinksCount int      `json:"links_count"`
	// TextPreview is the section text clipped to 200 characters.
	TextPreview string `json:"text_preview"`
}

// NavLink is one navigation link, absolute and de-duplicated by URL.
type NavLink struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Form describes a form element and its input fields.
type Form struct {
	ID     string      `json:"id,omitempty"`
	Action string      `json:"action"`
	Method string      `json:"method"`
	Fields []FormField `json:"fields"`
}

// FormField is one input, textarea or select descendant of a form.
type FormField struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	ID       string `json:"id,omitempty"`
	Required bool   `json:"required"`
}

// OutlineEntry is one heading in the document outline.
type OutlineEntry struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
}
