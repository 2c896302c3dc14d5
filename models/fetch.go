package models

// FetchResult is the outcome of a single fetch through the engine,
// after redirects, retries and charset decoding.
type FetchResult struct {
	// FinalURL is the URL after following all redirects.
	FinalURL string `json:"final_url"`

	// Status is the last HTTP status seen. 0 when no response was obtained.
	Status int `json:"status"`

	// Body is the response body decoded to UTF-8.
	Body string `json:"body"`

	// ContentType is the raw Content-Type header value.
	ContentType string `json:"content_type"`

	// Headers holds the response headers (first value per key).
	Headers map[string]string `json:"headers"`

	// Encoding is the canonical name of the charset the body was decoded
	// from ("utf-8" when no conversion was needed).
	Encoding string `json:"encoding"`

	// Error is populated on validation failure, transport failure, or
	// exhausted retries. A 4xx status alone does not populate it.
	Error *ErrorDetail `json:"error,omitempty"`

	// RetryCount is the number of retries performed (attempts - 1).
	RetryCount int `json:"retry_count"`

	// RateLimited latches true if any attempt observed a 429.
	RateLimited bool `json:"rate_limited"`
}

// Success reports whether the fetch produced a usable document.
func (r *FetchResult) Success() bool {
	return r.Error == nil && r.Status >= 200 && r.Status < 400
}
