package models

// SessionExtra carries the chunking facts and provenance of a session.
type SessionExtra struct {
	URL         string `json:"url,omitempty"`
	ChunkSize   int    `json:"chunk_size"`
	TotalChars  int    `json:"total_chars"`
	TotalChunks int    `json:"total_chunks"`

	// ContentHash is the BLAKE3 hex digest of the stored blob.
	ContentHash string `json:"content_hash,omitempty"`

	// Preview is the first few hundred characters of the stored text.
	Preview string `json:"preview,omitempty"`
}

// SessionMetadata is the JSON record stored next to each session blob.
type SessionMetadata struct {
	GUID   string `json:"guid"`
	Format string `json:"format"`

	// Group owns the session; empty means anonymous (publicly readable).
	Group string `json:"group,omitempty"`

	// CreatedAt is RFC 3339 UTC.
	CreatedAt string `json:"created_at"`

	// SizeBytes is the byte length of the stored blob.
	SizeBytes int64 `json:"size_bytes"`

	Extra SessionExtra `json:"extra"`
}

// SessionEnvelope is returned instead of inline content when a result was
// persisted as a session.
type SessionEnvelope struct {
	SessionID   string `json:"session_id"`
	TotalChunks int    `json:"total_chunks"`
	TotalSize   int64  `json:"total_size"`
	ChunkSize   int    `json:"chunk_size"`
	Preview     string `json:"preview,omitempty"`
}

// SessionInfo is the caller-facing metadata shape (get_session_info and
// GET /sessions/{id}/info).
type SessionInfo struct {
	SessionID      string `json:"session_id"`
	URL            string `json:"url,omitempty"`
	Format         string `json:"format"`
	TotalChunks    int    `json:"total_chunks"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
	ChunkSize      int    `json:"chunk_size"`
	CreatedAt      string `json:"created_at"`
	Group          string `json:"group,omitempty"`
}

// SessionContent is the full joined read (get_session).
type SessionContent struct {
	Content        string `json:"content"`
	TotalChunks    int    `json:"total_chunks"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
}

// ChunkRef addresses one chunk of one session.
type ChunkRef struct {
	SessionID  string `json:"session_id"`
	ChunkIndex int    `json:"chunk_index"`
}

// SessionList is the list_sessions response.
type SessionList struct {
	Sessions []SessionInfo `json:"sessions"`
	Total    int           `json:"total"`
}

// SessionURLs indexes a session's chunks, either as structured references
// or as rendered fetchable URLs.
type SessionURLs struct {
	SessionID   string     `json:"session_id"`
	TotalChunks int        `json:"total_chunks"`
	Chunks      []ChunkRef `json:"chunks,omitempty"`
	ChunkURLs   []string   `json:"chunk_urls,omitempty"`
}
