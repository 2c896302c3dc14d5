// Package session persists oversized results as chunked, group-scoped
// sessions on disk. Each session is a pair of files under the store root:
// {guid}.content holds the UTF-8 blob and {guid}.json its metadata. Chunk
// boundaries are Unicode code points, not bytes, so concatenating all
// chunks always reproduces the stored text exactly.
package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/webgrab/webgrab/auth"
	"github.com/webgrab/webgrab/models"
)

const (
	contentSuffix = ".content"
	metaSuffix    = ".json"
	lockName      = ".prune_size.lock"

	previewChars = 200
)

// Store is a disk-backed session repository. Every operation reads the
// filesystem directly, so separate processes (the server and the prune CLI)
// see the same state. Per-guid isolation comes from the layout: each
// session owns exactly two files keyed by a freshly minted UUID.
type Store struct {
	root      string
	chunkSize int
	webURL    string
}

// NewStore opens (creating if needed) the store rooted at dir.
// defaultChunkSize applies when Create is called without one; webURL is the
// base for rendered chunk URLs.
func NewStore(dir string, defaultChunkSize int, webURL string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("session store root is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session store root: %w", err)
	}
	if defaultChunkSize < 1 {
		defaultChunkSize = 1
	}
	return &Store{
		root:      dir,
		chunkSize: defaultChunkSize,
		webURL:    strings.TrimRight(webURL, "/"),
	}, nil
}

// Create persists content as a new session and returns its metadata.
// Non-string content is serialized as a single deterministic JSON value.
// An empty group makes the session anonymous (publicly readable).
func (s *Store) Create(content any, format, group, url string, chunkSize int) (*models.SessionMetadata, *models.ToolError) {
	text, terr := serialize(content)
	if terr != nil {
		return nil, terr
	}
	if chunkSize < 1 {
		chunkSize = s.chunkSize
	}

	runes := []rune(text)
	totalChunks := (len(runes) + chunkSize - 1) / chunkSize
	if totalChunks < 1 {
		totalChunks = 1
	}
	sum := blake3.Sum256([]byte(text))

	meta := &models.SessionMetadata{
		GUID:      uuid.NewString(),
		Format:    format,
		Group:     group,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		SizeBytes: int64(len(text)),
		Extra: models.SessionExtra{
			URL:         url,
			ChunkSize:   chunkSize,
			TotalChars:  len(runes),
			TotalChunks: totalChunks,
			ContentHash: hex.EncodeToString(sum[:]),
			Preview:     clipPreview(runes),
		},
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, models.NewToolError(models.ErrCodeSession, "encode session metadata", err)
	}
	contentPath := filepath.Join(s.root, meta.GUID+contentSuffix)
	if err := os.WriteFile(contentPath, []byte(text), 0o644); err != nil {
		return nil, models.NewToolError(models.ErrCodeSession, "write session content", err)
	}
	if err := os.WriteFile(filepath.Join(s.root, meta.GUID+metaSuffix), metaJSON, 0o644); err != nil {
		os.Remove(contentPath)
		return nil, models.NewToolError(models.ErrCodeSession, "write session metadata", err)
	}
	return meta, nil
}

// Info returns caller-facing metadata for one session.
func (s *Store) Info(guid string, caller auth.Caller) (*models.SessionInfo, *models.ToolError) {
	meta, terr := s.authorize(guid, caller)
	if terr != nil {
		return nil, terr
	}
	info := toInfo(meta)
	return &info, nil
}

// Chunk returns chunk i of a session. The final chunk may be short;
// indexes outside [0, total_chunks) are INVALID_CHUNK_INDEX.
func (s *Store) Chunk(guid string, index int, caller auth.Caller) (string, *models.ToolError) {
	meta, terr := s.authorize(guid, caller)
	if terr != nil {
		return "", terr
	}
	if index < 0 || index >= meta.Extra.TotalChunks {
		return "", models.NewToolError(models.ErrCodeInvalidChunkIndex, "chunk index out of range", nil).
			WithDetail("chunk_index", index).
			WithDetail("valid_range", fmt.Sprintf("0..%d", meta.Extra.TotalChunks-1))
	}
	text, terr := s.readContent(meta.GUID)
	if terr != nil {
		return "", terr
	}
	return chunkAt([]rune(text), meta.Extra.ChunkSize, index), nil
}

// ReadAll joins every chunk of a session. maxBytes > 0 bounds the read:
// a larger session returns CONTENT_TOO_LARGE with its total size so the
// caller can fall back to chunk iteration. The context is checked between
// chunks; on expiry the error reports how many chunks were assembled.
func (s *Store) ReadAll(ctx context.Context, guid string, caller auth.Caller, maxBytes int64) (*models.SessionContent, *models.ToolError) {
	meta, terr := s.authorize(guid, caller)
	if terr != nil {
		return nil, terr
	}
	if maxBytes > 0 && meta.SizeBytes > maxBytes {
		return nil, models.NewToolError(models.ErrCodeContentTooLarge, "session exceeds the read budget", nil).
			WithDetail("total_size_bytes", meta.SizeBytes).
			WithDetail("max_bytes", maxBytes)
	}
	text, terr := s.readContent(meta.GUID)
	if terr != nil {
		return nil, terr
	}

	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < meta.Extra.TotalChunks; i++ {
		select {
		case <-ctx.Done():
			return nil, models.NewToolError(models.ErrCodeTimeout, "session read timed out", ctx.Err()).
				WithDetail("chunks_read", i)
		default:
		}
		b.WriteString(chunkAt(runes, meta.Extra.ChunkSize, i))
	}
	return &models.SessionContent{
		Content:        b.String(),
		TotalChunks:    meta.Extra.TotalChunks,
		TotalSizeBytes: meta.SizeBytes,
	}, nil
}

// URLs returns the chunk index of a session, as structured references or,
// with asJSON=false, as fetchable HTTP URLs under baseURL (the store's
// configured web URL when empty).
func (s *Store) URLs(guid string, caller auth.Caller, asJSON bool, baseURL string) (*models.SessionURLs, *models.ToolError) {
	meta, terr := s.authorize(guid, caller)
	if terr != nil {
		return nil, terr
	}
	out := &models.SessionURLs{
		SessionID:   meta.GUID,
		TotalChunks: meta.Extra.TotalChunks,
	}
	if asJSON {
		out.Chunks = make([]models.ChunkRef, meta.Extra.TotalChunks)
		for i := range out.Chunks {
			out.Chunks[i] = models.ChunkRef{SessionID: meta.GUID, ChunkIndex: i}
		}
		return out, nil
	}
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = s.webURL
	}
	out.ChunkURLs = make([]string, meta.Extra.TotalChunks)
	for i := range out.ChunkURLs {
		out.ChunkURLs[i] = fmt.Sprintf("%s/sessions/%s/chunks/%d", base, meta.GUID, i)
	}
	return out, nil
}

// List enumerates the sessions the caller may read, newest first.
func (s *Store) List(caller auth.Caller) (*models.SessionList, *models.ToolError) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, models.NewToolError(models.ErrCodeSession, "list session store", err)
	}
	infos := make([]models.SessionInfo, 0, len(entries)/2)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		meta, terr := s.loadMeta(strings.TrimSuffix(name, metaSuffix))
		if terr != nil {
			continue
		}
		if canRead(meta, caller) {
			infos = append(infos, toInfo(meta))
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt != infos[j].CreatedAt {
			return infos[i].CreatedAt > infos[j].CreatedAt
		}
		return infos[i].SessionID < infos[j].SessionID
	})
	return &models.SessionList{Sessions: infos, Total: len(infos)}, nil
}

// Delete removes a session. Scope rules match reads.
func (s *Store) Delete(guid string, caller auth.Caller) *models.ToolError {
	meta, terr := s.authorize(guid, caller)
	if terr != nil {
		return terr
	}
	var firstErr error
	for _, p := range []string{
		filepath.Join(s.root, meta.GUID+contentSuffix),
		filepath.Join(s.root, meta.GUID+metaSuffix),
	} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return models.NewToolError(models.ErrCodeSession, "delete session files", firstErr)
	}
	return nil
}

// Root exposes the storage directory (used by the prune CLI report).
func (s *Store) Root() string { return s.root }

func (s *Store) authorize(guid string, caller auth.Caller) (*models.SessionMetadata, *models.ToolError) {
	meta, terr := s.loadMeta(guid)
	if terr != nil {
		return nil, terr
	}
	if !canRead(meta, caller) {
		return nil, models.NewToolError(models.ErrCodePermissionDenied, "session belongs to another group", nil).
			WithDetail("session_id", guid)
	}
	return meta, nil
}

// canRead applies group scoping: anonymous sessions are public, group
// sessions need an exact primary-group match, and a caller without a group
// reaches group sessions only when auth is disabled process-wide.
func canRead(meta *models.SessionMetadata, caller auth.Caller) bool {
	if caller.FullAccess || meta.Group == "" {
		return true
	}
	return caller.PrimaryGroup() == meta.Group
}

func (s *Store) loadMeta(guid string) (*models.SessionMetadata, *models.ToolError) {
	// Validating the guid also keeps path traversal out of the store root.
	if uuid.Validate(guid) != nil {
		return nil, notFound(guid)
	}
	b, err := os.ReadFile(filepath.Join(s.root, guid+metaSuffix))
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(guid)
	}
	if err != nil {
		return nil, models.NewToolError(models.ErrCodeSession, "read session metadata", err)
	}
	meta := &models.SessionMetadata{}
	if err := json.Unmarshal(b, meta); err != nil {
		return nil, models.NewToolError(models.ErrCodeSession, "decode session metadata", err)
	}
	return meta, nil
}

func (s *Store) readContent(guid string) (string, *models.ToolError) {
	b, err := os.ReadFile(filepath.Join(s.root, guid+contentSuffix))
	if errors.Is(err, os.ErrNotExist) {
		return "", notFound(guid)
	}
	if err != nil {
		return "", models.NewToolError(models.ErrCodeSession, "read session content", err)
	}
	return string(b), nil
}

func notFound(guid string) *models.ToolError {
	return models.NewToolError(models.ErrCodeSessionNotFound, "session not found", nil).
		WithDetail("session_id", guid)
}

func toInfo(meta *models.SessionMetadata) models.SessionInfo {
	return models.SessionInfo{
		SessionID:      meta.GUID,
		URL:            meta.Extra.URL,
		Format:         meta.Format,
		TotalChunks:    meta.Extra.TotalChunks,
		TotalSizeBytes: meta.SizeBytes,
		ChunkSize:      meta.Extra.ChunkSize,
		CreatedAt:      meta.CreatedAt,
		Group:          meta.Group,
	}
}

func serialize(content any) (string, *models.ToolError) {
	switch v := content.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", models.NewToolError(models.ErrCodeSession, "serialize session content", err)
		}
		return string(b), nil
	}
}

func chunkAt(runes []rune, size, i int) string {
	start := i * size
	if start >= len(runes) {
		return ""
	}
	end := start + size
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end])
}

func clipPreview(runes []rune) string {
	if len(runes) <= previewChars {
		return string(runes)
	}
	return string(runes[:previewChars])
}
