package loadsim

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"lukechampine.com/blake3"

	"github.com/webgrab/webgrab/simhash"
)

// nearDupDistance is the simhash bit distance at or under which a new
// response is considered a rehash of one already on disk.
const nearDupDistance = 3

// Recorder persists scrubbed response bodies as replayable fixtures under
// {dir}/{op}/{hash}.json. Near-duplicate bodies per operation are skipped.
type Recorder struct {
	dir      string
	scrubber *Scrubber

	mu      sync.Mutex
	seen    map[string][]uint64
	written int
	skipped int
}

func NewRecorder(dir string, scrubber *Scrubber) *Recorder {
	if scrubber == nil {
		scrubber = NewScrubber(false)
	}
	return &Recorder{
		dir:      dir,
		scrubber: scrubber,
		seen:     make(map[string][]uint64),
	}
}

// Record scrubs one response body and writes it unless a near-duplicate of
// the same operation was already recorded.
func (r *Recorder) Record(op, body string) error {
	scrubbed, text, err := r.scrubber.ScrubJSON([]byte(body))
	if err != nil {
		return err
	}
	fp := simhash.Fingerprint(text)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, prior := range r.seen[op] {
		if simhash.Near(prior, fp, nearDupDistance) {
			r.skipped++
			return nil
		}
	}

	sum := blake3.Sum256(scrubbed)
	dir := filepath.Join(r.dir, op)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fixture dir: %w", err)
	}
	name := hex.EncodeToString(sum[:8]) + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), scrubbed, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}

	r.seen[op] = append(r.seen[op], fp)
	r.written++
	return nil
}

// Stats reports how many fixtures were written and skipped so far.
func (r *Recorder) Stats() (written, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.skipped
}
