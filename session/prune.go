package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/webgrab/webgrab/models"
)

// Prune return codes. The prune CLI exits with these directly.
const (
	PruneOK   = 0
	PruneFail = 1
	PruneBusy = 2
)

// orphanGrace is how old a metadata-less blob or an unreadable metadata file
// must be before the anomaly sweep treats it as debris rather than a write
// still in flight.
const orphanGrace = time.Minute

// PruneReport summarizes one prune run.
type PruneReport struct {
	Examined       int   `json:"examined"`
	Deleted        int   `json:"deleted"`
	FreedBytes     int64 `json:"freed_bytes"`
	Anomalies      int   `json:"anomalies"`
	RemainingBytes int64 `json:"remaining_bytes"`
}

// PruneSize shrinks the store to at most maxMB megabytes by deleting the
// oldest sessions first ((created_at, guid) ascending). A non-empty group
// scopes both the accounting and the deletions to that group's sessions.
// Orphaned blobs, widowed metadata, and unreadable metadata are anomalies
// and are swept regardless of the target; files young enough to be a write
// still in flight are left for a later run. Sessions created after the run
// starts are never deleted. The whole run holds the store-wide lock file;
// a live lock from another pruner yields PruneBusy.
func (s *Store) PruneSize(maxMB float64, group string, lockStale time.Duration) (*PruneReport, int) {
	report := &PruneReport{}
	if maxMB < 0 {
		return report, PruneFail
	}
	target := int64(maxMB * 1024 * 1024)

	release, code := s.acquirePruneLock(lockStale)
	if code != PruneOK {
		return report, code
	}
	defer release()

	start := time.Now().UTC()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		slog.Error("prune: cannot scan store", "root", s.root, "error", err)
		return report, PruneFail
	}

	type item struct {
		meta *models.SessionMetadata
		size int64
	}
	var items []item
	hasMeta := make(map[string]bool)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		guid := strings.TrimSuffix(name, metaSuffix)
		hasMeta[guid] = true
		meta, terr := s.loadMeta(guid)
		if terr != nil {
			// A metadata write still in flight can read as truncated JSON;
			// only metadata older than the grace is corrupt.
			if st, err := os.Stat(filepath.Join(s.root, name)); err == nil && start.Sub(st.ModTime()) < orphanGrace {
				continue
			}
			report.Anomalies++
			report.FreedBytes += s.removeSessionFiles(guid)
			continue
		}
		if group != "" && meta.Group != group {
			continue
		}
		st, err := os.Stat(filepath.Join(s.root, guid+contentSuffix))
		if err != nil {
			// Widowed metadata: the blob is already gone.
			report.Anomalies++
			report.FreedBytes += s.removeSessionFiles(guid)
			continue
		}
		items = append(items, item{meta: meta, size: st.Size()})
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, contentSuffix) {
			continue
		}
		guid := strings.TrimSuffix(name, contentSuffix)
		if hasMeta[guid] {
			continue
		}
		// Create writes the blob before its metadata, so a blob alone is
		// not yet debris: the metadata may have landed after the directory
		// snapshot, and a blob younger than the grace may belong to a
		// create still in flight.
		if _, err := os.Stat(filepath.Join(s.root, guid+metaSuffix)); err == nil {
			continue
		}
		p := filepath.Join(s.root, name)
		st, err := os.Stat(p)
		if err != nil || start.Sub(st.ModTime()) < orphanGrace {
			continue
		}
		report.Anomalies++
		if os.Remove(p) == nil {
			report.FreedBytes += st.Size()
		}
	}

	report.Examined = len(items)
	var total int64
	for _, it := range items {
		total += it.size
	}
	if total <= target {
		report.RemainingBytes = total
		return report, PruneOK
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].meta.CreatedAt != items[j].meta.CreatedAt {
			return items[i].meta.CreatedAt < items[j].meta.CreatedAt
		}
		return items[i].meta.GUID < items[j].meta.GUID
	})

	for _, it := range items {
		if total <= target {
			break
		}
		if created, err := time.Parse(time.RFC3339, it.meta.CreatedAt); err == nil && created.After(start) {
			continue
		}
		freed, ok := s.removeSession(it.meta.GUID, it.size)
		if !ok {
			continue
		}
		report.Deleted++
		report.FreedBytes += freed
		total -= it.size
	}
	report.RemainingBytes = total
	if total > target {
		return report, PruneFail
	}
	return report, PruneOK
}

// acquirePruneLock takes the store-wide exclusive prune lock. A live lock
// younger than lockStale yields busy; a stale one is reclaimed once.
func (s *Store) acquirePruneLock(lockStale time.Duration) (func(), int) {
	lockPath := filepath.Join(s.root, lockName)
	try := func() error {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		fmt.Fprintf(f, "%d\n", os.Getpid())
		return f.Close()
	}

	err := try()
	if err == nil {
		return func() { os.Remove(lockPath) }, PruneOK
	}
	if !errors.Is(err, os.ErrExist) {
		slog.Error("prune: cannot create lock", "path", lockPath, "error", err)
		return func() {}, PruneFail
	}
	st, serr := os.Stat(lockPath)
	if serr != nil || time.Since(st.ModTime()) < lockStale {
		return func() {}, PruneBusy
	}
	slog.Info("prune: reclaiming stale lock", "age", time.Since(st.ModTime()).Round(time.Second))
	os.Remove(lockPath)
	if err := try(); err != nil {
		return func() {}, PruneBusy
	}
	return func() { os.Remove(lockPath) }, PruneOK
}

// removeSession deletes a session's files for the size pruner. Failures are
// logged and reported so the pruner can move on.
func (s *Store) removeSession(guid string, size int64) (int64, bool) {
	if err := os.Remove(filepath.Join(s.root, guid+contentSuffix)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("prune: cannot delete session blob", "guid", guid, "error", err)
		return 0, false
	}
	if err := os.Remove(filepath.Join(s.root, guid+metaSuffix)); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Blob is gone; the widowed metadata will be swept as an anomaly
		// on the next run.
		slog.Warn("prune: cannot delete session metadata", "guid", guid, "error", err)
	}
	return size, true
}

// removeSessionFiles removes whatever remains of a session, returning the
// bytes reclaimed.
func (s *Store) removeSessionFiles(guid string) int64 {
	var freed int64
	for _, p := range []string{
		filepath.Join(s.root, guid+contentSuffix),
		filepath.Join(s.root, guid+metaSuffix),
	} {
		if st, err := os.Stat(p); err == nil && os.Remove(p) == nil {
			freed += st.Size()
		}
	}
	return freed
}
