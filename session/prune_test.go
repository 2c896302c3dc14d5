package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/webgrab/webgrab/models"
)

// mb converts a byte count to the fractional megabyte value PruneSize takes.
func mb(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}

// seedSession creates a session of a given size and optionally rewrites its
// created_at so tests control prune ordering.
func seedSession(t *testing.T, s *Store, group string, size int, createdAt string) string {
	t.Helper()
	meta, terr := s.Create(strings.Repeat("x", size), "text", group, "", 0)
	if terr != nil {
		t.Fatalf("seed session: %v", terr)
	}
	if createdAt == "" {
		return meta.GUID
	}
	path := filepath.Join(s.Root(), meta.GUID+metaSuffix)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read seeded metadata: %v", err)
	}
	var m models.SessionMetadata
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode seeded metadata: %v", err)
	}
	m.CreatedAt = createdAt
	nb, err := json.Marshal(&m)
	if err != nil {
		t.Fatalf("encode seeded metadata: %v", err)
	}
	if err := os.WriteFile(path, nb, 0o644); err != nil {
		t.Fatalf("rewrite seeded metadata: %v", err)
	}
	return meta.GUID
}

func TestPrune_UnderTargetIsNoop(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "", 100, "")
	seedSession(t, s, "", 100, "")

	report, code := s.PruneSize(1, "", time.Hour)
	if code != PruneOK {
		t.Fatalf("code = %d, want %d", code, PruneOK)
	}
	if report.Examined != 2 || report.Deleted != 0 || report.RemainingBytes != 200 {
		t.Errorf("report = %+v", report)
	}
}

func TestPrune_DeletesOldestFirst(t *testing.T) {
	s := newTestStore(t)
	oldest := seedSession(t, s, "", 1000, "2026-01-01T00:00:00Z")
	seedSession(t, s, "", 1000, "2026-01-02T00:00:00Z")
	seedSession(t, s, "", 1000, "2026-01-03T00:00:00Z")

	report, code := s.PruneSize(mb(2048), "", time.Hour)
	if code != PruneOK {
		t.Fatalf("code = %d, want %d (report %+v)", code, PruneOK, report)
	}
	if report.Examined != 3 || report.Deleted != 1 {
		t.Errorf("report = %+v, want exactly one deletion", report)
	}
	if report.FreedBytes != 1000 || report.RemainingBytes != 2000 {
		t.Errorf("report = %+v", report)
	}
	if _, terr := s.Info(oldest, fullAccess); terr == nil || terr.Code != models.ErrCodeSessionNotFound {
		t.Errorf("oldest session should be gone, got %v", terr)
	}

	list, terr := s.List(fullAccess)
	if terr != nil || list.Total != 2 {
		t.Errorf("list after prune = %+v, err = %v", list, terr)
	}
}

func TestPrune_GroupScope(t *testing.T) {
	s := newTestStore(t)
	apac := seedSession(t, s, "apac", 1000, "2026-01-01T00:00:00Z")
	emea := seedSession(t, s, "emea", 1000, "2026-01-01T00:00:00Z")

	report, code := s.PruneSize(0, "apac", time.Hour)
	if code != PruneOK {
		t.Fatalf("code = %d (report %+v)", code, report)
	}
	if report.Examined != 1 || report.Deleted != 1 {
		t.Errorf("report = %+v, want the apac session only", report)
	}
	if _, terr := s.Info(apac, fullAccess); terr == nil {
		t.Error("apac session survived a zero-target prune")
	}
	if _, terr := s.Info(emea, fullAccess); terr != nil {
		t.Errorf("emea session was touched by an apac-scoped prune: %v", terr)
	}
}

func TestPrune_SweepsAnomalies(t *testing.T) {
	s := newTestStore(t)
	good := seedSession(t, s, "", 100, "")
	debris := time.Now().Add(-2 * orphanGrace)

	// Orphaned blob with no metadata, old enough to rule out a create in
	// flight.
	orphan := filepath.Join(s.Root(), uuid.NewString()+contentSuffix)
	if err := os.WriteFile(orphan, []byte("stray"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(orphan, debris, debris); err != nil {
		t.Fatal(err)
	}
	// Widowed metadata whose blob is gone.
	widow := seedSession(t, s, "", 100, "")
	if err := os.Remove(filepath.Join(s.Root(), widow+contentSuffix)); err != nil {
		t.Fatal(err)
	}
	// Unreadable metadata past the grace.
	junk := filepath.Join(s.Root(), uuid.NewString()+metaSuffix)
	if err := os.WriteFile(junk, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(junk, debris, debris); err != nil {
		t.Fatal(err)
	}

	report, code := s.PruneSize(1, "", time.Hour)
	if code != PruneOK {
		t.Fatalf("code = %d (report %+v)", code, report)
	}
	if report.Anomalies != 3 {
		t.Errorf("anomalies = %d, want 3", report.Anomalies)
	}
	for _, p := range []string{orphan, junk, filepath.Join(s.Root(), widow+metaSuffix)} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s not swept", filepath.Base(p))
		}
	}
	if _, terr := s.Info(good, fullAccess); terr != nil {
		t.Errorf("healthy session swept: %v", terr)
	}
}

func TestPrune_SparesInflightCreate(t *testing.T) {
	s := newTestStore(t)

	// A create caught mid-flight: the blob is on disk, the metadata not yet.
	blob := filepath.Join(s.Root(), uuid.NewString()+contentSuffix)
	if err := os.WriteFile(blob, []byte(strings.Repeat("x", 400)), 0o644); err != nil {
		t.Fatal(err)
	}
	// And one a step further along, its metadata written but not yet whole.
	partial := uuid.NewString()
	if err := os.WriteFile(filepath.Join(s.Root(), partial+contentSuffix), []byte("body"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), partial+metaSuffix), []byte(`{"guid":"`), 0o644); err != nil {
		t.Fatal(err)
	}

	report, code := s.PruneSize(1024, "", time.Hour)
	if code != PruneOK {
		t.Fatalf("code = %d (report %+v)", code, report)
	}
	if report.Anomalies != 0 || report.FreedBytes != 0 || report.Deleted != 0 {
		t.Errorf("report = %+v, want fresh files left alone", report)
	}
	if _, err := os.Stat(blob); err != nil {
		t.Errorf("fresh blob swept: %v", err)
	}
	for _, suffix := range []string{contentSuffix, metaSuffix} {
		if _, err := os.Stat(filepath.Join(s.Root(), partial+suffix)); err != nil {
			t.Errorf("in-flight session file %s swept: %v", suffix, err)
		}
	}
}

func TestPrune_LockBusyAndReclaim(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "", 100, "")
	lock := filepath.Join(s.Root(), lockName)
	if err := os.WriteFile(lock, []byte("123\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Fresh lock: busy.
	if _, code := s.PruneSize(1, "", time.Hour); code != PruneBusy {
		t.Fatalf("code = %d, want %d", code, PruneBusy)
	}

	// Stale lock: reclaimed, prune proceeds, lock released after.
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(lock, stale, stale); err != nil {
		t.Fatal(err)
	}
	if _, code := s.PruneSize(1, "", time.Hour); code != PruneOK {
		t.Fatalf("code = %d, want %d after reclaiming stale lock", code, PruneOK)
	}
	if _, err := os.Stat(lock); !os.IsNotExist(err) {
		t.Error("lock file not released")
	}
}

func TestPrune_NeverDeletesSessionsCreatedAfterStart(t *testing.T) {
	s := newTestStore(t)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	seedSession(t, s, "", 1000, future)

	report, code := s.PruneSize(0, "", time.Hour)
	if code != PruneFail {
		t.Fatalf("code = %d, want %d (target unmet)", code, PruneFail)
	}
	if report.Deleted != 0 || report.RemainingBytes != 1000 {
		t.Errorf("report = %+v", report)
	}
}

func TestPrune_InvalidInput(t *testing.T) {
	s := newTestStore(t)
	if _, code := s.PruneSize(-1, "", time.Hour); code != PruneFail {
		t.Errorf("code = %d, want %d", code, PruneFail)
	}
}
