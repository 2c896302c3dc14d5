package loadsim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	recBody1 = `{"title":"Alpha Launch","content":"alpha bravo charlie delta echo foxtrot golf hotel india juliet"}`
	recBody2 = `{"title":"Metrics Digest","content":"metric pipeline latency histogram quantile export dashboard series window buffer"}`
	// Same words as recBody1 in a different order: different bytes, same
	// fingerprint.
	recBody1Shuffled = `{"title":"Launch Alpha","content":"juliet india hotel golf foxtrot echo delta charlie bravo alpha"}`
)

func TestRecorder_WritesAndDedups(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(dir, NewScrubber(false))

	for _, body := range []string{recBody1, recBody1, recBody1Shuffled, recBody2} {
		if err := rec.Record(OpContentSingle, body); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	written, skipped := rec.Stats()
	if written != 2 || skipped != 2 {
		t.Fatalf("written=%d skipped=%d, want 2 and 2", written, skipped)
	}

	files, err := filepath.Glob(filepath.Join(dir, OpContentSingle, "*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("found %d fixtures, want 2", len(files))
	}
	for _, f := range files {
		if base := filepath.Base(f); len(base) != len("0123456789abcdef.json") {
			t.Errorf("fixture name %q is not a 16-hex-char hash", base)
		}
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read fixture: %v", err)
		}
		if !json.Valid(data) {
			t.Errorf("fixture %s is not valid JSON", f)
		}
	}
}

func TestRecorder_SeparatesOps(t *testing.T) {
	rec := NewRecorder(t.TempDir(), nil)
	if err := rec.Record(OpStructure, recBody1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := rec.Record(OpNews, recBody1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	written, skipped := rec.Stats()
	if written != 2 || skipped != 0 {
		t.Errorf("written=%d skipped=%d, want 2 and 0 across distinct ops", written, skipped)
	}
}

func TestRecorder_ScrubsBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(dir, NewScrubber(false))
	body := `{"content":"reach me at zed@corp.example or (212) 555-0187"}`
	if err := rec.Record(OpContentSingle, body); err != nil {
		t.Fatalf("Record: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, OpContentSingle, "*.json"))
	if err != nil || len(files) != 1 {
		t.Fatalf("fixtures on disk: %v (err %v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if strings.Contains(string(data), "zed@corp.example") {
		t.Error("fixture leaks the original email")
	}
	if !strings.Contains(string(data), "user@example.com") {
		t.Error("fixture missing the email mask")
	}
	if !strings.Contains(string(data), "+1-555-0100") {
		t.Error("fixture missing the phone mask")
	}
}
