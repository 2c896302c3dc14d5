package simhash

import "testing"

func TestFingerprint_Deterministic(t *testing.T) {
	text := "session chunk stored under guid with four chunks total"
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("same text produced different fingerprints")
	}
}

func TestFingerprint_CaseFolded(t *testing.T) {
	a := Fingerprint("Quarterly Report Revenue Grew")
	b := Fingerprint("quarterly report revenue grew")
	if a != b {
		t.Errorf("case variants differ: %064b vs %064b", a, b)
	}
}

func TestFingerprint_EmptyAndWhitespace(t *testing.T) {
	for _, text := range []string{"", "   \t\n  "} {
		if fp := Fingerprint(text); fp != 0 {
			t.Errorf("Fingerprint(%q) = %064b, want 0", text, fp)
		}
	}
}

func TestFingerprint_SingleWord(t *testing.T) {
	if Fingerprint("webgrab") == 0 {
		t.Error("single word produced zero fingerprint")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
		{"zero zero", 0, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Distance(tc.a, tc.b); got != tc.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
	if Distance(7, 1) != Distance(1, 7) {
		t.Error("distance is not symmetric")
	}
}

func TestNear(t *testing.T) {
	a := Fingerprint("list of sessions visible to the caller")
	b := Fingerprint("unrelated text about percentile latency buckets")

	if !Near(a, a, 0) {
		t.Error("a fingerprint is not near itself at threshold 0")
	}
	dist := Distance(a, b)
	if dist == 0 {
		t.Fatalf("distinct texts collided; pick new test inputs")
	}
	if Near(a, b, dist-1) {
		t.Errorf("near at threshold %d below distance %d", dist-1, dist)
	}
	if !Near(a, b, dist) {
		t.Errorf("not near at threshold equal to distance %d", dist)
	}
}

// Dropping one word out of many flips far fewer bits than replacing the
// whole vocabulary does.
func TestFingerprint_SharedWordsStayCloser(t *testing.T) {
	base := "the crawler visited twelve pages across three levels and stored nine hundred links"
	near := "the crawler visited eleven pages across three levels and stored nine hundred links"
	far := "percentile summaries use interpolated ranks over recorded operation durations only"

	fpBase := Fingerprint(base)
	dNear := Distance(fpBase, Fingerprint(near))
	dFar := Distance(fpBase, Fingerprint(far))
	if dNear >= dFar {
		t.Errorf("one-word edit distance %d not closer than disjoint text distance %d", dNear, dFar)
	}
}
