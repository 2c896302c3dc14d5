package loadsim

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"
	"unicode"
)

// Replacement markers. They survive a second scrub pass unchanged and are
// never obfuscated, so recorded fixtures stay re-scrubbable.
const (
	maskEmail    = "user@example.com"
	maskPhone    = "+1-555-0100"
	maskSecret   = "[REDACTED]"
	maskMediaFmt = "https://media.invalid/%d"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Phone patterns require separators so timestamps and numeric ids
	// do not match.
	phoneIntlRe = regexp.MustCompile(`\+\d{1,3}[-. ]?\(?\d{2,4}\)?[-. ]\d{3,4}[-. ]\d{3,4}`)
	phoneUSRe   = regexp.MustCompile(`\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}`)

	bearerRe = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=\-]{8,}`)
	secretRe = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|auth[_-]?token|secret|password)\b\s*[:=]\s*"?[A-Za-z0-9._\-]{8,}"?`)

	mediaRe = regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(?:png|jpe?g|gif|webp|svg|ico|bmp|avif|mp4|webm|mov|mp3|ogg|wav)(?:\?[^\s"'<>]*)?`)

	// secretKeyRe redacts whole string values stored under credential
	// keys, where the value alone gives the text patterns nothing to
	// match on.
	secretKeyRe = regexp.MustCompile(`(?i)^(api[_-]?key|access[_-]?token|auth[_-]?token|secret|password|token)$`)

	letterRunRe = regexp.MustCompile(`[A-Za-z]+`)
)

// protectedWords are left alone by text obfuscation so the masks above and
// bare URL scaffolding stay readable.
var protectedWords = map[string]struct{}{
	"redacted": {},
	"user":     {},
	"example":  {},
	"com":      {},
	"media":    {},
	"invalid":  {},
	"http":     {},
	"https":    {},
	"true":     {},
	"false":    {},
	"null":     {},
}

// Scrubber rewrites PII and secrets out of response bodies before they are
// written to disk. With ObfuscateText set, every remaining word is also
// replaced by a stable pseudoword of the same length and casing so page
// text cannot be reconstructed while sizes and fingerprints stay useful.
type Scrubber struct {
	ObfuscateText bool
}

func NewScrubber(obfuscateText bool) *Scrubber {
	return &Scrubber{ObfuscateText: obfuscateText}
}

// Scrub sanitizes a standalone string. Media URLs are numbered from 1
// within the call.
func (sc *Scrubber) Scrub(s string) string {
	n := 0
	return sc.scrubString(s, &n)
}

// ScrubJSON sanitizes every string value in a JSON document, leaving keys,
// numbers, and structure intact. It returns the re-encoded document plus
// the scrubbed string values joined for fingerprinting. A body that is not
// valid JSON is scrubbed as plain text.
func (sc *Scrubber) ScrubJSON(raw []byte) ([]byte, string, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		s := sc.Scrub(string(raw))
		return []byte(s), s, nil
	}
	n := 0
	var parts []string
	doc = sc.walk(doc, &n, &parts)
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("re-encode scrubbed document: %w", err)
	}
	return out, strings.Join(parts, " "), nil
}

func (sc *Scrubber) walk(v any, mediaN *int, parts *[]string) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if s, ok := child.(string); ok && s != "" && secretKeyRe.MatchString(k) {
				t[k] = maskSecret
				continue
			}
			t[k] = sc.walk(child, mediaN, parts)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = sc.walk(child, mediaN, parts)
		}
		return t
	case string:
		s := sc.scrubString(t, mediaN)
		if s != "" {
			*parts = append(*parts, s)
		}
		return s
	default:
		return v
	}
}

func (sc *Scrubber) scrubString(s string, mediaN *int) string {
	s = mediaRe.ReplaceAllStringFunc(s, func(string) string {
		*mediaN++
		return fmt.Sprintf(maskMediaFmt, *mediaN)
	})
	s = bearerRe.ReplaceAllString(s, "Bearer "+maskSecret)
	s = secretRe.ReplaceAllString(s, "${1}="+maskSecret)
	s = emailRe.ReplaceAllString(s, maskEmail)
	s = phoneIntlRe.ReplaceAllString(s, maskPhone)
	s = phoneUSRe.ReplaceAllString(s, maskPhone)
	if sc.ObfuscateText {
		s = obfuscateWords(s)
	}
	return s
}

// obfuscateWords replaces each letter run with a pseudoword derived only
// from the run itself, so repeated words map to the same pseudoword across
// documents and runs.
func obfuscateWords(s string) string {
	return letterRunRe.ReplaceAllStringFunc(s, func(w string) string {
		if _, ok := protectedWords[strings.ToLower(w)]; ok {
			return w
		}
		return pseudoword(w)
	})
}

const (
	pseudoConsonants = "bcdfghklmnprstvz"
	pseudoVowels     = "aeiou"
)

func pseudoword(w string) string {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(w)))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	b := make([]byte, len(w))
	for i := range b {
		if i%2 == 0 {
			b[i] = pseudoConsonants[rng.Intn(len(pseudoConsonants))]
		} else {
			b[i] = pseudoVowels[rng.Intn(len(pseudoVowels))]
		}
	}

	lower := strings.ToLower(w)
	switch {
	case w != lower && w == strings.ToUpper(w):
		return strings.ToUpper(string(b))
	case unicode.IsUpper(rune(w[0])):
		return strings.ToUpper(string(b[:1])) + string(b[1:])
	default:
		return string(b)
	}
}
