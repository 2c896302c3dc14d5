package newsfeed

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/webgrab/webgrab/models"
)

// dedupKey builds the strongest identity available for a story: normalized
// headline plus publication day plus section when present, degrading to the
// headline alone.
func dedupKey(s *models.Story) string {
	head := strings.ToLower(strings.Join(strings.Fields(s.Headline), " "))
	day := ""
	if s.Published != nil && len(*s.Published) >= 10 {
		day = (*s.Published)[:10]
	}
	switch {
	case day != "" && s.Section != "":
		return head + "\x00" + day + "\x00" + s.Section
	case day != "":
		return head + "\x00" + day
	default:
		return head
	}
}

// richness breaks depth ties between duplicate sightings: the more complete
// extraction wins.
func richness(s *models.Story) int {
	score := 0
	if s.Subheadline != "" {
		score++
	}
	if s.CommentCount != nil {
		score++
	}
	b := utf8.RuneCountInString(s.BodySnippet) / 80
	if b > 4 {
		b = 4
	}
	score += b
	score += len(s.Tags)
	return score
}

// dedupe collapses stories sharing a key. The shallowest sighting wins,
// then the richest, then the first seen. Losers contribute their
// seen_on_pages to the winner. Winner positions are stable.
func dedupe(stories []models.Story) ([]models.Story, int) {
	kept := make([]models.Story, 0, len(stories))
	index := make(map[string]int, len(stories))
	removed := 0
	for _, s := range stories {
		key := dedupKey(&s)
		at, dup := index[key]
		if !dup {
			index[key] = len(kept)
			kept = append(kept, s)
			continue
		}
		removed++
		w := &kept[at]
		if s.Provenance.CrawlDepth < w.Provenance.CrawlDepth ||
			(s.Provenance.CrawlDepth == w.Provenance.CrawlDepth && richness(&s) > richness(w)) {
			s.SeenOnPages = append(s.SeenOnPages, w.SeenOnPages...)
			kept[at] = s
		} else {
			w.SeenOnPages = append(w.SeenOnPages, s.SeenOnPages...)
		}
	}
	return kept, removed
}

// sortStories orders newest first; stories without a parsed date sink to
// the end in extraction order.
func sortStories(stories []models.Story) {
	sort.SliceStable(stories, func(i, j int) bool {
		ti, iok := storyTime(&stories[i])
		tj, jok := storyTime(&stories[j])
		switch {
		case iok && jok:
			return ti.After(tj)
		case iok:
			return true
		default:
			return false
		}
	})
}

func storyTime(s *models.Story) (time.Time, bool) {
	if s.Published == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *s.Published)
	return t, err == nil
}
