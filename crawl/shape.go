package crawl

import (
	"encoding/json"
	"strconv"
	"unicode/utf8"

	"github.com/webgrab/webgrab/models"
)

// minPageChars is the floor below which a page's text is never cut. A page
// that cannot fit even at the floor is removed instead; the root page stays
// clamped at the floor because it cannot be removed.
const minPageChars = 2000

// Shape cuts a result down to at most maxChars serialized characters. The
// deepest remaining page is truncated at a sentence or newline boundary when
// that keeps at least minPageChars; otherwise it is removed and the next
// deepest page is considered. Bookkeeping fields record what was cut.
func Shape(res *models.CrawlResult, maxChars int) {
	if res == nil || maxChars <= 0 {
		return
	}
	original := serializedLen(res)
	if original <= maxChars {
		return
	}

	res.Truncated = true
	res.OriginalChars = original

	truncatedOne := false
	for {
		size := serializedLen(res)
		if size <= maxChars {
			break
		}
		overshoot := size - maxChars

		if len(res.Pages) == 0 {
			// Depth-1 inline page.
			if !cutInlineRoot(res, overshoot) {
				break
			}
			truncatedOne = true
			continue
		}

		idx := len(res.Pages) - 1
		runes := []rune(res.Pages[idx].Text)

		// The root entry's text is serialized twice (top level + pages[0]),
		// so a cut there shrinks the response at twice the rate.
		mirrored := idx == 0
		cut := overshoot
		if mirrored {
			cut = (overshoot + 1) / 2
		}
		keep := len(runes) - cut

		if keep >= minPageChars {
			applyText(res, idx, cutAtBoundary(runes, keep), mirrored)
			truncatedOne = true
			continue
		}

		if idx == 0 {
			// Only the root remains; clamp at the floor and accept the rest.
			if len(runes) > minPageChars {
				applyText(res, idx, cutAtBoundary(runes, minPageChars), mirrored)
				truncatedOne = true
			}
			break
		}

		dropLastPage(res)
	}

	if truncatedOne {
		res.PagesTruncatedForLimit++
	}
	res.ReturnedChars = serializedLen(res)
}

func serializedLen(res *models.CrawlResult) int {
	b, err := json.Marshal(res)
	if err != nil {
		return 0
	}
	return len(b)
}

// cutInlineRoot shrinks the top-level page text of a single-page result.
// Returns false once no further cut is possible.
func cutInlineRoot(res *models.CrawlResult, overshoot int) bool {
	runes := []rune(res.Page.Text)
	keep := len(runes) - overshoot
	if keep < minPageChars {
		keep = minPageChars
	}
	if keep >= len(runes) {
		return false
	}
	res.Page.Text = cutAtBoundary(runes, keep)
	return true
}

// applyText replaces a page's text, mirrors it onto the top-level copy for
// the root entry, and keeps the summary text total consistent.
func applyText(res *models.CrawlResult, idx int, newText string, mirrored bool) {
	old := utf8.RuneCountInString(res.Pages[idx].Text)
	res.Pages[idx].Text = newText
	if mirrored {
		res.Page.Text = newText
	}
	if res.Summary != nil {
		res.Summary.TotalTextLength -= old - utf8.RuneCountInString(newText)
	}
}

// dropLastPage removes the deepest page and keeps the summary consistent
// with the pages actually returned.
func dropLastPage(res *models.CrawlResult) {
	last := res.Pages[len(res.Pages)-1]
	res.Pages = res.Pages[:len(res.Pages)-1]
	res.PagesRemovedForLimit++

	if res.Summary == nil {
		return
	}
	res.Summary.TotalPages--
	res.Summary.TotalTextLength -= utf8.RuneCountInString(last.Text)
	key := strconv.Itoa(last.Depth)
	if n := res.Summary.PagesByDepth[key]; n > 1 {
		res.Summary.PagesByDepth[key] = n - 1
	} else {
		delete(res.Summary.PagesByDepth, key)
	}
	res.Summary.MaxDepth = 0
	for _, pg := range res.Pages {
		if pg.Depth > res.Summary.MaxDepth {
			res.Summary.MaxDepth = pg.Depth
		}
	}
}

// cutAtBoundary cuts to at most keep runes, stepping back to the latest
// sentence end or newline that still leaves minPageChars of text.
func cutAtBoundary(runes []rune, keep int) string {
	if keep >= len(runes) {
		return string(runes)
	}
	cut := runes[:keep]
	for i := len(cut) - 1; i >= minPageChars; i-- {
		switch cut[i] {
		case '\n':
			return string(cut[:i])
		case '.', '!', '?':
			return string(cut[:i+1])
		}
	}
	return string(cut)
}
