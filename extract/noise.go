package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// adMarkerTokens are class/id tokens that mark ad, promo and consent
// containers. Matching is token-wise on the attribute value so that words
// merely containing "ad" (header, shadow, gradient) are never hit.
var adMarkerTokens = map[string]struct{}{
	"ad":             {},
	"ads":            {},
	"advert":         {},
	"adverts":        {},
	"advertisement":  {},
	"advertisements": {},
	"advertising":    {},
	"adsense":        {},
	"adslot":         {},
	"adbox":          {},
	"sponsor":        {},
	"sponsored":      {},
	"sponsorship":    {},
	"promo":          {},
	"promoted":       {},
	"promotion":      {},
	"outbrain":       {},
	"taboola":        {},
	"doubleclick":    {},
	"popup":          {},
	"popover":        {},
	"paywall":        {},
	"cookie":         {},
	"cookies":        {},
	"consent":        {},
	"gdpr":           {},
	"newsletter":     {},
}

// noiseLines are dropped from extracted text when their trimmed value is an
// exact match. Substrings inside real sentences are never touched.
var noiseLines = map[string]struct{}{
	"Advertisement":                  {},
	"ADVERTISEMENT":                  {},
	"advertisement":                  {},
	"Advertisements":                 {},
	"Sponsored":                      {},
	"SPONSORED":                      {},
	"Sponsored Content":              {},
	"SPONSORED CONTENT":              {},
	"Sponsored Links":                {},
	"Promoted":                       {},
	"Promoted Content":               {},
	"Recommended for you":            {},
	"RECOMMENDED FOR YOU":            {},
	"Video":                          {},
	"VIDEO":                          {},
	"Play Video":                     {},
	"Watch Video":                    {},
	"Loading...":                     {},
	"Loading…":                       {},
	"Accept Cookies":                 {},
	"Accept All Cookies":             {},
	"Accept all cookies":             {},
	"Reject All":                     {},
	"Cookie Settings":                {},
	"Manage Cookies":                 {},
	"Manage Preferences":             {},
	"We use cookies":                 {},
	"We use cookies on this site":    {},
	"This website uses cookies":      {},
	"Share":                          {},
	"Share this article":             {},
	"Share on Facebook":              {},
	"Share on Twitter":               {},
	"Follow us on Facebook":          {},
	"Follow us on Twitter":           {},
	"Follow us on Instagram":         {},
	"Subscribe":                      {},
	"Subscribe Now":                  {},
	"Subscribe to our newsletter":    {},
	"Sign up for our newsletter":     {},
	"Sign up":                        {},
	"Log in":                         {},
	"Sign in":                        {},
	"Read More":                      {},
	"READ MORE":                      {},
	"Skip to content":                {},
	"Skip to main content":           {},
	"Enable JavaScript to view this": {},
}

var reAttrToken = regexp.MustCompile(`[a-z0-9]+`)

// hasAdToken reports whether a class or id value contains an ad marker token.
func hasAdToken(attr string) bool {
	for _, tok := range reAttrToken.FindAllString(strings.ToLower(attr), -1) {
		if _, hit := adMarkerTokens[tok]; hit {
			return true
		}
	}
	return false
}

// removeAdElements drops every element whose id or class carries an ad
// marker token. Runs before text collection so ad copy never reaches the
// line filter.
func removeAdElements(scope *goquery.Selection) {
	scope.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		if hasAdToken(s.AttrOr("class", "")) || hasAdToken(s.AttrOr("id", "")) {
			s.Remove()
		}
	})
}

// dropNoiseLines removes lines whose trimmed value exactly equals a noise
// marker, returning the filtered text and how many lines were dropped.
func dropNoiseLines(text string) (string, int) {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	dropped := 0
	for _, ln := range lines {
		if _, noise := noiseLines[strings.TrimSpace(ln)]; noise {
			dropped++
			continue
		}
		kept = append(kept, ln)
	}
	if dropped == 0 {
		return text, 0
	}
	return normalizeText(strings.Join(kept, "\n")), dropped
}
