// Package newsfeed turns crawled news listing pages into a structured feed.
// The parser is deterministic: no ML, no scoring heuristics beyond the fixed
// rules, conditioned only by a data-only source profile (regex patterns and
// label vocabularies).
package newsfeed

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/webgrab/webgrab/models"
)

//go:embed profiles.yaml
var profilesYAML []byte

// SourceProfile conditions the parser for one publication. It is data, not
// code: every behavior difference between sources lives here.
type SourceProfile struct {
	Name             string   `yaml:"name"`
	DisplayName      string   `yaml:"display_name"`
	Timezone         string   `yaml:"timezone"`
	UTCOffset        string   `yaml:"utc_offset"`
	DatePatterns     []string `yaml:"date_patterns"`
	SectionLabels    []string `yaml:"section_labels"`
	NoiseMarkers     []string `yaml:"noise_markers"`
	SponsoredMarkers []string `yaml:"sponsored_markers"`
	ExclusiveMarkers []string `yaml:"exclusive_markers"`
	OpinionLabels    []string `yaml:"opinion_labels"`

	dateRe *regexp.Regexp
	loc    *time.Location
}

var reUTCOffset = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// compile validates the profile and builds its derived state: the anchor
// alternation and the fixed output zone.
func (p *SourceProfile) compile() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("profile without a name")
	case p.DisplayName == "":
		return fmt.Errorf("profile %s: display_name missing", p.Name)
	case p.Timezone == "":
		return fmt.Errorf("profile %s: timezone missing", p.Name)
	case len(p.DatePatterns) == 0:
		return fmt.Errorf("profile %s: no date_patterns", p.Name)
	}

	m := reUTCOffset.FindStringSubmatch(p.UTCOffset)
	if m == nil {
		return fmt.Errorf("profile %s: utc_offset %q is not +HH:MM", p.Name, p.UTCOffset)
	}
	hh, _ := strconv.Atoi(m[2])
	mm, _ := strconv.Atoi(m[3])
	secs := hh*3600 + mm*60
	if m[1] == "-" {
		secs = -secs
	}
	p.loc = time.FixedZone(p.UTCOffset, secs)

	alts := make([]string, len(p.DatePatterns))
	for i, pat := range p.DatePatterns {
		if _, err := regexp.Compile(pat); err != nil {
			return fmt.Errorf("profile %s: date pattern %q: %w", p.Name, pat, err)
		}
		alts[i] = "(?:" + pat + ")"
	}
	re, err := regexp.Compile(strings.Join(alts, "|"))
	if err != nil {
		return fmt.Errorf("profile %s: combined date pattern: %w", p.Name, err)
	}
	p.dateRe = re
	return nil
}

// Location is the fixed zone dates are rendered in.
func (p *SourceProfile) Location() *time.Location {
	return p.loc
}

// matchesDate reports whether a trimmed line is a date anchor, and returns
// the matched raw value.
func (p *SourceProfile) matchesDate(line string) (string, bool) {
	raw := p.dateRe.FindString(line)
	return raw, raw != ""
}

func containsFold(set []string, line string) bool {
	for _, s := range set {
		if strings.EqualFold(s, line) {
			return true
		}
	}
	return false
}

// Registry holds the compiled source profiles loaded from the embedded
// profiles file.
type Registry struct {
	profiles map[string]*SourceProfile
}

// NewRegistry loads and validates the embedded profiles. An invalid profile
// file is a build defect, so the error is meant to fail startup.
func NewRegistry() (*Registry, error) {
	var doc struct {
		Profiles []*SourceProfile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(profilesYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(doc.Profiles) == 0 {
		return nil, fmt.Errorf("profiles file declares no profiles")
	}

	reg := &Registry{profiles: make(map[string]*SourceProfile, len(doc.Profiles))}
	for _, p := range doc.Profiles {
		if err := p.compile(); err != nil {
			return nil, err
		}
		if _, dup := reg.profiles[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %s", p.Name)
		}
		reg.profiles[p.Name] = p
	}
	if _, ok := reg.profiles["generic"]; !ok {
		return nil, fmt.Errorf("the generic fallback profile is required")
	}
	return reg, nil
}

// Get resolves a profile by name; the empty name falls back to generic.
func (r *Registry) Get(name string) (*SourceProfile, *models.ToolError) {
	if name == "" {
		name = "generic"
	}
	p, ok := r.profiles[name]
	if !ok {
		return nil, models.NewToolError(models.ErrCodeSourceProfile, "unknown source profile", nil).
			WithDetail("source_profile", name).
			WithDetail("available", r.Names())
	}
	return p, nil
}

// Names lists the available profiles, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
