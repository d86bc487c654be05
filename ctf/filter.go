package ctf

import "strings"

// FilterOptions is a bundle of optional predicates over a challenge list.
// A nil or empty field imposes no constraint. All set predicates are
// independent conjunctions: a challenge survives only if it satisfies every
// one of them.
type FilterOptions struct {
	Solved       *bool
	MinPoints    *int
	MaxPoints    *int
	Category     string   // match on any category, normalized via NormalizeCategory
	Categories   []string // any-of, normalized via NormalizeCategory
	Tags         []string // all-of
	NameContains string   // case-insensitive substring of Name
}

// IsZero reports whether no predicate is set.
func (f FilterOptions) IsZero() bool {
	return f.Solved == nil && f.MinPoints == nil && f.MaxPoints == nil &&
		f.Category == "" && len(f.Categories) == 0 && len(f.Tags) == 0 &&
		f.NameContains == ""
}

// Apply returns the challenges satisfying every set predicate. The input is
// never mutated and the relative order of survivors is preserved.
func (f FilterOptions) Apply(challenges []Challenge) []Challenge {
	result := make([]Challenge, 0, len(challenges))
	for _, c := range challenges {
		if f.match(c, false) {
			result = append(result, c)
		}
	}
	return result
}

// ApplySummary applies only the predicates that are decidable from summary
// fields (solved, category, name). Value-range and tag predicates are
// skipped: split-detail platforms may omit points and always omit tags from
// bulk listings, so judging them before hydration would drop challenges
// that actually match.
func (f FilterOptions) ApplySummary(challenges []Challenge) []Challenge {
	result := make([]Challenge, 0, len(challenges))
	for _, c := range challenges {
		if f.match(c, true) {
			result = append(result, c)
		}
	}
	return result
}

func (f FilterOptions) match(c Challenge, summaryOnly bool) bool {
	if f.Solved != nil && (c.Solved == nil || *c.Solved != *f.Solved) {
		return false
	}
	if f.Category != "" && !containsCategory(c.Categories, f.Category) {
		return false
	}
	if len(f.Categories) > 0 {
		any := false
		for _, want := range f.Categories {
			if containsCategory(c.Categories, want) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if f.NameContains != "" &&
		!strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	if summaryOnly {
		return true
	}
	if f.MinPoints != nil && (c.Value == 0 || c.Value < *f.MinPoints) {
		return false
	}
	if f.MaxPoints != nil && (c.Value == 0 || c.Value > *f.MaxPoints) {
		return false
	}
	for _, tag := range f.Tags {
		if !c.HasTag(tag) {
			return false
		}
	}
	return true
}

// containsCategory compares through NormalizeCategory on both sides, so a
// filter built from a platform's raw spelling still matches after
// enrichment rewrote categories to canonical names.
func containsCategory(categories []string, want string) bool {
	norm := NormalizeCategory(want)
	for _, c := range categories {
		if NormalizeCategory(c) == norm {
			return true
		}
	}
	return false
}
