// Package checklist reconciles funding-announcement requirements with proposal sections.
package checklist

import (
	"strings"
	"unicode"
)

// aliasGroups lists requirement categories whose names funders use interchangeably.
// A name containing any member is expanded to the whole group before comparison.
var aliasGroups = [][]string{
	{"executive summary", "summary", "abstract", "overview", "project summary"},
	{"statement of need", "needs assessment", "problem statement", "need statement", "community need"},
	{"project description", "program description", "project narrative", "approach", "methodology"},
	{"goals and objectives", "goals", "objectives", "outcomes", "expected results"},
	{"evaluation", "evaluation plan", "measurement", "assessment plan", "performance measures"},
	{"budget", "budget narrative", "budget justification", "financial plan", "cost"},
	{"organizational capacity", "organization background", "capacity", "qualifications", "organizational history"},
	{"sustainability", "sustainability plan", "long term funding", "future funding"},
	{"timeline", "work plan", "schedule", "implementation plan", "milestones"},
	{"key personnel", "staffing", "project team", "management plan", "personnel"},
	{"letters of support", "partnerships", "collaboration", "partners", "letters of commitment"},
}

// normalizedAliases holds aliasGroups after normalization, built once
var normalizedAliases = func() [][]string {
	groups := make([][]string, len(aliasGroups))
	for i, group := range aliasGroups {
		for _, alias := range group {
			groups[i] = append(groups[i], strings.Join(tokens(alias), " "))
		}
	}
	return groups
}()

// tokens lowercases s, strips non-alphanumerics and drops words of two runes or fewer
func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// WordSet is the normalized word set of s
func WordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// Jaccard is |a∩b| / |a∪b| over normalized word sets, 0 when either set is empty
func Jaccard(a, b string) float64 {
	sa, sb := WordSet(a), WordSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for w := range sa {
		if _, ok := sb[w]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// Expand returns name followed by every alias of each group a member of which
// is a substring of the normalized name, so "Timelines" picks up the timeline group.
func Expand(name string) []string {
	normalized := strings.Join(tokens(name), " ")
	out := []string{name}
	seen := map[string]bool{normalized: true}

	for _, group := range normalizedAliases {
		hit := false
		for _, alias := range group {
			if alias != "" && strings.Contains(normalized, alias) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		for _, alias := range group {
			if !seen[alias] {
				seen[alias] = true
				out = append(out, alias)
			}
		}
	}
	return out
}

// Similarity is the best Jaccard score across the alias expansions of both names
func Similarity(a, b string) float64 {
	best := 0.0
	for _, x := range Expand(a) {
		for _, y := range Expand(b) {
			if s := Jaccard(x, y); s > best {
				best = s
			}
		}
	}
	return best
}
