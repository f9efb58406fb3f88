package research

import "strings"

// Merge unions learnings and sources of all results, keeping first-seen order and
// dropping exact duplicates and blank entries.
func Merge(results ...ResearchResult) ResearchResult {
	out := ResearchResult{Learnings: []string{}, Sources: []string{}}
	seenLearning := make(map[string]struct{})
	seenSource := make(map[string]struct{})

	for _, r := range results {
		out.Learnings = appendUnique(out.Learnings, seenLearning, r.Learnings)
		out.Sources = appendUnique(out.Sources, seenSource, r.Sources)
	}
	return out
}

func appendUnique(dst []string, seen map[string]struct{}, items []string) []string {
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}

// NormalizeQuery folds case and collapses whitespace so that sibling queries can
// be compared.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
