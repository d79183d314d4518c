package search

import "strings"

// variationForms are the five rule-based rewrites intelligent search and
// the discovery pipeline expand a query into. Each form is a deterministic
// string transform, not a model call, so expansion stays sub-millisecond.
var variationForms = []func(string) string{
	definitionForm,
	featureForm,
	architectureForm,
	apiForm,
	performanceForm,
}

// GenerateVariations rewrites query into up to five phrasings (definition,
// feature, architecture, API, performance forms); the original query is not
// included. A rewrite equal to the original or to an earlier rewrite
// (compared case-insensitively) is dropped so callers never fan out
// duplicate work.
func GenerateVariations(query string) []string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil
	}
	seen := map[string]struct{}{strings.ToLower(trimmed): {}}
	variations := make([]string, 0, len(variationForms))
	for _, form := range variationForms {
		v := strings.TrimSpace(form(trimmed))
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		variations = append(variations, v)
	}
	return variations
}

func definitionForm(q string) string { return "what is " + q }

func featureForm(q string) string { return q + " features and capabilities" }

func architectureForm(q string) string { return q + " architecture and design" }

func apiForm(q string) string { return q + " API reference usage" }

func performanceForm(q string) string { return q + " performance characteristics" }

// stopWords are filtered out of probe queries and collection-name scoring
// in the discovery pipeline; they carry no discriminating signal.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"to": {}, "and": {}, "or": {}, "is": {}, "are": {}, "how": {}, "what": {},
	"does": {}, "do": {}, "with": {}, "about": {}, "show": {}, "me": {},
}

func isStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// significantWords lowercases and splits query, dropping stop words and
// fragments shorter than 2 characters.
func significantWords(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(strings.Trim(f, ".,!?\"'()[]{}:;"))
		if len(w) < 2 || isStopWord(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}
