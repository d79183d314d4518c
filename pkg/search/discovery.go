package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
)

// DiscoveryOptions configures Discover. All fields have sane zero-value
// defaults applied by Discover itself, matching the rest of this package's
// DefaultXOptions convention.
type DiscoveryOptions struct {
	MaxCandidateCollections int      // collections kept after name-pattern filtering+scoring, default 3
	ProbeK                  int      // vectors fetched per probe query during collection scoring, default 5
	MaxResults              int      // final evidence/citation count, default 8
	Lambda                  float32  // MMR lambda for broad retrieval, default 0.7
	FocusReranker           Reranker // optional reranker applied to the best collection's semantic-focus pass
	PromoteReadme           bool     // boost results whose file_path looks like a README
	CitationMinWords        int      // default 8
	CitationMaxWords        int      // default 30
}

// DefaultDiscoveryOptions returns the baseline option set.
func DefaultDiscoveryOptions() DiscoveryOptions {
	return DiscoveryOptions{
		MaxCandidateCollections: 3,
		ProbeK:                  5,
		MaxResults:              8,
		Lambda:                  0.7,
		CitationMinWords:        8,
		CitationMaxWords:        30,
	}
}

func (o *DiscoveryOptions) applyDefaults() {
	if o.MaxCandidateCollections <= 0 {
		o.MaxCandidateCollections = 3
	}
	if o.ProbeK <= 0 {
		o.ProbeK = 5
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 8
	}
	if o.Lambda == 0 {
		o.Lambda = 0.7
	}
	if o.CitationMinWords <= 0 {
		o.CitationMinWords = 8
	}
	if o.CitationMaxWords <= 0 {
		o.CitationMaxWords = 30
	}
}

// ScoredCollection is a candidate collection ranked by how well a short
// probe query matches its contents.
type ScoredCollection struct {
	Name  string
	Score float32
}

// Citation is one piece of retrieved evidence compressed to a short,
// citable sentence.
type Citation struct {
	Collection string
	FilePath   string
	ChunkIndex int
	Sentence   string
	Score      float32
}

// AnswerSection groups citations sharing a source file into one section
// of the answer plan.
type AnswerSection struct {
	Heading   string
	Citations []Citation
}

// AnswerPlan is the evidence, grouped into sections, that a caller-side
// LLM is meant to write its answer from.
type AnswerPlan struct {
	Query    string
	Sections []AnswerSection
}

// DiscoveryResult is the full output of Discover: the candidate
// collections considered, the one focused on, the diversified evidence
// pool, its citations, the grouped answer plan, and a rendered prompt
// ready to hand to an LLM.
type DiscoveryResult struct {
	Candidates []ScoredCollection
	Focus      string
	Evidence   []TaggedResult
	Citations  []Citation
	Plan       AnswerPlan
	Prompt     string
}

// ProviderResolver returns the embedding provider a given collection was
// configured with; Discover uses it once per candidate collection.
type ProviderResolver func(*collection.Collection) (embedding.Provider, error)

// Discover runs the full discovery pipeline: it filters candidate
// collections by namePattern (stopword-stripped token overlap against
// each collection name), scores the survivors with a short probe query,
// expands query into rule-based variations, broadly retrieves across the
// top-scoring collections with MMR diversification, runs a semantic-focus
// pass with optional reranking on the single best collection, optionally
// promotes README-sourced evidence, compresses the merged pool into
// short citation sentences, builds an answer plan grouping citations by
// source file, and renders a final LLM-ready prompt.
//
// namePattern may be empty, in which case every collection in
// collections is a candidate.
func Discover(ctx context.Context, collections map[string]*collection.Collection, resolve ProviderResolver, namePattern, query string, opts DiscoveryOptions) (*DiscoveryResult, error) {
	opts.applyDefaults()

	candidates := filterCollectionsByPattern(collections, namePattern)
	if len(candidates) == 0 {
		candidates = allCollectionNames(collections)
	}

	scored, err := scoreCandidates(ctx, collections, resolve, candidates, query, opts.ProbeK)
	if err != nil {
		return nil, err
	}
	if len(scored) > opts.MaxCandidateCollections {
		scored = scored[:opts.MaxCandidateCollections]
	}
	if len(scored) == 0 {
		return &DiscoveryResult{Plan: AnswerPlan{Query: query}}, nil
	}

	top := make(map[string]*collection.Collection, len(scored))
	names := make([]string, 0, len(scored))
	for _, sc := range scored {
		top[sc.Name] = collections[sc.Name]
		names = append(names, sc.Name)
	}

	focusProvider, err := resolve(top[scored[0].Name])
	if err != nil {
		return nil, err
	}

	broadK := opts.MaxResults * candidateFactor

	evidence, err := IntelligentMultiSearch(ctx, top, focusProvider, query, names, IntelligentOptions{
		MaxResults: broadK,
		Lambda:     opts.Lambda,
	})
	if err != nil {
		return nil, err
	}

	focusResults, err := SemanticSearch(ctx, top[scored[0].Name], focusProvider, query, SemanticOptions{
		MaxResults: opts.MaxResults,
		Reranker:   opts.FocusReranker,
	})
	if err == nil {
		for _, r := range focusResults {
			evidence = append(evidence, TaggedResult{Collection: scored[0].Name, SearchResult: r})
		}
	}

	evidence = dedupeTagged(evidence)
	if opts.PromoteReadme {
		promoteReadmeResults(evidence)
	}
	sortTaggedByScoreDesc(evidence)
	if len(evidence) > opts.MaxResults {
		evidence = evidence[:opts.MaxResults]
	}

	citations := compressToCitations(evidence, opts.CitationMinWords, opts.CitationMaxWords)
	plan := buildAnswerPlan(query, citations)
	prompt := renderPrompt(plan)

	return &DiscoveryResult{
		Candidates: scored,
		Focus:      scored[0].Name,
		Evidence:   evidence,
		Citations:  citations,
		Plan:       plan,
		Prompt:     prompt,
	}, nil
}

// filterCollectionsByPattern keeps collection names sharing at least one
// significant (stopword-stripped) token with namePattern. An empty
// pattern matches nothing here; Discover falls back to every collection
// in that case.
func filterCollectionsByPattern(collections map[string]*collection.Collection, namePattern string) []string {
	tokens := significantWords(namePattern)
	if len(tokens) == 0 {
		return nil
	}
	var matched []string
	for name := range collections {
		lower := strings.ToLower(name)
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				matched = append(matched, name)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

func allCollectionNames(collections map[string]*collection.Collection) []string {
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// scoreCandidates probes each candidate collection with query, scoring it
// by the average similarity of its top ProbeK hits, and returns
// candidates sorted by descending score. Collections with no provider or
// no hits score zero rather than being excluded, so an empty collection
// never crashes discovery.
func scoreCandidates(ctx context.Context, collections map[string]*collection.Collection, resolve ProviderResolver, candidates []string, query string, probeK int) ([]ScoredCollection, error) {
	scored := make([]ScoredCollection, 0, len(candidates))
	for _, name := range candidates {
		c, ok := collections[name]
		if !ok {
			continue
		}
		var score float32
		if provider, err := resolve(c); err == nil {
			if vec, err := provider.Embed(ctx, query); err == nil {
				if hits, err := c.Search(vec, probeK); err == nil && len(hits) > 0 {
					var sum float32
					for _, h := range hits {
						sum += h.Score
					}
					score = sum / float32(len(hits))
				}
			}
		}
		scored = append(scored, ScoredCollection{Name: name, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

func dedupeTagged(results []TaggedResult) []TaggedResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]TaggedResult, 0, len(results))
	for _, r := range results {
		key := r.Collection + "\x00" + r.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// promoteReadmeResults boosts results whose file_path names a README so
// project overview documents surface before narrower chunks of similar
// score, mirroring the discovery doc-promotion convention.
func promoteReadmeResults(results []TaggedResult) {
	const boost = 0.05
	for i := range results {
		path, _ := results[i].Payload["file_path"].(string)
		if looksLikeReadme(path) {
			results[i].Score += boost
		}
	}
}

func looksLikeReadme(path string) bool {
	base := path
	if idx := strings.LastIndexAny(path, "/\\"); idx >= 0 {
		base = path[idx+1:]
	}
	return strings.HasPrefix(strings.ToLower(base), "readme")
}

// compressToCitations turns each tagged result's chunk text into a citable
// sentence of at most maxWords words: the text up to the first ". " (then
// "? ", then "! ") when that span has at least minWords words, otherwise
// the chunk's leading words. A chunk shorter than minWords words yields a
// shorter citation.
func compressToCitations(results []TaggedResult, minWords, maxWords int) []Citation {
	citations := make([]Citation, 0, len(results))
	for _, r := range results {
		text, _ := r.Payload["text"].(string)
		sentence := compressSentence(text, minWords, maxWords)
		if sentence == "" {
			continue
		}
		citations = append(citations, Citation{
			Collection: r.Collection,
			FilePath:   fieldString(r.Payload, "file_path"),
			ChunkIndex: intPayload(r.Payload, "chunk_index", 0),
			Sentence:   sentence,
			Score:      r.Score,
		})
	}
	return citations
}

func fieldString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func compressSentence(text string, minWords, maxWords int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	for _, sep := range []string{". ", "? ", "! "} {
		if idx := strings.Index(text, sep); idx >= 0 {
			candidate := strings.TrimSpace(text[:idx+1])
			if wc := len(strings.Fields(candidate)); wc >= minWords {
				return truncateWords(candidate, maxWords)
			}
		}
	}
	return truncateWords(text, maxWords)
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// buildAnswerPlan groups citations by source file into sections, ordered
// by each section's best citation score.
func buildAnswerPlan(query string, citations []Citation) AnswerPlan {
	order := make([]string, 0)
	sections := make(map[string]*AnswerSection)
	for _, c := range citations {
		heading := c.FilePath
		if heading == "" {
			heading = c.Collection
		}
		sec, ok := sections[heading]
		if !ok {
			sec = &AnswerSection{Heading: heading}
			sections[heading] = sec
			order = append(order, heading)
		}
		sec.Citations = append(sec.Citations, c)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return bestScore(sections[order[i]]) > bestScore(sections[order[j]])
	})
	plan := AnswerPlan{Query: query, Sections: make([]AnswerSection, 0, len(order))}
	for _, h := range order {
		plan.Sections = append(plan.Sections, *sections[h])
	}
	return plan
}

func bestScore(s *AnswerSection) float32 {
	var best float32
	for _, c := range s.Citations {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}

// renderPrompt writes plan as an LLM-ready prompt: the query, followed by
// each section's citations rendered as numbered, source-tagged evidence.
func renderPrompt(plan AnswerPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nEvidence:\n", plan.Query)
	n := 1
	for _, sec := range plan.Sections {
		fmt.Fprintf(&b, "\n## %s\n", sec.Heading)
		for _, c := range sec.Citations {
			fmt.Fprintf(&b, "[%d] (%s, chunk %d) %s\n", n, c.Collection, c.ChunkIndex, c.Sentence)
			n++
		}
	}
	b.WriteString("\nAnswer the question using only the evidence above, citing sources by number.\n")
	return b.String()
}
