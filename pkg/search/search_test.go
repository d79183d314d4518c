package search

import (
	"context"
	"testing"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/distance"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
)

func newTestCollection(t *testing.T, name string, provider embedding.Provider) *collection.Collection {
	t.Helper()
	cfg := collection.DefaultConfig(name, provider.Dimension())
	cfg.Metric = distance.Cosine
	cfg.EmbeddingProvider = provider.Name()
	c, err := collection.New(cfg)
	if err != nil {
		t.Fatalf("collection.New: %v", err)
	}
	return c
}

func insertText(t *testing.T, ctx context.Context, c *collection.Collection, provider embedding.Provider, id, text string, payload map[string]any) {
	t.Helper()
	vec, err := provider.Embed(ctx, text)
	if err != nil {
		t.Fatalf("Embed(%q): %v", text, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if err := c.Insert(id, vec, payload); err != nil {
		t.Fatalf("Insert(%q): %v", id, err)
	}
}

func TestSemanticSearchFiltersByThreshold(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	c := newTestCollection(t, "docs", provider)

	insertText(t, ctx, c, provider, "1", "apples bananas oranges fruit basket", nil)
	insertText(t, ctx, c, provider, "2", "quantum entanglement particle physics", nil)

	opts := DefaultSemanticOptions()
	opts.SimilarityThreshold = 0.01
	results, err := SemanticSearch(ctx, c, provider, "apples bananas fruit", opts)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(results) == 0 || results[0].ID != "1" {
		t.Fatalf("expected doc 1 to rank first, got %+v", results)
	}
}

func TestContextualSearchBoostsMatchingPayload(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	c := newTestCollection(t, "docs", provider)

	insertText(t, ctx, c, provider, "1", "go programming language concurrency", map[string]any{"lang": "go"})
	insertText(t, ctx, c, provider, "2", "go programming language concurrency", map[string]any{"lang": "rust"})

	opts := ContextualOptions{
		SemanticOptions: SemanticOptions{MaxResults: 10, SimilarityThreshold: 0},
		Context:         map[string]any{"lang": "go"},
		ContextWeight:   0.5,
	}
	results, err := ContextualSearch(ctx, c, provider, "go programming language concurrency", opts)
	if err != nil {
		t.Fatalf("ContextualSearch: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected both documents returned, got %+v", results)
	}
	if results[0].ID != "1" {
		t.Errorf("expected the lang=go match to rank first after boosting, got %+v", results[0])
	}
}

func TestMultiCollectionSearchDedupesAndTags(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	a := newTestCollection(t, "a", provider)
	b := newTestCollection(t, "b", provider)
	insertText(t, ctx, a, provider, "shared-id", "shared topic about databases", nil)
	insertText(t, ctx, b, provider, "shared-id", "shared topic about databases", nil)

	collections := map[string]*collection.Collection{"a": a, "b": b}
	results, err := MultiCollectionSearch(ctx, collections, provider, "databases", []string{"a", "b"}, MultiCollectionOptions{MaxTotalResults: 10})
	if err != nil {
		t.Fatalf("MultiCollectionSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one tagged result per collection (dedup is per collection+id), got %d: %+v", len(results), results)
	}
	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Collection] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("expected results tagged from both collections, got %+v", results)
	}
}

func TestIntelligentSearchDiversifies(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	c := newTestCollection(t, "docs", provider)
	insertText(t, ctx, c, provider, "1", "red apples and green apples in a basket", nil)
	insertText(t, ctx, c, provider, "2", "red apples and green apples in a basket", nil)
	insertText(t, ctx, c, provider, "3", "distant galaxies and interstellar travel", nil)

	opts := DefaultIntelligentOptions()
	opts.MaxResults = 3
	results, err := IntelligentSearch(ctx, c, provider, "apples basket fruit", opts)
	if err != nil {
		t.Fatalf("IntelligentSearch: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
}

func TestIntelligentMultiSearchFansOutAcrossCollections(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	guides := newTestCollection(t, "guides", provider)
	notes := newTestCollection(t, "notes", provider)

	insertText(t, ctx, guides, provider, "g1", "apples oranges and other orchard fruit", nil)
	insertText(t, ctx, notes, provider, "n1", "apples pears fruit picking season", nil)
	insertText(t, ctx, notes, provider, "n2", "submarine sonar acoustics", nil)

	collections := map[string]*collection.Collection{"guides": guides, "notes": notes}
	opts := DefaultIntelligentOptions()
	opts.MaxResults = 4
	results, err := IntelligentMultiSearch(ctx, collections, provider, "apples fruit", []string{"guides", "notes"}, opts)
	if err != nil {
		t.Fatalf("IntelligentMultiSearch: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results from the fan-out")
	}
	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Collection] = true
	}
	if !seen["guides"] || !seen["notes"] {
		t.Errorf("expected fruit hits tagged from both collections, got %+v", results)
	}
}

func TestIntelligentMultiSearchDedupesByCollectionAndID(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	a := newTestCollection(t, "a", provider)
	b := newTestCollection(t, "b", provider)
	insertText(t, ctx, a, provider, "shared-id", "distributed systems consensus algorithms", nil)
	insertText(t, ctx, b, provider, "shared-id", "distributed systems consensus algorithms", nil)

	collections := map[string]*collection.Collection{"a": a, "b": b}
	opts := DefaultIntelligentOptions()
	opts.MaxResults = 10
	results, err := IntelligentMultiSearch(ctx, collections, provider, "distributed consensus", []string{"a", "b"}, opts)
	if err != nil {
		t.Fatalf("IntelligentMultiSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one tagged result per collection, got %d: %+v", len(results), results)
	}
	seen := map[string]int{}
	for _, r := range results {
		seen[r.Collection+"/"+r.ID]++
	}
	for key, n := range seen {
		if n > 1 {
			t.Errorf("duplicate (collection, id) %q in results", key)
		}
	}
}

func TestHybridSearchRRFCombinesBothRankings(t *testing.T) {
	ctx := context.Background()
	dense := embedding.NewBagOfWords(embedding.DefaultDimension)
	sparse := embedding.NewCharNGram(embedding.DefaultDimension, 3)
	c := newTestCollection(t, "docs", dense)

	insertText(t, ctx, c, dense, "1", "machine learning models and neural networks", nil)
	insertText(t, ctx, c, dense, "2", "gardening tips for growing tomatoes", nil)

	results, err := HybridSearch(ctx, c, dense, sparse, "machine learning neural networks", DefaultHybridOptions())
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected fused results")
	}
}

func TestGetFileContentStitchesOverlap(t *testing.T) {
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	c := newTestCollection(t, "docs", provider)
	ctx := context.Background()

	full := "ABCDEFGHIJ"
	chunk0 := full[0:6] // ABCDEF, offsets 0..6
	chunk1 := full[4:10] // EFGHIJ, offsets 4..10
	insertText(t, ctx, c, provider, "c0", chunk0, map[string]any{
		"file_path": "/ws/a.txt", "chunk_index": 0, "text": chunk0, "start_offset": 0, "end_offset": 6,
	})
	insertText(t, ctx, c, provider, "c1", chunk1, map[string]any{
		"file_path": "/ws/a.txt", "chunk_index": 1, "text": chunk1, "start_offset": 4, "end_offset": 10,
	})

	got, err := GetFileContent(c, "/ws/a.txt")
	if err != nil {
		t.Fatalf("GetFileContent: %v", err)
	}
	if got != full {
		t.Errorf("GetFileContent = %q, want %q", got, full)
	}
}

func TestGetFileContentMissingFile(t *testing.T) {
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	c := newTestCollection(t, "docs", provider)
	if _, err := GetFileContent(c, "/ws/missing.txt"); err == nil {
		t.Error("expected error for a file with no stored chunks")
	}
}
