package search

import (
	"context"
	"strings"
	"testing"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
)

func resolverFor(provider embedding.Provider) ProviderResolver {
	return func(*collection.Collection) (embedding.Provider, error) { return provider, nil }
}

func TestDiscoverFiltersCollectionsByPattern(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)

	goDocs := newTestCollection(t, "go-docs", provider)
	insertText(t, ctx, goDocs, provider, "1", "goroutines channels concurrency patterns", map[string]any{
		"file_path": "concurrency.md", "chunk_index": 0, "text": "Goroutines are lightweight threads managed by the Go runtime.",
	})

	rustDocs := newTestCollection(t, "rust-docs", provider)
	insertText(t, ctx, rustDocs, provider, "1", "ownership borrowing lifetimes memory safety", map[string]any{
		"file_path": "ownership.md", "chunk_index": 0, "text": "Rust ownership rules enforce memory safety without a garbage collector.",
	})

	collections := map[string]*collection.Collection{"go-docs": goDocs, "rust-docs": rustDocs}
	result, err := Discover(ctx, collections, resolverFor(provider), "go", "goroutines concurrency", DefaultDiscoveryOptions())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if result.Focus != "go-docs" {
		t.Errorf("expected go-docs to be the focus collection, got %q (candidates=%+v)", result.Focus, result.Candidates)
	}
	for _, c := range result.Candidates {
		if c.Name == "rust-docs" {
			t.Errorf("expected rust-docs to be filtered out by name pattern, got candidates %+v", result.Candidates)
		}
	}
}

func TestDiscoverBuildsCitationsAndPrompt(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	docs := newTestCollection(t, "docs", provider)
	insertText(t, ctx, docs, provider, "1", "vector search hnsw index approximate nearest neighbor", map[string]any{
		"file_path": "search.md", "chunk_index": 0,
		"text": "HNSW builds a layered proximity graph for fast approximate nearest neighbor search over dense vectors.",
	})
	insertText(t, ctx, docs, provider, "2", "vector search quantization compression", map[string]any{
		"file_path": "README.md", "chunk_index": 0,
		"text": "This project implements a vector search engine with optional quantization for compact storage.",
	})

	collections := map[string]*collection.Collection{"docs": docs}
	opts := DefaultDiscoveryOptions()
	opts.PromoteReadme = true
	result, err := Discover(ctx, collections, resolverFor(provider), "", "vector search", opts)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(result.Citations) == 0 {
		t.Fatal("expected at least one citation")
	}
	for _, c := range result.Citations {
		words := len(strings.Fields(c.Sentence))
		if words > opts.CitationMaxWords {
			t.Errorf("citation sentence too long (%d words): %q", words, c.Sentence)
		}
	}
	if len(result.Plan.Sections) == 0 {
		t.Fatal("expected the answer plan to contain at least one section")
	}
	if !strings.Contains(result.Prompt, "Question: vector search") {
		t.Errorf("expected rendered prompt to restate the query, got %q", result.Prompt)
	}
	if !strings.Contains(result.Prompt, "Evidence:") {
		t.Errorf("expected rendered prompt to include an evidence section, got %q", result.Prompt)
	}
}

func TestDiscoverNoCollectionsReturnsEmptyResult(t *testing.T) {
	ctx := context.Background()
	provider := embedding.NewBagOfWords(embedding.DefaultDimension)
	result, err := Discover(ctx, map[string]*collection.Collection{}, resolverFor(provider), "", "anything", DefaultDiscoveryOptions())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(result.Candidates) != 0 || len(result.Citations) != 0 {
		t.Errorf("expected empty result for empty store, got %+v", result)
	}
}

func TestLooksLikeReadme(t *testing.T) {
	cases := map[string]bool{
		"README.md":        true,
		"readme.txt":       true,
		"docs/README.md":   true,
		"docs/overview.md": false,
		"":                 false,
	}
	for path, want := range cases {
		if got := looksLikeReadme(path); got != want {
			t.Errorf("looksLikeReadme(%q) = %v, want %v", path, got, want)
		}
	}
}
