package embedding

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFirstRegisteredProviderIsDefault(t *testing.T) {
	m := NewManager()
	m.Register(NewCharNGram(64, 3))
	m.Register(NewBM25(64))
	m.Register(NewTFIDF(64))

	// CharNGram registered first in this arbitrary order, so it wins the
	// default slot: default selection is registration order, not a
	// fixed provider.
	if m.DefaultName() != "charngram3" {
		t.Fatalf("expected first-registered provider as default, got %s", m.DefaultName())
	}
}

func TestDefaultManagerPicksBM25First(t *testing.T) {
	m := NewDefaultManager()
	if m.DefaultName() != "bm25" {
		t.Fatalf("expected bm25 default, got %s", m.DefaultName())
	}
}

func TestEmbedNeverReturnsZeroVector(t *testing.T) {
	ctx := context.Background()
	providers := []Provider{
		NewBagOfWords(32),
		NewCharNGram(32, 3),
	}
	for _, p := range providers {
		vec, err := p.Embed(ctx, "")
		if err != nil {
			t.Fatalf("%s: embed empty: %v", p.Name(), err)
		}
		if isZero(vec) {
			t.Fatalf("%s: embed returned zero vector for empty input", p.Name())
		}
		if len(vec) != p.Dimension() {
			t.Fatalf("%s: expected dimension %d, got %d", p.Name(), p.Dimension(), len(vec))
		}
	}
}

func TestBM25EmbedBeforeFitReturnsNotFitted(t *testing.T) {
	p := NewBM25(32)
	if _, err := p.Embed(context.Background(), "hello world"); err == nil {
		t.Fatal("expected NotFitted error before Fit")
	}
}

func TestBM25DeterministicAfterFit(t *testing.T) {
	ctx := context.Background()
	p := NewBM25(64)
	corpus := []string{"the quick brown fox", "the lazy dog sleeps", "quick foxes jump high"}
	if err := p.Fit(ctx, corpus); err != nil {
		t.Fatalf("fit: %v", err)
	}

	v1, err := p.Embed(ctx, "quick fox")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	v2, err := p.Embed(ctx, "quick fox")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embed not deterministic at %d: %f vs %f", i, v1[i], v2[i])
		}
	}
}

func TestVocabularySaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewBM25(64)
	if err := p.Fit(ctx, []string{"alpha beta", "beta gamma"}); err != nil {
		t.Fatalf("fit: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bm25.vocab.json")
	if err := p.SaveVocabulary(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewBM25(64)
	if err := loaded.LoadVocabulary(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	want, err := p.Embed(ctx, "alpha gamma")
	if err != nil {
		t.Fatalf("embed original: %v", err)
	}
	got, err := loaded.Embed(ctx, "alpha gamma")
	if err != nil {
		t.Fatalf("embed loaded: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("mismatch after vocabulary round trip at %d: %f vs %f", i, want[i], got[i])
		}
	}
}
