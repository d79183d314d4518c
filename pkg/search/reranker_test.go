package search

import (
	"context"
	"testing"

	"github.com/halcyonlabs/vecstore/pkg/collection"
)

func TestCandidateK(t *testing.T) {
	if got := candidateK(5); got != MinCandidates {
		t.Errorf("candidateK(5) = %d, want floor %d", got, MinCandidates)
	}
	if got := candidateK(20); got != 20*CandidateMultiplier {
		t.Errorf("candidateK(20) = %d, want %d", got, 20*CandidateMultiplier)
	}
}

func TestScoreNormalizationReranker(t *testing.T) {
	results := []collection.SearchResult{
		{ID: "a", Score: 0.2},
		{ID: "b", Score: 0.8},
		{ID: "c", Score: 0.5},
	}
	out, err := ScoreNormalizationReranker.Rerank(context.Background(), "q", results)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if out[0].ID != "b" || out[0].Score != 1 {
		t.Errorf("top result = %+v, want id=b score=1", out[0])
	}
	if out[len(out)-1].ID != "a" || out[len(out)-1].Score != 0 {
		t.Errorf("bottom result = %+v, want id=a score=0", out[len(out)-1])
	}
}

func TestScoreNormalizationRerankerConstantScores(t *testing.T) {
	results := []collection.SearchResult{{ID: "a", Score: 0.5}, {ID: "b", Score: 0.5}}
	out, err := ScoreNormalizationReranker.Rerank(context.Background(), "q", results)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(out) != 2 || out[0].Score != 0.5 || out[1].Score != 0.5 {
		t.Errorf("expected unchanged scores for a flat score set, got %+v", out)
	}
}
