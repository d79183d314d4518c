package search

import (
	"testing"

	"github.com/halcyonlabs/vecstore/pkg/collection"
)

func TestMMREmptyInputs(t *testing.T) {
	if got := MMR(nil, nil, 5, 0.7); got != nil {
		t.Errorf("expected nil for no candidates, got %+v", got)
	}
	if got := MMR([]collection.SearchResult{{ID: "a", Score: 1}}, nil, 0, 0.7); got != nil {
		t.Errorf("expected nil for limit<=0, got %+v", got)
	}
}

func TestMMRPrefersHighestScoreFirst(t *testing.T) {
	candidates := []collection.SearchResult{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.5},
		{ID: "c", Score: 0.8},
	}
	out := MMR(candidates, nil, 2, 1.0) // lambda=1 ignores diversity entirely
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "c" {
		t.Errorf("MMR with lambda=1 = %+v, want [a, c] by score", out)
	}
}

func TestCosineSim(t *testing.T) {
	if got := cosineSim([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors should have similarity ~1, got %v", got)
	}
	if got := cosineSim([]float32{1, 0}, []float32{0, 1}); got > 0.001 {
		t.Errorf("orthogonal vectors should have similarity ~0, got %v", got)
	}
	if got := cosineSim(nil, []float32{1, 0}); got != 0 {
		t.Errorf("missing vector should yield similarity 0, got %v", got)
	}
}
