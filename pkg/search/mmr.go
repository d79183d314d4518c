package search

import "github.com/halcyonlabs/vecstore/pkg/collection"

// MMR applies Maximal Marginal Relevance diversification:
// iteratively pick the remaining candidate with the highest
// lambda*score - (1-lambda)*maxSim, where maxSim is its largest similarity
// to an already-picked result, until limit results are chosen or
// candidates run out. No candidate is excluded by a similarity cutoff; a
// near-duplicate is only ranked lower. Similarity compares two
// results' vectors from the vectors map; a candidate with no vector entry
// contributes zero similarity and is treated as maximally diverse.
func MMR(candidates []collection.SearchResult, vectors map[string][]float32, limit int, lambda float32) []collection.SearchResult {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}
	pool := make([]collection.SearchResult, len(candidates))
	copy(pool, candidates)
	sortByScoreDesc(pool)

	picked := make([]collection.SearchResult, 0, limit)
	used := make(map[int]bool, len(pool))

	for len(picked) < limit && len(used) < len(pool) {
		bestIdx := -1
		var bestScore float32 = -1e9
		for i, cand := range pool {
			if used[i] {
				continue
			}
			maxSim := float32(0)
			for _, p := range picked {
				sim := cosineSim(vectors[cand.ID], vectors[p.ID])
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*cand.Score - (1-lambda)*maxSim
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		picked = append(picked, pool[bestIdx])
	}
	return picked
}

func cosineSim(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt32(na) * sqrt32(nb))
}

func sqrt32(x float32) float32 {
	// Newton's method, adequate precision for an MMR similarity proxy and
	// avoids pulling in math.Sqrt's float64 round trip in a hot loop.
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 8; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
