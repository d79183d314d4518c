package search

import (
	"sort"

	"github.com/halcyonlabs/vecstore/pkg/collection"
)

func sortByScoreDesc(results []collection.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

func sortTaggedByScoreDesc(results []TaggedResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}
