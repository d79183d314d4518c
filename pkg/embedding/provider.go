// Package embedding implements the embedding provider registry: sparse
// TF-IDF/BM25/BagOfWords/CharNGram providers built on feature hashing, a
// routing stub for externally-hosted dense transformer models, and the
// deterministic hash-based fallback every provider must fall back to
// rather than ever return a zero vector.
package embedding

import (
	"context"
	"crypto/sha256"
	"math"
	"math/rand"
	"regexp"
	"strings"

	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

// DefaultDimension is the fixed output width sparse providers project onto
// via feature hashing.
const DefaultDimension = 512

// Provider is the capability set every embedding method exposes: fit a
// corpus, embed a text, declare its dimension, and persist/restore its
// fitted vocabulary.
type Provider interface {
	Name() string
	Dimension() int
	Fit(ctx context.Context, corpus []string) error
	Embed(ctx context.Context, text string) ([]float32, error)
	SaveVocabulary(path string) error
	LoadVocabulary(path string) error
}

var tokenRegex = regexp.MustCompile(`[A-Za-z0-9_]+`)

// tokenize lowercases and splits text into word tokens.
func tokenize(text string) []string {
	return tokenRegex.FindAllString(strings.ToLower(text), -1)
}

// charNGrams extracts character n-grams of size n from text (lowercased,
// whitespace-collapsed), robust to typos and multilingual input.
func charNGrams(text string, n int) []string {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	runes := []rune(text)
	if len(runes) < n {
		if len(runes) == 0 {
			return nil
		}
		return []string{string(runes)}
	}
	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return grams
}

// featureHash maps a token into a hashed bucket in [0, dim), used to
// project an unbounded vocabulary onto a fixed-size dense vector.
func featureHash(token string, dim int) int {
	sum := sha256.Sum256([]byte(token))
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(sum[i])
	}
	return int(h % uint64(dim))
}

// hashFallback computes the deterministic, never-zero fallback vector:
// hash the normalized input bytes, seed a PRNG from the hash, draw `dim`
// values, L2-normalize.
func hashFallback(text string, dim int) []float32 {
	normalized := strings.TrimSpace(strings.ToLower(text))
	sum := sha256.Sum256([]byte(normalized))
	var seed int64
	for i := 0; i < 8; i++ {
		seed = seed<<8 | int64(sum[i])
	}
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}
	return l2Normalize(vec)
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		v[0] = 1
		sumSq = 1
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// isZero reports whether v has no component with |x| > 0.
func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// guardNonZero enforces the "embed() never returns the zero vector"
// invariant: callers pass their computed vector plus the original text;
// if the vector is all zero, the deterministic fallback is substituted.
func guardNonZero(vec []float32, text string, dim int) []float32 {
	if len(vec) == 0 || isZero(vec) {
		return hashFallback(text, dim)
	}
	return vec
}

var errNotFitted = verrors.State("embedding.embed", verrors.ErrNotFitted)

// NotFittedError is returned by Embed when a provider requiring a fitted
// vocabulary has not been fit or loaded yet.
func NotFittedError() error { return errNotFitted }
