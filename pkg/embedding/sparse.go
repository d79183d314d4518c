package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

// vocabularyFile is the persisted shape shared by the sparse providers:
// per-term IDF weight (or raw frequency for BagOfWords/CharNGram, which
// leave Idf empty) plus bookkeeping needed to resume fitting.
type vocabularyFile struct {
	Name      string             `json:"name"`
	Dimension int                `json:"dimension"`
	Idf       map[string]float64 `json:"idf,omitempty"`
	DocFreq   map[string]int     `json:"doc_freq,omitempty"`
	TotalDocs int                `json:"total_docs"`
	AvgDocLen float64            `json:"avg_doc_len,omitempty"`
	K1        float64            `json:"k1,omitempty"`
	B         float64            `json:"b,omitempty"`
	NGramSize int                `json:"ngram_size,omitempty"`
	Fitted    bool               `json:"fitted"`
}

func saveVocabulary(path string, v vocabularyFile) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return verrors.Validation("embedding.save_vocabulary", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return verrors.Resource("embedding.save_vocabulary", err)
	}
	return nil
}

func loadVocabulary(path string) (vocabularyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vocabularyFile{}, verrors.NotFound("embedding.load_vocabulary", err)
	}
	var v vocabularyFile
	if err := json.Unmarshal(data, &v); err != nil {
		return vocabularyFile{}, verrors.Integrity("embedding.load_vocabulary", err)
	}
	return v, nil
}

// BM25Provider implements Okapi BM25 weighting, feature-hashed onto a fixed
// dimension. It is the default embedding provider and must be
// registered before any other provider in a Manager so it wins the default
// slot.
type BM25Provider struct {
	mu        sync.RWMutex
	dimension int
	k1, b     float64
	idf       map[string]float64
	docFreq   map[string]int
	totalDocs int
	avgDocLen float64
	fitted    bool
}

// NewBM25 builds a BM25 provider with the standard Okapi defaults (k1=1.5, b=0.75).
func NewBM25(dimension int) *BM25Provider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &BM25Provider{dimension: dimension, k1: 1.5, b: 0.75, idf: map[string]float64{}, docFreq: map[string]int{}}
}

func (p *BM25Provider) Name() string    { return "bm25" }
func (p *BM25Provider) Dimension() int  { return p.dimension }

func (p *BM25Provider) Fit(_ context.Context, corpus []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalDocs = len(corpus)
	p.docFreq = make(map[string]int)
	termDocs := make(map[string]map[int]bool)
	totalLen := 0.0

	for docIdx, doc := range corpus {
		terms := tokenize(doc)
		totalLen += float64(len(terms))
		seen := make(map[string]bool)
		for _, term := range terms {
			if seen[term] {
				continue
			}
			seen[term] = true
			if termDocs[term] == nil {
				termDocs[term] = make(map[int]bool)
			}
			termDocs[term][docIdx] = true
		}
	}

	p.idf = make(map[string]float64, len(termDocs))
	for term, docs := range termDocs {
		df := float64(len(docs))
		p.docFreq[term] = len(docs)
		p.idf[term] = math.Log((float64(p.totalDocs)-df+0.5)/(df+0.5) + 1)
	}
	if p.totalDocs > 0 {
		p.avgDocLen = totalLen / float64(p.totalDocs)
	}
	p.fitted = true
	return nil
}

func (p *BM25Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	terms := tokenize(text)
	if len(terms) == 0 {
		return hashFallback(text, p.dimension), nil
	}
	if !p.fitted {
		return nil, errNotFitted
	}

	docLen := float64(len(terms))
	termFreq := make(map[string]int, len(terms))
	for _, t := range terms {
		termFreq[t]++
	}

	vec := make([]float32, p.dimension)
	for term, tf := range termFreq {
		idf, ok := p.idf[term]
		if !ok {
			idf = 1.0
		}
		avgLen := p.avgDocLen
		if avgLen == 0 {
			avgLen = docLen
		}
		numerator := float64(tf) * (p.k1 + 1)
		denominator := float64(tf) + p.k1*(1-p.b+p.b*(docLen/avgLen))
		score := idf * (numerator / denominator)
		vec[featureHash(term, p.dimension)] += float32(score)
	}
	return guardNonZero(vec, text, p.dimension), nil
}

func (p *BM25Provider) SaveVocabulary(path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return saveVocabulary(path, vocabularyFile{
		Name: p.Name(), Dimension: p.dimension, Idf: p.idf, DocFreq: p.docFreq,
		TotalDocs: p.totalDocs, AvgDocLen: p.avgDocLen, K1: p.k1, B: p.b, Fitted: p.fitted,
	})
}

func (p *BM25Provider) LoadVocabulary(path string) error {
	v, err := loadVocabulary(path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dimension, p.idf, p.docFreq = v.Dimension, v.Idf, v.DocFreq
	p.totalDocs, p.avgDocLen, p.fitted = v.TotalDocs, v.AvgDocLen, v.Fitted
	if v.K1 != 0 {
		p.k1 = v.K1
	}
	if v.B != 0 {
		p.b = v.B
	}
	return nil
}

// TFIDFProvider implements classic TF-IDF weighting, feature-hashed onto a
// fixed dimension.
type TFIDFProvider struct {
	mu        sync.RWMutex
	dimension int
	idf       map[string]float64
	docFreq   map[string]int
	totalDocs int
	fitted    bool
}

// NewTFIDF builds a TF-IDF provider.
func NewTFIDF(dimension int) *TFIDFProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &TFIDFProvider{dimension: dimension, idf: map[string]float64{}, docFreq: map[string]int{}}
}

func (p *TFIDFProvider) Name() string   { return "tfidf" }
func (p *TFIDFProvider) Dimension() int { return p.dimension }

func (p *TFIDFProvider) Fit(_ context.Context, corpus []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalDocs = len(corpus)
	p.docFreq = make(map[string]int)
	termDocs := make(map[string]map[int]bool)

	for docIdx, doc := range corpus {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if seen[term] {
				continue
			}
			seen[term] = true
			if termDocs[term] == nil {
				termDocs[term] = make(map[int]bool)
			}
			termDocs[term][docIdx] = true
		}
	}

	p.idf = make(map[string]float64, len(termDocs))
	for term, docs := range termDocs {
		df := float64(len(docs))
		p.docFreq[term] = len(docs)
		p.idf[term] = math.Log(float64(p.totalDocs) / df)
	}
	p.fitted = true
	return nil
}

func (p *TFIDFProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	terms := tokenize(text)
	if len(terms) == 0 {
		return hashFallback(text, p.dimension), nil
	}
	if !p.fitted {
		return nil, errNotFitted
	}

	termFreq := make(map[string]int, len(terms))
	for _, t := range terms {
		termFreq[t]++
	}

	vec := make([]float32, p.dimension)
	for term, tf := range termFreq {
		idf, ok := p.idf[term]
		if !ok {
			idf = 1.0
		}
		vec[featureHash(term, p.dimension)] += float32(float64(tf) * idf)
	}
	return guardNonZero(vec, text, p.dimension), nil
}

func (p *TFIDFProvider) SaveVocabulary(path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return saveVocabulary(path, vocabularyFile{
		Name: p.Name(), Dimension: p.dimension, Idf: p.idf, DocFreq: p.docFreq,
		TotalDocs: p.totalDocs, Fitted: p.fitted,
	})
}

func (p *TFIDFProvider) LoadVocabulary(path string) error {
	v, err := loadVocabulary(path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dimension, p.idf, p.docFreq, p.totalDocs, p.fitted = v.Dimension, v.Idf, v.DocFreq, v.TotalDocs, v.Fitted
	return nil
}

// BagOfWordsProvider projects raw term counts via feature hashing. It
// never requires fitting — embed is available immediately, same as any
// other hash-based method.
type BagOfWordsProvider struct {
	dimension int
}

// NewBagOfWords builds a raw-term-count provider.
func NewBagOfWords(dimension int) *BagOfWordsProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &BagOfWordsProvider{dimension: dimension}
}

func (p *BagOfWordsProvider) Name() string                           { return "bagofwords" }
func (p *BagOfWordsProvider) Dimension() int                         { return p.dimension }
func (p *BagOfWordsProvider) Fit(context.Context, []string) error    { return nil }
func (p *BagOfWordsProvider) SaveVocabulary(string) error             { return nil }
func (p *BagOfWordsProvider) LoadVocabulary(string) error             { return nil }

func (p *BagOfWordsProvider) Embed(_ context.Context, text string) ([]float32, error) {
	terms := tokenize(text)
	vec := make([]float32, p.dimension)
	for _, term := range terms {
		vec[featureHash(term, p.dimension)]++
	}
	return guardNonZero(vec, text, p.dimension), nil
}

// CharNGramProvider projects character n-grams (default n=3) via feature
// hashing, robust to typos and multilingual text. Never requires fitting.
type CharNGramProvider struct {
	dimension int
	n         int
}

// NewCharNGram builds a character n-gram provider with n=3 by default.
func NewCharNGram(dimension, n int) *CharNGramProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if n <= 0 {
		n = 3
	}
	return &CharNGramProvider{dimension: dimension, n: n}
}

func (p *CharNGramProvider) Name() string                        { return fmt.Sprintf("charngram%d", p.n) }
func (p *CharNGramProvider) Dimension() int                       { return p.dimension }
func (p *CharNGramProvider) Fit(context.Context, []string) error { return nil }
func (p *CharNGramProvider) SaveVocabulary(string) error          { return nil }
func (p *CharNGramProvider) LoadVocabulary(string) error          { return nil }

func (p *CharNGramProvider) Embed(_ context.Context, text string) ([]float32, error) {
	grams := charNGrams(text, p.n)
	vec := make([]float32, p.dimension)
	for _, g := range grams {
		vec[featureHash(g, p.dimension)]++
	}
	return guardNonZero(vec, text, p.dimension), nil
}
