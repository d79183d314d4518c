// Package ingest implements workspace file discovery under the
// watcher's mandatory safety exclusions, fixed-size overlapping
// chunking, content-hash-driven incremental reindex, and collection
// routing.
package ingest

// Chunk is a bounded, transient span of a source file produced by the
// chunker. Ordinal is the chunk's position within its file;
// Start/End are rune (character) offsets into the file's normalized
// content, not byte offsets.
type Chunk struct {
	FilePath string
	Ordinal  int
	Text     string
	Start    int
	End      int
	Page     *int
}

// DefaultMaxChunkSize and DefaultOverlap are the chunking defaults,
// overridable per collection.
const (
	DefaultMaxChunkSize = 2048
	DefaultOverlap      = 256
)

// ChunkText splits content into chunks of at most maxSize characters, each
// overlapping the previous by overlap characters, recording exact rune
// offsets so the overlap can later be deduplicated when reconstructing a
// file (e.g. "ABCDEFGHIJ" with size=6/overlap=2 yields "ABCDEF" (0..6)
// then "EFGHIJ" (4..10)).
func ChunkText(content string, maxSize, overlap int) []Chunk {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = DefaultOverlap
	}
	runes := []rune(content)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	ordinal := 0
	for start < n {
		end := start + maxSize
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			Ordinal: ordinal,
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
		})
		ordinal++
		if end == n {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}
