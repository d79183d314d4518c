package search

import (
	"sort"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

// GetFileContent reconstructs a file's original text from its stored
// chunks: fetch every vector tagged with file_path, order by
// chunk_index, and stitch consecutive chunks together, dropping the
// leading span of each chunk that overlaps the tail of the previous one
// using the chunker's recorded rune offsets.
func GetFileContent(coll *collection.Collection, path string) (string, error) {
	vectors, err := coll.VectorsByFilePath(path)
	if err != nil {
		return "", err
	}
	if len(vectors) == 0 {
		return "", verrors.NotFound("search.get_file_content", verrors.ErrFileNotFound)
	}

	sort.Slice(vectors, func(i, j int) bool {
		return chunkIndex(vectors[i]) < chunkIndex(vectors[j])
	})

	var builder []rune
	prevEnd := -1
	for _, v := range vectors {
		text, _ := v.Payload["text"].(string)
		start := intPayload(v.Payload, "start_offset", -1)
		end := intPayload(v.Payload, "end_offset", -1)
		runes := []rune(text)

		if prevEnd < 0 || start < 0 || end < 0 {
			builder = append(builder, runes...)
			prevEnd = end
			continue
		}

		overlap := prevEnd - start
		if overlap < 0 {
			overlap = 0
		}
		if overlap > len(runes) {
			overlap = len(runes)
		}
		builder = append(builder, runes[overlap:]...)
		prevEnd = end
	}
	return string(builder), nil
}

func chunkIndex(v *collection.Vector) int {
	return intPayload(v.Payload, "chunk_index", 0)
}

func intPayload(payload map[string]any, key string, fallback int) int {
	switch n := payload[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}
