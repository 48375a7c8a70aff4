package ingest

import (
	"strings"
	"unicode"
)

// Chunking parameters. Overlap preserves context across chunk
// boundaries so a sentence split in two remains searchable.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk splits text into overlapping rune-aware pieces of roughly size
// runes. Breaks prefer word boundaries: a chunk ends at the last space
// in its second half when one exists. Leading and trailing whitespace
// is trimmed per chunk; empty chunks are dropped.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size/2 {
		overlap = min(DefaultChunkOverlap, size/4)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))

		// Prefer a word boundary in the second half of the chunk.
		if end < len(runes) {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
		// Overlap is capped at size/2 and the boundary search never
		// moves end below start+size/2, so start always advances.
		start = end - overlap
	}
	return chunks
}
