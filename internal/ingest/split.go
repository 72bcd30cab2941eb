package ingest

import (
	"strings"
	"unicode"
)

// Chunk is a contiguous piece of a document.
type Chunk struct {
	Index int
	// Offset is the rune offset of the chunk start in the source text.
	Offset int
	Text   string
}

// separators are tried in order when choosing where to cut a chunk.
var separators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")}

// Split cuts text into chunks of at most size runes. Consecutive chunks share
// up to overlap runes, starting on a word boundary. Cuts prefer paragraph
// breaks, then line breaks, then spaces. Whitespace-only chunks are dropped.
// An overlap outside [0, size) is treated as zero.
func Split(text string, size, overlap int) []Chunk {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			end = cutPoint(runes, start, end, overlap)
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Offset: start, Text: piece})
		}
		if end >= len(runes) {
			break
		}
		start = overlapStart(runes, end-overlap, end)
	}
	return chunks
}

// cutPoint returns the latest position in (start+overlap, end] that sits
// next to a separator, or end if there is none. Keeping the cut past
// start+overlap guarantees the next chunk starts after this one.
func cutPoint(runes []rune, start, end, overlap int) int {
	lowest := start + overlap + 1
	for _, sep := range separators {
		for i := end; i >= lowest; i-- {
			if hasSuffix(runes[:i], sep) || hasPrefix(runes[i:], sep) {
				return i
			}
		}
	}
	return end
}

// overlapStart moves from to the first word start in [from, end). Without one it returns end.
func overlapStart(runes []rune, from, end int) int {
	for p := max(from, 1); p < end; p++ {
		if unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p]) {
			return p
		}
	}
	return end
}

func hasPrefix(runes, prefix []rune) bool {
	if len(prefix) > len(runes) {
		return false
	}
	for i := range prefix {
		if runes[i] != prefix[i] {
			return false
		}
	}
	return true
}

func hasSuffix(runes, suffix []rune) bool {
	if len(suffix) > len(runes) {
		return false
	}
	tail := runes[len(runes)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}
