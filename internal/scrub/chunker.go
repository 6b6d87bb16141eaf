package scrub

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one bounded segment of the input document. Start is the byte
// offset of the segment within the original text, so detections found inside
// a chunk can be mapped back to document coordinates.
type Chunk struct {
	Index int
	Start int
	Text  string
}

// sentenceEnders mark preferred break points. A hard split happens only
// when no sentence boundary exists within the window.
const sentenceEnders = ".!?\n"

// ChunkText splits text into ordered, non-overlapping segments of at most
// maxSize bytes, preferring sentence boundaries. Concatenating the returned
// chunk texts reconstructs the input exactly.
func ChunkText(text string, maxSize int) []Chunk {
	if maxSize <= 0 {
		maxSize = 2000
	}
	if len(text) <= maxSize {
		if text == "" {
			return nil
		}
		return []Chunk{{Index: 0, Start: 0, Text: text}}
	}

	var chunks []Chunk
	pos := 0
	for pos < len(text) {
		remaining := len(text) - pos
		if remaining <= maxSize {
			chunks = append(chunks, Chunk{Index: len(chunks), Start: pos, Text: text[pos:]})
			break
		}

		window := text[pos : pos+maxSize]
		cut := lastSentenceBoundary(window)
		if cut <= 0 {
			// Fall back to the last whitespace, then to a hard split.
			cut = strings.LastIndexAny(window, " \t")
			if cut <= 0 {
				cut = maxSize - 1
				// A hard split may land inside a multi-byte rune; back
				// up so the next chunk starts on a rune boundary.
				for cut > 0 && !utf8.RuneStart(text[pos+cut+1]) {
					cut--
				}
			}
		}
		cut++ // include the boundary character in this chunk

		chunks = append(chunks, Chunk{Index: len(chunks), Start: pos, Text: text[pos : pos+cut]})
		pos += cut
	}
	return chunks
}

// lastSentenceBoundary returns the index of the last sentence-ending
// character in window that is followed by whitespace or ends the window,
// or -1 when none exists.
func lastSentenceBoundary(window string) int {
	for i := len(window) - 1; i >= 0; i-- {
		if !strings.ContainsRune(sentenceEnders, rune(window[i])) {
			continue
		}
		if window[i] == '\n' {
			return i
		}
		if i == len(window)-1 || window[i+1] == ' ' || window[i+1] == '\n' || window[i+1] == '\t' {
			return i
		}
	}
	return -1
}
