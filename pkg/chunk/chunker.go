// Package chunk splits oversize text at semantic boundaries so each piece
// fits a backend's context budget. Adjacent chunks overlap by a configured
// number of characters to preserve context across the cut.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one piece of a split source document.
type Chunk struct {
	// Index is dense and 0-based across the split.
	Index int `json:"index"`

	// Text is the trimmed chunk content; never empty.
	Text string `json:"text"`

	// Start and End are the [start, end) byte offsets into the source
	// before trimming.
	Start int `json:"start"`
	End   int `json:"end"`
}

// Split cuts text into chunks of at most size characters (plus overlap),
// preferring to break after the last '.' or '\n' in the back half of the
// window. Empty input yields no chunks; whitespace-only windows are skipped.
func Split(text string, size, overlap int) []Chunk {
	if size <= 0 || len(text) == 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []Chunk
	start := 0

	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}

		// Prefer a sentence or line boundary, but only past the midpoint so
		// a stray early period cannot produce degenerate slivers.
		if end < len(text) {
			window := text[start:end]
			breakpoint := lastBoundary(window)
			if breakpoint > size/2 {
				end = start + breakpoint + 1
			} else {
				// Hard cut: back up to the previous rune start so a window
				// ending mid-rune cannot emit invalid UTF-8.
				cut := end
				for cut > start && !utf8.RuneStart(text[cut]) {
					cut--
				}
				if cut > start {
					end = cut
				}
			}
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  piece,
				Start: start,
				End:   end,
			})
		}

		next := end - overlap
		// Loop safety: overlap must never move the cursor backwards.
		if next <= start {
			next = end
		}
		// Overlap counts bytes, so realign the cursor to the next rune start.
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
	return chunks
}

// lastBoundary returns the offset of the last '.' or '\n' in s, or -1.
func lastBoundary(s string) int {
	dot := strings.LastIndexByte(s, '.')
	newline := strings.LastIndexByte(s, '\n')
	if newline > dot {
		return newline
	}
	return dot
}
