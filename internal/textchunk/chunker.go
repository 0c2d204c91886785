// Package textchunk splits long document text into overlapping, bounded-size
// chunks with boundary-aware breakpoints.
package textchunk

import (
	"fmt"
	"strings"
)

// minChunkLen is the noise floor: chunks whose trimmed length does not
// exceed it are discarded.
const minChunkLen = 50

// Split walks text in windows of size characters, advancing size-overlap
// per step so consecutive chunks overlap. When a window ends before the end
// of the text, the break point moves back to the last newline or sentence
// terminator inside the window, provided it falls past the window midpoint.
//
// The precondition 0 <= overlap < size is enforced: without it the walk
// never advances.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	if text == "" {
		return nil, nil
	}

	var chunks []string
	runes := []rune(text)
	total := len(runes)
	start := 0

	for start < total {
		end := start + size
		if end >= total {
			// Final window: emit the tail and stop.
			chunk := strings.TrimSpace(string(runes[start:total]))
			if len([]rune(chunk)) > minChunkLen {
				chunks = append(chunks, chunk)
			}
			break
		}

		// Prefer breaking at a newline or sentence end so chunks don't cut
		// mid-word. Only accept a break past the window midpoint.
		if lastBreak := lastBoundary(runes[start:end]); lastBreak > size/2 {
			end = start + lastBreak + 1
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(chunk)) > minChunkLen {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		if next <= start {
			// A boundary break close behind the midpoint can land the next
			// start at or before the current one; force progress.
			next = start + (size - overlap)
		}
		start = next
	}

	return chunks, nil
}

// lastBoundary returns the rune index of the last newline or the period of
// the last ". " sequence in window, or -1 when neither occurs.
func lastBoundary(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '\n' {
			return i
		}
		if window[i] == '.' && i+1 < len(window) && window[i+1] == ' ' {
			return i
		}
	}
	return -1
}
