package textchunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRejectsBadOverlap(t *testing.T) {
	_, err := Split("some text", 100, 100)
	require.Error(t, err)

	_, err = Split("some text", 100, 150)
	require.Error(t, err)

	_, err = Split("some text", 100, -1)
	require.Error(t, err)

	_, err = Split("some text", 0, 0)
	require.Error(t, err)
}

func TestSplitEmptyText(t *testing.T) {
	chunks, err := Split("", 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitShortTextDiscarded(t *testing.T) {
	// Trimmed length <= 50 is noise and never appears in output.
	chunks, err := Split("short", 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Split(strings.Repeat("a", 50), 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Split(strings.Repeat("a", 51), 100, 10)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestSplitChunkLengthBounded(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	chunks, err := Split(text, 300, 50)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 300)
		assert.Greater(t, len(strings.TrimSpace(c)), 50)
	}
}

func TestSplitOverlapCoversText(t *testing.T) {
	// Without boundary characters every window is exactly size runes, so
	// consecutive chunks share exactly overlap characters and the union
	// covers the input.
	text := strings.Repeat("x", 1000)
	chunks, err := Split(text, 200, 40)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		suffix := prev[len(prev)-40:]
		assert.True(t, strings.HasPrefix(chunks[i], suffix),
			"chunk %d should start with the previous chunk's 40-char tail", i)
	}

	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		rebuilt.WriteString(chunks[i][40:])
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSplitBreaksAtSentenceBoundary(t *testing.T) {
	first := strings.Repeat("a", 150) + ". "
	second := strings.Repeat("b", 300)
	chunks, err := Split(first+second, 200, 20)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// The boundary falls past the window midpoint (150 > 100), so the
	// first chunk ends at the sentence terminator instead of rune 200.
	assert.Equal(t, strings.Repeat("a", 150)+".", chunks[0])
}

func TestSplitIgnoresBoundaryBeforeMidpoint(t *testing.T) {
	text := strings.Repeat("a", 30) + ". " + strings.Repeat("b", 400)
	chunks, err := Split(text, 200, 20)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Boundary at rune 30 is before the midpoint (100); the window stays
	// full-size.
	assert.Len(t, chunks[0], 200)
}

func TestSplitTerminates(t *testing.T) {
	// Large text with pathological boundary placement must still finish.
	text := strings.Repeat(strings.Repeat("a", 110)+". ", 100)
	chunks, err := Split(text, 200, 199)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100)
	a, err := Split(text, 1000, 100)
	require.NoError(t, err)
	b, err := Split(text, 1000, 100)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
