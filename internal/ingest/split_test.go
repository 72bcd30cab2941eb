package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func chunkTexts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

func TestSplitEmptyAndShort(t *testing.T) {
	require.Empty(t, Split("", 10, 2))
	require.Empty(t, Split("   \n\n  ", 10, 2))
	require.Empty(t, Split("text", 0, 0))

	chunks := Split("short text", 100, 10)
	require.Equal(t, []string{"short text"}, chunkTexts(chunks))
	require.Equal(t, 0, chunks[0].Index)
	require.Equal(t, 0, chunks[0].Offset)
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	chunks := Split("aaaa bbbb\n\ncccc dddd", 15, 0)
	require.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, chunkTexts(chunks))
	require.Equal(t, 11, chunks[1].Offset)
}

func TestSplitOverlapStartsOnWordBoundary(t *testing.T) {
	chunks := Split("one two three four five six", 10, 4)
	require.Equal(t, []string{"one two", "two three", "four five", "six"}, chunkTexts(chunks))
	for i, c := range chunks {
		require.Equal(t, i, c.Index)
	}
}

func TestSplitHardCutsLongTokens(t *testing.T) {
	chunks := Split(strings.Repeat("x", 25), 10, 3)
	require.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, chunkTexts(chunks))
}

func TestSplitInvalidOverlapIsIgnored(t *testing.T) {
	require.Equal(t, chunkTexts(Split("alpha beta gamma", 6, 0)), chunkTexts(Split("alpha beta gamma", 6, 6)))
}

func TestSplitChunksRespectSize(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet, consectetur adipiscing elit.\n", 40)
	for _, c := range Split(text, 100, 20) {
		require.LessOrEqual(t, len([]rune(c.Text)), 100)
		require.NotEmpty(t, c.Text)
	}
}
