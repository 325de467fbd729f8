package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragbase/internal/chunker"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

func TestChunkerConfigValidation(t *testing.T) {
	_, err := chunker.New(0, 0)
	require.ErrorIs(t, err, appErr.ErrInvalidChunkConfig)

	_, err = chunker.New(100, 100)
	require.ErrorIs(t, err, appErr.ErrInvalidChunkConfig)

	_, err = chunker.New(100, 150)
	require.ErrorIs(t, err, appErr.ErrInvalidChunkConfig)

	_, err = chunker.New(100, -1)
	require.ErrorIs(t, err, appErr.ErrInvalidChunkConfig)

	_, err = chunker.New(100, 20)
	require.NoError(t, err)
}

func TestChunkerDeterministic(t *testing.T) {
	ck, err := chunker.New(80, 16)
	require.NoError(t, err)

	text := "First sentence of the document. Second sentence, a bit longer than the first one. Third sentence closes the paragraph.\n\nSecond paragraph starts here. It also has more than one sentence. And ends now."
	first := ck.Split(text)
	require.NotEmpty(t, first)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ck.Split(text))
	}
}

func TestChunkerThreeParagraphScenario(t *testing.T) {
	ck, err := chunker.New(100, 20)
	require.NoError(t, err)

	para := func(topic string) string {
		return "The " + topic + " section explains the main idea at length. " +
			"More detail about the " + topic + " follows in a second sentence."
	}
	text := para("first") + "\n\n" + para("second") + "\n\n" + para("third")

	chunks := ck.Split(text)
	require.GreaterOrEqual(t, len(chunks), 3)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 100)
		require.NotEmpty(t, chunk)
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-20:])
		require.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d must start with the 20-rune tail of chunk %d", i, i-1)
	}
}

func TestChunkerHardSplitOversizedSentence(t *testing.T) {
	ck, err := chunker.New(50, 10)
	require.NoError(t, err)

	chunks := ck.Split(strings.Repeat("x", 200))
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 50)
	}
	var joined strings.Builder
	for _, chunk := range chunks {
		joined.WriteString(chunk)
	}
	require.Contains(t, joined.String(), strings.Repeat("x", 39))
}

func TestChunkerOverlapLeavesRoomForContent(t *testing.T) {
	// overlap one below the chunk size is a valid config and must still
	// make forward progress instead of spinning on a zero content budget.
	ck, err := chunker.New(10, 9)
	require.NoError(t, err)

	chunks := ck.Split("hello world, a perfectly ordinary sentence.")
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 10)
		require.NotEmpty(t, chunk)
	}

	ck, err = chunker.New(2, 1)
	require.NoError(t, err)
	chunks = ck.Split("ab cd ef")
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 2)
	}
}

func TestChunkerNoOverlap(t *testing.T) {
	ck, err := chunker.New(40, 0)
	require.NoError(t, err)

	chunks := ck.Split("One short sentence. Another short sentence. A third short sentence here.")
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 40)
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	ck, err := chunker.New(100, 20)
	require.NoError(t, err)

	require.Empty(t, ck.Split(""))
	require.Empty(t, ck.Split("   \n\n  \t"))
	require.NotEmpty(t, ck.Split("x"))
}
