package analysis

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_ShortTranscriptIsSingleChunk(t *testing.T) {
	c := NewChunker()
	transcript := "We agreed to ship on Friday. Alice owns the rollout."

	chunks := c.Split(transcript)
	require.Len(t, chunks, 1)
	assert.Equal(t, transcript, chunks[0])
}

func TestChunker_ExactLimitIsSingleChunk(t *testing.T) {
	c := NewChunkerWithLimits(100, 100)
	transcript := strings.Repeat("a", 100)

	chunks := c.Split(transcript)
	require.Len(t, chunks, 1)
	assert.Equal(t, transcript, chunks[0])
}

func TestChunker_LongTranscriptSplitsOnSentences(t *testing.T) {
	c := NewChunkerWithLimits(8000, 8000)

	var b strings.Builder
	for i := 0; b.Len() < 20000; i++ {
		fmt.Fprintf(&b, "Sentence number %d covers one more point raised during the meeting. ", i)
	}
	transcript := b.String()

	chunks := c.Split(transcript)
	require.GreaterOrEqual(t, len(chunks), 3)

	for i, chunk := range chunks {
		assert.NotEmpty(t, chunk)
		assert.LessOrEqual(t, len(chunk), 8000, "chunk %d over limit", i)
	}

	// Sentence order survives the split: the sequence numbers embedded in
	// the sentences must be strictly increasing across all chunks.
	joined := strings.Join(chunks, " ")
	last := -1
	for _, word := range strings.Fields(joined) {
		var n int
		if _, err := fmt.Sscanf(word, "%d", &n); err == nil {
			assert.Greater(t, n, last)
			last = n
		}
	}

	// No content lost: every sentence is present.
	for i := 0; i < 10; i++ {
		assert.Contains(t, joined, fmt.Sprintf("Sentence number %d ", i))
	}
}

func TestChunker_DropsNoiseFragments(t *testing.T) {
	c := NewChunkerWithLimits(10, 40)

	chunks := c.Split("Ok. This sentence is long enough to keep around. No.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "This sentence is long enough to keep around.", chunks[0])
}

func TestChunker_OversizedSentenceBecomesOwnChunk(t *testing.T) {
	c := NewChunkerWithLimits(50, 50)
	long := strings.Repeat("word ", 30) + "end."
	transcript := "A first sentence that stands alone for this test. " + long

	chunks := c.Split(transcript)
	require.Len(t, chunks, 2)
	assert.Greater(t, len(chunks[1]), 50)
}

func TestSplitSentences_KeepsTerminators(t *testing.T) {
	sentences := splitSentences("First point. Second point! Third point? trailing words")
	require.Len(t, sentences, 4)
	assert.Equal(t, "First point.", sentences[0])
	assert.Equal(t, "Second point!", sentences[1])
	assert.Equal(t, "Third point?", sentences[2])
	assert.Equal(t, "trailing words", sentences[3])
}
