package analysis

import "strings"

const (
	// MaxTranscriptLength is the longest transcript analyzed in one shot;
	// anything longer is split into sentence-aligned chunks.
	MaxTranscriptLength = 8000

	// ChunkSizeLimit bounds the size of one chunk.
	ChunkSizeLimit = 8000

	// minChunkLength filters out fragments too short to carry meaning.
	minChunkLength = 20
)

// Chunker splits long transcripts into bounded, sentence-aligned segments.
type Chunker struct {
	maxLength int
	chunkSize int
}

func NewChunker() *Chunker {
	return &Chunker{maxLength: MaxTranscriptLength, chunkSize: ChunkSizeLimit}
}

// NewChunkerWithLimits is used where the defaults don't fit, mostly tests.
func NewChunkerWithLimits(maxLength, chunkSize int) *Chunker {
	return &Chunker{maxLength: maxLength, chunkSize: chunkSize}
}

// Split returns the transcript unchanged as a single chunk when it fits
// within the transcript limit. Longer text is cut at sentence terminators
// and the sentences greedily packed into chunks of at most the chunk size;
// a sentence longer than the limit becomes its own oversized chunk.
// Fragments shorter than the noise threshold are dropped.
func (c *Chunker) Split(transcript string) []string {
	if len(transcript) <= c.maxLength {
		return []string{transcript}
	}

	sentences := splitSentences(transcript)

	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+1+len(sentence) > c.chunkSize {
			chunks = appendChunk(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	chunks = appendChunk(chunks, current.String())
	return chunks
}

func appendChunk(chunks []string, chunk string) []string {
	chunk = strings.TrimSpace(chunk)
	if len(chunk) < minChunkLength {
		return chunks
	}
	return append(chunks, chunk)
}

// splitSentences cuts text after ., ! or ?, keeping the terminator with the
// preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
