package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenizer lazily builds a single shared cl100k_base encoding, trimmed
// to the single encoding this core needs for chunk sizing and
// summary-length invariant checks (TextExtractor chunking, Summarizer's
// brief<=standard<=detailed token-count invariant).
var (
	tokenizerOnce sync.Once
	sharedEncoder *tiktoken.Tiktoken
	tokenizerErr  error
)

func encoder() (*tiktoken.Tiktoken, error) {
	tokenizerOnce.Do(func() {
		sharedEncoder, tokenizerErr = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	})
	return sharedEncoder, tokenizerErr
}

// CountTokens estimates the number of tokens text encodes to. On
// tokenizer initialization failure it falls back to a conservative
// chars/4 estimate rather than erroring, since token counts here are
// advisory (chunk sizing, invariant checks) and never gate correctness.
func CountTokens(text string) int {
	enc, err := encoder()
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// ChunkText splits text into overlapping windows of at most maxTokens
// tokens each, with overlapTokens shared between consecutive windows, so
// TextExtractor's reassembly has continuity across chunk boundaries.
func ChunkText(text string, maxTokens, overlapTokens int) []string {
	enc, err := encoder()
	if err != nil || maxTokens <= 0 {
		return []string{text}
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return []string{text}
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 4
	}

	var chunks []string
	stride := maxTokens - overlapTokens
	for start := 0; start < len(tokens); start += stride {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
