package ingestion_engine

import (
	"strings"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
)

// Chunk is the internal representation passed through the pipeline.
//
// Index:     stable, zero-based position of the chunk inside the document.
// Content:   window text, words rejoined with single spaces.
// WordCount: number of words in the window.
// PageStart/PageEnd: the page the window came from. Windows never cross
// a page boundary, so both always carry the same page number.
type Chunk struct {
	Index     int
	Content   string
	WordCount int
	PageStart int
	PageEnd   int
}

// ChunkPages slides a fixed-size word window with overlap across each
// page's text. Pages are chunked independently and in order; chunk
// indices are contiguous from zero across the whole document. Given the
// same pages and configuration the output is identical, which keeps
// reprocessing idempotent.
func ChunkPages(pages []core.Page, targetWords, overlapWords int) []Chunk {
	var out []Chunk
	idx := 0
	for _, p := range pages {
		for _, window := range windowWords(strings.Fields(p.Text), targetWords, overlapWords) {
			out = append(out, Chunk{
				Index:     idx,
				Content:   strings.Join(window, " "),
				WordCount: len(window),
				PageStart: p.Number,
				PageEnd:   p.Number,
			})
			idx++
		}
	}
	return out
}

// windowWords emits word windows [start, start+target) clipped to the
// available length, advancing start by target-overlap. Iteration stops
// once start+target reaches the word count, so the final window is
// emitted exactly once and may be shorter than target. Empty input
// yields no windows.
func windowWords(words []string, target, overlap int) [][]string {
	if len(words) == 0 || target <= 0 || overlap < 0 || overlap >= target {
		return nil
	}

	var out [][]string
	step := target - overlap
	for start := 0; ; start += step {
		end := start + target
		if end > len(words) {
			end = len(words)
		}
		out = append(out, words[start:end])
		if start+target >= len(words) {
			break
		}
	}
	return out
}
