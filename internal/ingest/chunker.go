package ingest

import "strings"

// Chunker splits extracted text into overlapping spans sized for the
// retrieval store. Cuts prefer a sentence boundary found in the trailing
// 20% of the span so sentences are rarely split mid-way.
type Chunker struct {
	// Size is the target chunk length in bytes.
	Size int

	// Overlap is how many bytes consecutive chunks share.
	Overlap int
}

// DefaultChunker returns the production chunking parameters.
func DefaultChunker() Chunker {
	return Chunker{Size: 500, Overlap: 50}
}

// Split cuts text into chunks. Whitespace is collapsed first so chunk
// sizes track visible content rather than formatting runs.
func (c Chunker) Split(text string) []string {
	if c.Size <= 0 {
		c = DefaultChunker()
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		c.Overlap = c.Size / 10
	}

	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.Size
		if end >= len(text) {
			end = len(text)
		} else if cut := c.sentenceCut(text, start, end); cut > start {
			end = cut
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// sentenceCut looks for the last sentence boundary in the trailing 20% of
// the window [start, end) and returns the cut position just after it, or
// start when none is found.
func (c Chunker) sentenceCut(text string, start, end int) int {
	windowStart := end - c.Size/5
	if windowStart < start {
		windowStart = start
	}
	window := text[windowStart:end]

	best := -1
	for _, sep := range []string{". ", "? ", "! ", "\n"} {
		if idx := strings.LastIndex(window, sep); idx > best {
			best = idx
		}
	}
	if best < 0 {
		return start
	}
	return windowStart + best + 1
}
