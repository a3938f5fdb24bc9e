// Package postprocess cleans raw model output before it reaches a caller:
// reasoning markers are stripped, repeated sentences dropped, paragraphs
// reflowed, and whitespace normalized. Every transform is a pure function
// and Clean is a fixed point of itself, so responses replayed from the
// cache pass through unchanged.
package postprocess

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	thinkBlockRE  = regexp.MustCompile(`(?is)<think>.*?</think>`)
	orphanMarkRE  = regexp.MustCompile(`(?i)</?think>`)
	spaceRunRE    = regexp.MustCompile(`[ \t]{2,}`)
	blankRunRE    = regexp.MustCompile(`\n{3,}`)
	spacedBreakRE = regexp.MustCompile(`[ \t]*\n[ \t]*`)

	// sentenceBreakRE finds a sentence end followed by spaces and a capital
	// start. The separator is widened to a paragraph break; already broken
	// text no longer matches because the separator contains a newline.
	sentenceBreakRE = regexp.MustCompile(`([.!?]) +([A-Z])`)

	// listItemRE finds an enumerated or bullet item glued to the preceding
	// text by spaces only. Items already at a line start are left alone.
	listItemRE = regexp.MustCompile(`([^\n])[ \t]+((?:\d+\.|[-*\x{2022}]) )`)
)

// Clean normalizes a raw model response. The steps run in a fixed order:
// reasoning markers, consecutive duplicate sentences, paragraph reflow,
// whitespace collapse, trim. Clean(Clean(x)) == Clean(x) for all x.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = thinkBlockRE.ReplaceAllString(text, "")
	text = orphanMarkRE.ReplaceAllString(text, "")

	text = dropConsecutiveDuplicates(text)

	text = sentenceBreakRE.ReplaceAllString(text, "$1\n\n$2")
	text = listItemRE.ReplaceAllString(text, "$1\n$2")

	text = spaceRunRE.ReplaceAllString(text, " ")
	text = spacedBreakRE.ReplaceAllString(text, "\n")
	text = blankRunRE.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// Truncate cuts text to at most limit bytes, preferring the last sentence
// boundary when one lands in the final 20% of the cut. Below that the text
// is hard-cut at a rune boundary with an ellipsis suffix. A non-positive
// limit returns the text unchanged.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	truncated := text[:cut]

	if end := lastSentenceEnd(truncated); end >= 0 && end+1 >= limit*4/5 {
		return truncated[:end+1]
	}
	return strings.TrimRight(truncated, " \n\t") + "..."
}

// lastSentenceEnd returns the byte index of the last sentence terminator,
// or -1 when there is none.
func lastSentenceEnd(text string) int {
	return strings.LastIndexAny(text, ".!?")
}

// sentence is one segment of text plus the separator that followed it in
// the source, so reassembly preserves existing formatting.
type sentence struct {
	text string
	sep  string
}

// dropConsecutiveDuplicates removes a sentence when it repeats the one
// immediately before it under a case-insensitive, whitespace-trimmed key.
func dropConsecutiveDuplicates(text string) string {
	parts := splitSentences(text)
	if len(parts) < 2 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	prevKey := ""
	for _, s := range parts {
		key := sentenceKey(s.text)
		if key != "" && key == prevKey {
			continue
		}
		b.WriteString(s.text)
		b.WriteString(s.sep)
		if key != "" {
			prevKey = key
		}
	}
	return b.String()
}

// splitSentences cuts text at every terminator-plus-whitespace boundary.
// The terminator stays with its sentence; the whitespace becomes the
// separator.
func splitSentences(text string) []sentence {
	var out []sentence
	start := 0
	i := 0
	for i < len(text) {
		c := text[i]
		if c == '.' || c == '!' || c == '?' {
			j := i + 1
			for j < len(text) && (text[j] == ' ' || text[j] == '\n' || text[j] == '\t') {
				j++
			}
			if j > i+1 {
				out = append(out, sentence{text: text[start : i+1], sep: text[i+1 : j]})
				start = j
				i = j
				continue
			}
		}
		i++
	}
	if start < len(text) {
		out = append(out, sentence{text: text[start:]})
	}
	return out
}

// sentenceKey lowercases and trims a sentence, dropping the trailing
// terminator so "Done." and "done" compare equal.
func sentenceKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	s = strings.TrimSpace(s)
	return strings.Map(unicode.ToLower, s)
}
