package postprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanRemovesThinkBlocks(t *testing.T) {
	in := "<think>chain of thought\nspanning lines</think>The answer is 42."
	assert.Equal(t, "The answer is 42.", Clean(in))
}

func TestCleanRemovesThinkBlocksCaseInsensitive(t *testing.T) {
	in := "<THINK>hidden</THINK>Visible."
	assert.Equal(t, "Visible.", Clean(in))
}

func TestCleanStripsOrphanMarkers(t *testing.T) {
	in := "</think>Result here. <think>"
	out := Clean(in)
	assert.NotContains(t, out, "think")
	assert.Contains(t, out, "Result here.")
}

func TestCleanDropsConsecutiveDuplicateSentences(t *testing.T) {
	in := "Gravity pulls objects down. Gravity pulls objects down. Mass matters."
	out := Clean(in)
	assert.Equal(t, 1, strings.Count(out, "Gravity pulls objects down."))
	assert.Contains(t, out, "Mass matters.")
}

func TestCleanDuplicateKeyIsCaseInsensitive(t *testing.T) {
	in := "It depends. it depends. Next point."
	out := Clean(in)
	assert.Equal(t, 1, strings.Count(strings.ToLower(out), "it depends."))
}

func TestCleanKeepsNonAdjacentRepeats(t *testing.T) {
	in := "Yes. Maybe. Yes."
	out := Clean(in)
	assert.Equal(t, 2, strings.Count(out, "Yes."))
}

func TestCleanBreaksParagraphsAtCapitalStarts(t *testing.T) {
	in := "First sentence. Second sentence."
	assert.Equal(t, "First sentence.\n\nSecond sentence.", Clean(in))
}

func TestCleanBreaksBeforeListItems(t *testing.T) {
	out := Clean("Steps: 1. mix 2. bake")
	assert.Contains(t, out, "\n1. mix")
	assert.Contains(t, out, "\n2. bake")

	out = Clean("Options: - red - blue")
	assert.Contains(t, out, "\n- red")
	assert.Contains(t, out, "\n- blue")
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	in := "a    b\n\n\n\n\nc"
	assert.Equal(t, "a b\n\nc", Clean(in))
}

func TestCleanTrimsEnds(t *testing.T) {
	assert.Equal(t, "x", Clean("  \n x \n  "))
}

func TestCleanEmpty(t *testing.T) {
	assert.Equal(t, "", Clean(""))
	assert.Equal(t, "", Clean("<think>only thoughts</think>"))
}

// Clean must be a fixed point of itself so cached responses survive being
// routed through the filter again.
func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"<think>x</think>Answer. Answer. More detail follows here.",
		"Steps: 1. one 2. two 3. three",
		"Para one. Para two. Para two. - bullet - bullet2",
		"plain text without structure",
		"A! B? C. D.",
		"Mixed   spacing\n\n\n\nand breaks. New sentence.",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestTruncateShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))
	assert.Equal(t, "unlimited", Truncate("unlimited", 0))
}

func TestTruncateAtSentenceBoundary(t *testing.T) {
	// The last period lands within the final 20% of the cut, so the text
	// is clipped there instead of hard-cut.
	text := strings.Repeat("a", 90) + ". tail that exceeds the limit"
	out := Truncate(text, 100)
	assert.Equal(t, strings.Repeat("a", 90)+".", out)
}

func TestTruncateHardCutWithEllipsis(t *testing.T) {
	// No sentence end anywhere near the cut point.
	text := strings.Repeat("b", 200)
	out := Truncate(text, 50)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.LessOrEqual(t, len(out), 53)
}

func TestTruncateRespectsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("é", 100) // 2 bytes each
	out := Truncate(text, 51)
	assert.True(t, strings.HasSuffix(out, "..."))
	for _, r := range out {
		assert.NotEqual(t, '�', r)
	}
}
