package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllowsKnownTypes(t *testing.T) {
	for _, name := range []string{"notes.txt", "README.md", "data.csv", "paper.PDF"} {
		report, err := Validate([]byte("plain content"), name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, report.ContentHash)
		assert.Equal(t, 13, report.Size)
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	_, err := Validate([]byte("#!/bin/sh"), "script.sh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestValidateRejectsEmptyAndOversized(t *testing.T) {
	_, err := Validate(nil, "empty.txt")
	assert.Error(t, err)

	big := make([]byte, MaxFileSize+1)
	_, err = Validate(big, "big.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestValidateRejectsEmbeddedScripts(t *testing.T) {
	payloads := []string{
		`hello <script>alert(1)</script>`,
		`link javascript:doEvil()`,
		`<iframe src="x">`,
		`eval (code)`,
	}
	for _, p := range payloads {
		_, err := Validate([]byte(p), "doc.txt")
		require.Error(t, err, p)
		assert.Contains(t, err.Error(), "script")
	}
}

func TestValidateHashIsContentAddressed(t *testing.T) {
	a, err := Validate([]byte("same"), "a.txt")
	require.NoError(t, err)
	b, err := Validate([]byte("same"), "b.md")
	require.NoError(t, err)
	assert.Equal(t, a.ContentHash, b.ContentHash)
}

func TestProcessTextFile(t *testing.T) {
	p := NewProcessor()

	text := strings.Repeat("Sentences build paragraphs. ", 60) // ~1.7 KB
	chunks, report, err := p.Process([]byte(text), "notes.txt")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "notes.txt", report.Filename)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkID)
		assert.Equal(t, "notes.txt", c.Source)
		assert.NotEmpty(t, c.Text)
	}
}

func TestProcessStripsControlCharacters(t *testing.T) {
	p := NewProcessor()

	chunks, _, err := p.Process([]byte("clean\x00text\x07 with bells"), "noise.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "cleantext with bells", chunks[0].Text)
}

func TestProcessPDFWithoutExtractor(t *testing.T) {
	p := NewProcessor()

	_, _, err := p.Process([]byte("%PDF-1.4 fake"), "doc.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PDF support")
}

func TestProcessPDFWithExtractor(t *testing.T) {
	p := NewProcessor(WithPDFExtractor(func(_ []byte) (string, error) {
		return "extracted pdf text body", nil
	}))

	chunks, _, err := p.Process([]byte("%PDF-1.4 fake"), "doc.pdf")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "extracted pdf text body", chunks[0].Text)
}

func TestProcessPDFExtractorError(t *testing.T) {
	p := NewProcessor(WithPDFExtractor(func(_ []byte) (string, error) {
		return "", errors.New("encrypted")
	}))

	_, _, err := p.Process([]byte("%PDF"), "doc.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted")
}

func TestChunkerShortTextSingleChunk(t *testing.T) {
	chunks := DefaultChunker().Split("just one small chunk")
	require.Len(t, chunks, 1)
	assert.Equal(t, "just one small chunk", chunks[0])
}

func TestChunkerRespectsSentenceBoundaries(t *testing.T) {
	c := Chunker{Size: 100, Overlap: 10}
	// Sentences shorter than the 20% boundary window, so every cut can
	// land on one.
	text := strings.Repeat("Go is neat. ", 50)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(chunk, "."), "chunk %q should end at a sentence", chunk)
	}
}

func TestChunkerOverlap(t *testing.T) {
	c := Chunker{Size: 100, Overlap: 20}
	text := strings.Repeat("abcdefghij ", 40)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	// Consecutive chunks share trailing/leading content.
	tail := chunks[0][len(chunks[0])-10:]
	assert.Contains(t, chunks[1], tail)
}

func TestChunkerAlwaysAdvances(t *testing.T) {
	// Degenerate overlap configuration must not loop forever.
	c := Chunker{Size: 10, Overlap: 9}
	chunks := c.Split(strings.Repeat("x", 100))
	assert.NotEmpty(t, chunks)
}

func TestChunkerCollapsesWhitespace(t *testing.T) {
	chunks := DefaultChunker().Split("a\n\n\nb    c\t\td")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a b c d", chunks[0])
}

func TestSupportedExtensions(t *testing.T) {
	assert.Equal(t, []string{".csv", ".md", ".pdf", ".txt"}, SupportedExtensions())
}
