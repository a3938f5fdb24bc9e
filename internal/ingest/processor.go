package ingest

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/blueberrycongee/inferd/pkg/types"
)

// PDFExtractor extracts plain text from a PDF body. The hook keeps the
// heavyweight PDF dependency optional: a processor without one rejects PDF
// uploads with a clear error instead of failing at startup.
type PDFExtractor func(content []byte) (string, error)

// Processor converts validated uploads into retrieval chunks.
type Processor struct {
	chunker    Chunker
	extractPDF PDFExtractor
}

// Option customizes a Processor.
type Option func(*Processor)

// WithPDFExtractor installs the PDF text extraction hook.
func WithPDFExtractor(fn PDFExtractor) Option {
	return func(p *Processor) {
		p.extractPDF = fn
	}
}

// WithChunker overrides the default chunking parameters.
func WithChunker(c Chunker) Option {
	return func(p *Processor) {
		p.chunker = c
	}
}

// NewProcessor builds a processor with the default chunker.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{chunker: DefaultChunker()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates the upload, extracts its text, and returns the chunk
// list ready for the retrieval store. The second return value is the
// validation report for the API response.
func (p *Processor) Process(content []byte, filename string) ([]types.DocumentChunk, *ValidationReport, error) {
	report, err := Validate(content, filename)
	if err != nil {
		return nil, nil, err
	}

	text, err := p.extract(content, report.Extension)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("no text extracted from %s", report.Filename)
	}

	pieces := p.chunker.Split(text)
	chunks := make([]types.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.DocumentChunk{
			Text:    piece,
			Source:  report.Filename,
			ChunkID: i,
		}
	}
	return chunks, report, nil
}

// extract routes on the file extension. Text formats are decoded leniently
// and stripped of control characters; PDFs go through the optional hook.
func (p *Processor) extract(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		if p.extractPDF == nil {
			return "", fmt.Errorf("PDF support is not enabled")
		}
		text, err := p.extractPDF(content)
		if err != nil {
			return "", fmt.Errorf("extract pdf: %w", err)
		}
		return text, nil
	case ".txt", ".md", ".csv":
		return sanitizeText(content), nil
	default:
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
}

// sanitizeText decodes bytes as UTF-8, replacing invalid sequences, and
// drops control characters other than whitespace.
func sanitizeText(content []byte) string {
	text := strings.ToValidUTF8(string(content), "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

// SupportedExtensions lists the upload allowlist, sorted for display.
func SupportedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
