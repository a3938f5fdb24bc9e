// Package ingest turns uploaded documents into retrieval chunks: upload
// validation (type allowlist, size cap, embedded-script rejection), text
// extraction per format, and sentence-aware chunking with overlap.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxFileSize caps a single upload at 50 MB.
const MaxFileSize = 50 << 20

// allowedExtensions is the upload allowlist with the MIME type recorded
// for each extension.
var allowedExtensions = map[string]string{
	".pdf": "application/pdf",
	".txt": "text/plain",
	".md":  "text/markdown",
	".csv": "text/csv",
}

// dangerousPatterns are byte sequences that have no business inside a
// document upload. A match rejects the file outright.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
}

// ValidationReport summarizes a validated upload.
type ValidationReport struct {
	Filename    string `json:"filename"`
	Extension   string `json:"extension"`
	MIMEType    string `json:"mime_type"`
	Size        int    `json:"size"`
	ContentHash string `json:"content_hash"`
}

// Validate screens an upload before extraction. It enforces the extension
// allowlist and the size cap, scans for embedded script patterns, and
// records the content digest.
func Validate(content []byte, filename string) (*ValidationReport, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mimeType, ok := allowedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("file type %q is not allowed", ext)
	}

	if len(content) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	if len(content) > MaxFileSize {
		return nil, fmt.Errorf("file is %d bytes, limit is %d", len(content), MaxFileSize)
	}

	// PDF bodies are binary; the script scan applies to text formats.
	if ext != ".pdf" {
		for _, p := range dangerousPatterns {
			if p.Match(content) {
				return nil, fmt.Errorf("embedded script content detected")
			}
		}
	}

	sum := sha256.Sum256(content)
	return &ValidationReport{
		Filename:    filepath.Base(filename),
		Extension:   ext,
		MIMEType:    mimeType,
		Size:        len(content),
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}
