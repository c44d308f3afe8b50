// Package doctext extracts plain text from request documents.
//
// The pipeline consumes raw text; doctext is the boundary that turns a file
// on disk into that text. Plain-text and markdown files pass through
// unchanged, PDFs go through text extraction.
package doctext

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrEmptyDocument is returned when extraction produces no text.
var ErrEmptyDocument = fmt.Errorf("document contains no extractable text")

// FromFile reads a document and returns its plain text. The extraction
// method is chosen by file extension; unknown extensions are treated as
// plain text.
func FromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FromPDF(data)
	default:
		return FromPlainText(data)
	}
}

// FromPlainText normalizes a text document: line endings become "\n" and
// surrounding whitespace is trimmed.
func FromPlainText(data []byte) (string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

// FromPDF extracts the plain text of a PDF document.
func FromPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	out, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}
