// SPDX-License-Identifier: MIT

// Package extract turns uploaded documents into plain text for the script
// phase.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
)

// MaxChars caps extracted text to keep LLM prompts inside token limits.
const MaxChars = 8000

// Text extracts plain text from the document at path. docType is the
// validated upload extension: txt, md or pdf.
func Text(path, docType string) (string, error) {
	switch docType {
	case "txt":
		return plainText(path)
	case "md":
		// Markdown goes to the LLM raw; it handles the markup fine.
		return plainText(path)
	case "pdf":
		return pdfText(path)
	default:
		return "", fmt.Errorf("unsupported document type %q", docType)
	}
}

// plainText reads a text file as UTF-8 with a Latin-1 fallback for legacy
// uploads.
func plainText(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is produced by the upload handler
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err == nil {
			data = decoded
		}
	}

	return truncate(string(data)), nil
}

// pdfText concatenates the text of every page.
func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text %s: %w", path, err)
	}
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", path, err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", fmt.Errorf("pdf %s contains no extractable text", path)
	}
	return truncate(text), nil
}

func truncate(s string) string {
	if len(s) <= MaxChars {
		return s
	}
	// Cut at a rune boundary.
	cut := MaxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
