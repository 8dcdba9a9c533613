// Package pdftext is the built-in recognition engine: it reads the
// embedded text layer of PDF attachments and passes plain-text files
// through. Scanned images have no text layer and fail here, which the
// tracker reports as a failed task; a raster OCR engine can be swapped
// in behind the same port.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Recognize(ctx context.Context, content []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDFText(content, filename)
	case ".txt", ".text":
		if !utf8.Valid(content) {
			return "", fmt.Errorf("text attachment is not valid utf-8: %s", filename)
		}
		return strings.TrimSpace(string(content)), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", filename)
	}
}

func extractPDFText(content []byte, filename string) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", filename, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text layer %s: %w", filename, err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("drain pdf text %s: %w", filename, err)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("pdf has no text layer: %s", filename)
	}
	return text, nil
}
