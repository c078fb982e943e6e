// Package extractor turns stored documents into plain text by file type.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// Format decodes one file type.
type Format func(raw []byte) (string, error)

type Extractor struct {
	storage  ports.ObjectStorage
	maxBytes int64
	formats  map[string]Format
}

func NewExtractor(storage ports.ObjectStorage, maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Extractor{
		storage:  storage,
		maxBytes: maxBytes,
		formats: map[string]Format{
			".txt":      extractPlainText,
			".md":       extractPlainText,
			".markdown": extractPlainText,
			".pdf":      extractPDF,
			".xlsx":     extractXLSX,
		},
	}
}

// Supported reports whether the filename has a known extension.
func (e *Extractor) Supported(filename string) bool {
	_, ok := e.formats[extension(filename)]
	return ok
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	format, ok := e.formats[extension(doc.Filename)]
	if !ok {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "extract", fmt.Errorf("file %s", doc.Filename))
	}

	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("file %s exceeds %d bytes", doc.Filename, e.maxBytes))
	}

	text, err := format(raw)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", doc.Filename, err)
	}
	return strings.TrimSpace(text), nil
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
}

func newReaderAt(raw []byte) (*bytes.Reader, int64) {
	return bytes.NewReader(raw), int64(len(raw))
}
