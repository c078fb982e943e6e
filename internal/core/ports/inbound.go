package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
	Delete(ctx context.Context, documentID string) error
}

// DocumentQueryService answers questions over indexed documents.
type DocumentQueryService interface {
	Answer(ctx context.Context, question string, filter domain.SearchFilter) (*domain.Answer, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// CacheInspector exposes response cache counters.
type CacheInspector interface {
	Stats() domain.CacheStats
}
