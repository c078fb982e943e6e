package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	index   ports.ChunkIndexer
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	index ports.ChunkIndexer,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		index:   index,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discardFile(ctx, doc)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		if markErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, "enqueue indexing: "+err.Error()); markErr != nil {
			slog.Warn("mark_document_failed_failed", "document_id", doc.ID, "error", markErr)
		}
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return doc, nil
}

// Delete removes the indexed fragments, then the document row, then the stored
// file. An index failure aborts before the row is touched so the call can be
// retried; a leftover file is only logged.
func (uc *IngestDocumentUseCase) Delete(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	if uc.index != nil {
		if err := uc.index.DeleteDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("delete document chunks: %w", err)
		}
	}

	if err := uc.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}

	uc.discardFile(ctx, doc)
	return nil
}

func (uc *IngestDocumentUseCase) discardFile(ctx context.Context, doc *domain.Document) {
	if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
		slog.Warn("delete_document_file_failed", "document_id", doc.ID, "path", doc.StoragePath, "error", err)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
