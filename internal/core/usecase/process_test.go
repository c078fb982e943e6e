package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type processRepoFake struct {
	doc           *domain.Document
	getErr        error
	countErr      error
	statusErr     error
	failStatusErr error
	statusCalls   []statusCall
	chunkCount    int
}

func (f *processRepoFake) Create(context.Context, *domain.Document) error { return nil }

func (f *processRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *processRepoFake) List(context.Context) ([]domain.Document, error) { return nil, nil }

func (f *processRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	if f.statusErr != nil {
		return f.statusErr
	}
	return nil
}

func (f *processRepoFake) SaveChunkCount(_ context.Context, _ string, count int) error {
	if f.countErr != nil {
		return f.countErr
	}
	f.chunkCount = count
	return nil
}

func (f *processRepoFake) Delete(context.Context, string) error { return nil }

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type chunkerFake struct {
	chunks []string
}

func (f *chunkerFake) Split(string) []string { return f.chunks }

type embedderFake struct {
	vectors [][]float32
	err     error
	batches []int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, len(texts))
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) { return nil, nil }

func TestProcessByIDSuccess(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	index := &indexFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&chunkerFake{chunks: []string{"a", "b"}},
		&embedderFake{vectors: [][]float32{{1}, {2}}},
		index,
	)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected 2 status calls, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[0].status != domain.StatusIndexing || repo.statusCalls[1].status != domain.StatusIndexed {
		t.Fatalf("unexpected status sequence: %+v", repo.statusCalls)
	}
	if repo.chunkCount != 2 {
		t.Fatalf("expected chunk count 2, got %d", repo.chunkCount)
	}
	if index.indexedDoc != "doc-1" || len(index.indexedChunks) != 2 {
		t.Fatalf("expected chunks indexed for doc-1, got %s/%d", index.indexedDoc, len(index.indexedChunks))
	}
}

func TestProcessByIDEmbedsInBatches(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	embedder := &embedderFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&chunkerFake{chunks: []string{"a", "b", "c", "d", "e"}},
		embedder,
		&indexFake{},
	)
	uc.batchSize = 2

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(embedder.batches) != 3 || embedder.batches[2] != 1 {
		t.Fatalf("expected batches [2 2 1], got %v", embedder.batches)
	}
}

func TestProcessByIDMarksFailedOnExtractError(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{err: errors.New("extract fail")},
		&chunkerFake{chunks: []string{"a"}},
		&embedderFake{vectors: [][]float32{{1}}},
		&indexFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected indexing + failed status updates, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[1].status != domain.StatusFailed || repo.statusCalls[1].errMsg == "" {
		t.Fatalf("expected failed status with message, got %+v", repo.statusCalls[1])
	}
}

func TestProcessByIDMarksFailedOnVectorMismatch(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&chunkerFake{chunks: []string{"a", "b"}},
		&embedderFake{vectors: [][]float32{{1}}},
		&indexFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.statusCalls) != 2 || repo.statusCalls[1].status != domain.StatusFailed {
		t.Fatalf("expected final failed status, got %+v", repo.statusCalls)
	}
}

func TestProcessByIDMarksFailedOnIndexError(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1"}}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&chunkerFake{chunks: []string{"a"}},
		&embedderFake{},
		&indexFake{err: errors.New("qdrant down")},
	)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected error")
	}
	if repo.statusCalls[len(repo.statusCalls)-1].status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %+v", repo.statusCalls)
	}
}

type indexingObserverFake struct {
	started  int
	finished []error
	chunks   []int
}

func (f *indexingObserverFake) StartDocument() { f.started++ }

func (f *indexingObserverFake) FinishDocument(_ time.Duration, err error) {
	f.finished = append(f.finished, err)
}

func (f *indexingObserverFake) ObserveChunks(count int) { f.chunks = append(f.chunks, count) }

func TestProcessByIDReportsToObserver(t *testing.T) {
	observer := &indexingObserverFake{}
	uc := NewProcessDocumentUseCase(
		&processRepoFake{doc: &domain.Document{ID: "doc-1"}},
		&extractorFake{text: "text"},
		&chunkerFake{chunks: []string{"a", "b", "c"}},
		&embedderFake{},
		&indexFake{},
	).WithObserver(observer)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	failing := NewProcessDocumentUseCase(
		&processRepoFake{doc: &domain.Document{ID: "doc-2"}},
		&extractorFake{err: errors.New("extract fail")},
		&chunkerFake{},
		&embedderFake{},
		&indexFake{},
	).WithObserver(observer)
	_ = failing.ProcessByID(context.Background(), "doc-2")

	if observer.started != 2 || len(observer.finished) != 2 {
		t.Fatalf("expected two started/finished documents, got %+v", observer)
	}
	if observer.finished[0] != nil || observer.finished[1] == nil {
		t.Fatalf("expected success then failure, got %v", observer.finished)
	}
	if len(observer.chunks) != 1 || observer.chunks[0] != 3 {
		t.Fatalf("expected chunk count only for the indexed document, got %v", observer.chunks)
	}
}
