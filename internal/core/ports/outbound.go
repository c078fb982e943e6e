package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveChunkCount(ctx context.Context, id string, count int) error
	Delete(ctx context.Context, id string) error
}

// DocumentNameResolver maps document ids to display names in one batch.
// Ids without a row are absent from the result.
type DocumentNameResolver interface {
	ResolveNames(ctx context.Context, ids []string) (map[string]string, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into overlapping fragments.
type Chunker interface {
	Split(text string) []string
}

// ChunkIndexer writes and removes document fragments in the search backend.
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// SemanticSearcher returns candidates ordered by descending vector similarity.
type SemanticSearcher interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievalCandidate, error)
}

// KeywordSearcher returns candidates ordered by descending lexical relevance.
type KeywordSearcher interface {
	SearchLexical(ctx context.Context, queryText string, limit int, filter domain.SearchFilter) ([]domain.RetrievalCandidate, error)
}

// AnswerGenerator synthesizes an answer strictly from the supplied fragments.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, fragments []string) (string, error)
}

// RelevanceJudge orders candidate indices by relevance and may omit irrelevant ones.
type RelevanceJudge interface {
	Judge(ctx context.Context, question string, candidates []domain.JudgeCandidate) ([]int, error)
}

// ResponseCache stores answers keyed by question, filter and pipeline configuration.
type ResponseCache interface {
	Get(question string, filter domain.SearchFilter) (*domain.Answer, bool)
	Set(question string, filter domain.SearchFilter, answer *domain.Answer)
}

// QueryObserver receives non-authoritative pipeline diagnostics.
type QueryObserver interface {
	ObserveStage(stage string, duration time.Duration, candidates int)
	RecordChannelFailure(channel string)
	RecordRerankFallback()
	RecordNoContext()
}

// IndexingObserver receives background indexing outcomes.
type IndexingObserver interface {
	StartDocument()
	FinishDocument(duration time.Duration, err error)
	ObserveChunks(count int)
}
