package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/core/usecase"
	"github.com/kirillkom/docqa/internal/infrastructure/cache/memory"
	"github.com/kirillkom/docqa/internal/infrastructure/chunking"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor"
	"github.com/kirillkom/docqa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docqa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docqa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docqa/internal/infrastructure/rerank/lexical"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
	"github.com/kirillkom/docqa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	Cache     *memory.ResponseCache
	Extractor *extractor.Extractor
	Metrics   *metrics.HTTPServerMetrics

	IngestUC  ports.DocumentIngestor
	ProcessUC *usecase.ProcessDocumentUseCase
	QueryUC   ports.DocumentQueryService

	closeFn func()
}

// New wires every adapter of the service. service names the process in logs
// and metric labels.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ClientName:         service,
		ResilienceExecutor: resilience.NewExecutor("nats", resilience.DefaultPolicy()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	// Indexing and query traffic trip separate breakers.
	indexLLM := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithExecutor(resilience.NewExecutor("ollama.index", resilience.DefaultPolicy())),
	)
	queryLLM := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithJudgeModel(cfg.OllamaJudgeModel),
		ollama.WithExecutor(resilience.NewExecutor("ollama.query", resilience.QueryPolicy())),
	)
	indexStore := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
		qdrant.WithExecutor(resilience.NewExecutor("qdrant.index", resilience.DefaultPolicy())),
	)
	searchStore := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
		qdrant.WithExecutor(resilience.NewExecutor("qdrant.query", resilience.QueryPolicy())),
	)

	cache, err := memory.New(memory.Options{
		Enabled:  cfg.CacheEnabled,
		TTL:      time.Duration(cfg.CacheTTLSeconds) * time.Second,
		MaxItems: cfg.CacheMaxItems,
		Signature: memory.Signature{
			RetrievalTopK: cfg.RetrievalTopK,
			RerankEnabled: cfg.RerankEnabled,
			RerankTopN:    cfg.RerankTopN,
			IndexVersion:  cfg.IndexVersion,
		},
	})
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init response cache: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	queryMetrics := metrics.NewQueryMetrics(httpMetrics.Registry(), service)
	metrics.RegisterCacheStats(httpMetrics.Registry(), service, cache.Stats)

	textExtractor := extractor.NewExtractor(storage, cfg.MaxUploadBytes)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	var judge ports.RelevanceJudge = ollama.NewJudge(queryLLM)
	if cfg.RerankBackend == config.RerankBackendLexical {
		judge = lexical.NewJudge()
	}
	reranker := usecase.NewReranker(judge, cfg.RerankEnabled, usecase.DefaultJudgeContentChars, queryMetrics)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue, indexStore)
	processUC := usecase.NewProcessDocumentUseCase(repo, textExtractor, chunker, ollama.NewEmbedder(indexLLM), indexStore)
	queryUC := usecase.NewQueryUseCase(
		ollama.NewEmbedder(queryLLM),
		searchStore,
		searchStore,
		reranker,
		ollama.NewGenerator(queryLLM),
		repo,
		cache,
		queryMetrics,
		usecase.QueryOptions{
			RetrievalTopK:   cfg.RetrievalTopK,
			RerankTopN:      cfg.RerankTopN,
			OverfetchFactor: cfg.RAGOverfetchFactor,
			RRFK:            cfg.RAGFusionRRFK,
		},
	)

	return &App{
		Config:    cfg,
		Queue:     queue,
		Repo:      repo,
		Cache:     cache,
		Extractor: textExtractor,
		Metrics:   httpMetrics,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		QueryUC:   queryUC,

		closeFn: func() {
			cache.Close()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
