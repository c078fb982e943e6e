package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	StageSemanticSearch = "semantic_search"
	StageKeywordSearch  = "keyword_search"
	StageRetrieve       = "retrieve"
	StageFuse           = "fuse"
	StageRerank         = "rerank"
	StageSynthesize     = "synthesize"
	StageTotal          = "total"

	ChannelSemantic = "semantic"
	ChannelKeyword  = "keyword"
)

type QueryOptions struct {
	RetrievalTopK   int
	RerankTopN      int
	OverfetchFactor int
	RRFK            int
}

func (o QueryOptions) normalize() QueryOptions {
	out := o
	if out.RetrievalTopK <= 0 {
		out.RetrievalTopK = 10
	}
	if out.RerankTopN <= 0 {
		out.RerankTopN = 5
	}
	if out.OverfetchFactor <= 0 {
		out.OverfetchFactor = 2
	}
	return out
}

type QueryUseCase struct {
	embedder  ports.Embedder
	semantic  ports.SemanticSearcher
	keyword   ports.KeywordSearcher
	reranker  *Reranker
	generator ports.AnswerGenerator
	names     ports.DocumentNameResolver
	cache     ports.ResponseCache
	observer  ports.QueryObserver
	opts      QueryOptions
}

func NewQueryUseCase(
	embedder ports.Embedder,
	semantic ports.SemanticSearcher,
	keyword ports.KeywordSearcher,
	reranker *Reranker,
	generator ports.AnswerGenerator,
	names ports.DocumentNameResolver,
	cache ports.ResponseCache,
	observer ports.QueryObserver,
	opts QueryOptions,
) *QueryUseCase {
	if observer == nil {
		observer = nopObserver{}
	}
	return &QueryUseCase{
		embedder:  embedder,
		semantic:  semantic,
		keyword:   keyword,
		reranker:  reranker,
		generator: generator,
		names:     names,
		cache:     cache,
		observer:  observer,
		opts:      opts.normalize(),
	}
}

func (uc *QueryUseCase) Answer(
	ctx context.Context,
	question string,
	filter domain.SearchFilter,
) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is required"))
	}
	started := time.Now()
	filter = filter.Normalized()

	if uc.cache != nil {
		if cached, ok := uc.cache.Get(question, filter); ok {
			slog.Info("query_cache_hit",
				"sources", len(cached.Sources),
				"duration_ms", elapsedMS(started),
			)
			return cached, nil
		}
	}

	stageStart := time.Now()
	semantic, keyword := uc.retrieve(ctx, question, filter)
	retrieveDur := time.Since(stageStart)
	uc.observer.ObserveStage(StageRetrieve, retrieveDur, len(semantic)+len(keyword))

	stageStart = time.Now()
	fused, err := FuseRRF(semantic, keyword, uc.opts.RRFK)
	if err != nil {
		return nil, fmt.Errorf("fuse candidates: %w", err)
	}
	fused = trimCandidates(fused, uc.opts.RetrievalTopK)
	fuseDur := time.Since(stageStart)
	uc.observer.ObserveStage(StageFuse, fuseDur, len(fused))

	stageStart = time.Now()
	reranked := uc.reranker.Rerank(ctx, question, fused, uc.opts.RerankTopN)
	rerankDur := time.Since(stageStart)
	uc.observer.ObserveStage(StageRerank, rerankDur, len(reranked))

	if len(reranked) == 0 {
		uc.observer.RecordNoContext()
		uc.observer.ObserveStage(StageTotal, time.Since(started), 0)
		slog.Info("query_no_context",
			"semantic_candidates", len(semantic),
			"keyword_candidates", len(keyword),
			"duration_ms", elapsedMS(started),
		)
		return &domain.Answer{Text: domain.NoContextAnswer, Sources: []domain.Source{}}, nil
	}

	stageStart = time.Now()
	fragments := make([]string, 0, len(reranked))
	for _, c := range reranked {
		fragments = append(fragments, c.Content)
	}
	text, err := uc.generator.GenerateAnswer(ctx, question, fragments)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	synthDur := time.Since(stageStart)
	uc.observer.ObserveStage(StageSynthesize, synthDur, len(reranked))

	answer := &domain.Answer{
		Text:    text,
		Sources: uc.buildSources(ctx, reranked),
	}

	if uc.cache != nil {
		uc.cache.Set(question, filter, answer)
	}

	uc.observer.ObserveStage(StageTotal, time.Since(started), len(answer.Sources))
	slog.Info("query_completed",
		"semantic_candidates", len(semantic),
		"keyword_candidates", len(keyword),
		"fused_candidates", len(fused),
		"reranked_candidates", len(reranked),
		"retrieve_ms", msOf(retrieveDur),
		"fuse_ms", msOf(fuseDur),
		"rerank_ms", msOf(rerankDur),
		"synthesize_ms", msOf(synthDur),
		"duration_ms", elapsedMS(started),
	)
	return answer, nil
}

// retrieve runs both channels concurrently and waits for both. A failed channel
// contributes an empty list.
func (uc *QueryUseCase) retrieve(
	ctx context.Context,
	question string,
	filter domain.SearchFilter,
) (semantic, keyword []domain.RetrievalCandidate) {
	limit := uc.opts.RetrievalTopK * uc.opts.OverfetchFactor

	var g errgroup.Group
	g.Go(func() error {
		started := time.Now()
		out, err := uc.searchSemantic(ctx, question, limit, filter)
		if err != nil {
			uc.channelFailed(ChannelSemantic, err)
			return nil
		}
		uc.observer.ObserveStage(StageSemanticSearch, time.Since(started), len(out))
		semantic = out
		return nil
	})
	g.Go(func() error {
		started := time.Now()
		out, err := uc.keyword.SearchLexical(ctx, question, limit, filter)
		if err != nil {
			uc.channelFailed(ChannelKeyword, err)
			return nil
		}
		uc.observer.ObserveStage(StageKeywordSearch, time.Since(started), len(out))
		keyword = out
		return nil
	})
	_ = g.Wait()

	return semantic, keyword
}

func (uc *QueryUseCase) searchSemantic(
	ctx context.Context,
	question string,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievalCandidate, error) {
	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	out, err := uc.semantic.Search(ctx, queryVector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return out, nil
}

func (uc *QueryUseCase) channelFailed(channel string, err error) {
	uc.observer.RecordChannelFailure(channel)
	slog.Warn("retrieval_channel_failed", "channel", channel, "error", err)
}

func (uc *QueryUseCase) buildSources(ctx context.Context, candidates []domain.RetrievalCandidate) []domain.Source {
	names := uc.resolveNames(ctx, candidates)

	out := make([]domain.Source, 0, len(candidates))
	for _, c := range candidates {
		name, ok := names[c.SourceID]
		if !ok || name == "" {
			name = domain.UnknownSourceName
		}
		out = append(out, domain.Source{
			SourceID:   c.SourceID,
			Filename:   name,
			ChunkIndex: c.ChunkIndex,
			Score:      c.Score,
			ChunkText:  c.Content,
		})
	}
	return out
}

func (uc *QueryUseCase) resolveNames(ctx context.Context, candidates []domain.RetrievalCandidate) map[string]string {
	if uc.names == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		ids = append(ids, c.SourceID)
	}

	names, err := uc.names.ResolveNames(ctx, ids)
	if err != nil {
		slog.Warn("resolve_source_names_failed", "ids", len(ids), "error", err)
		return nil
	}
	return names
}

func elapsedMS(start time.Time) float64 {
	return msOf(time.Since(start))
}

func msOf(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, int) {}
func (nopObserver) RecordChannelFailure(string)            {}
func (nopObserver) RecordRerankFallback()                  {}
func (nopObserver) RecordNoContext()                       {}
