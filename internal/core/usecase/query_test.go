package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type queryEmbedderFake struct {
	err error
}

func (f *queryEmbedderFake) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }
func (f *queryEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type semanticFake struct {
	mu     sync.Mutex
	out    []domain.RetrievalCandidate
	err    error
	limit  int
	filter domain.SearchFilter
	calls  int
	hook   func()
}

func (f *semanticFake) Search(_ context.Context, _ []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievalCandidate, error) {
	if f.hook != nil {
		f.hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limit = limit
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type keywordFake struct {
	mu    sync.Mutex
	out   []domain.RetrievalCandidate
	err   error
	limit int
	calls int
	hook  func()
}

func (f *keywordFake) SearchLexical(_ context.Context, _ string, limit int, _ domain.SearchFilter) ([]domain.RetrievalCandidate, error) {
	if f.hook != nil {
		f.hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type generatorFake struct {
	err       error
	fragments []string
	calls     int
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _ string, fragments []string) (string, error) {
	f.calls++
	f.fragments = fragments
	if f.err != nil {
		return "", f.err
	}
	return "answer", nil
}

type namesFake struct {
	names map[string]string
	err   error
	ids   []string
}

func (f *namesFake) ResolveNames(_ context.Context, ids []string) (map[string]string, error) {
	f.ids = ids
	if f.err != nil {
		return nil, f.err
	}
	return f.names, nil
}

type cacheFake struct {
	mu      sync.Mutex
	entries map[string]*domain.Answer
	sets    int
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: map[string]*domain.Answer{}}
}

func (f *cacheFake) key(question string, filter domain.SearchFilter) string {
	return question + "|" + stringsJoin(filter.DocumentIDs)
}

func (f *cacheFake) Get(question string, filter domain.SearchFilter) (*domain.Answer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.entries[f.key(question, filter)]
	return a, ok
}

func (f *cacheFake) Set(question string, filter domain.SearchFilter, answer *domain.Answer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[f.key(question, filter)] = answer
}

func stringsJoin(ids []string) string {
	out := ""
	for _, id := range ids {
		out += id + ","
	}
	return out
}

type observerFake struct {
	mu              sync.Mutex
	stages          map[string]int
	channelFailures []string
	rerankFallbacks int
	noContext       int
}

func (f *observerFake) ObserveStage(stage string, _ time.Duration, candidates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stages == nil {
		f.stages = map[string]int{}
	}
	f.stages[stage] = candidates
}

func (f *observerFake) RecordChannelFailure(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelFailures = append(f.channelFailures, channel)
}

func (f *observerFake) RecordRerankFallback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rerankFallbacks++
}

func (f *observerFake) RecordNoContext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noContext++
}

type queryFixture struct {
	embedder  *queryEmbedderFake
	semantic  *semanticFake
	keyword   *keywordFake
	generator *generatorFake
	names     *namesFake
	cache     *cacheFake
	observer  *observerFake
}

func newQueryFixture() *queryFixture {
	return &queryFixture{
		embedder: &queryEmbedderFake{},
		semantic: &semanticFake{out: []domain.RetrievalCandidate{
			{SourceID: "doc1", ChunkIndex: 0, Content: "one", Score: 0.9},
			{SourceID: "doc2", ChunkIndex: 1, Content: "two", Score: 0.7},
		}},
		keyword: &keywordFake{out: []domain.RetrievalCandidate{
			{SourceID: "doc2", ChunkIndex: 1, Content: "two", Score: 5},
			{SourceID: "doc3", ChunkIndex: 2, Content: "three", Score: 3},
		}},
		generator: &generatorFake{},
		names:     &namesFake{names: map[string]string{"doc1": "one.txt", "doc2": "two.pdf"}},
		cache:     newCacheFake(),
		observer:  &observerFake{},
	}
}

func (f *queryFixture) useCase(opts QueryOptions, reranker *Reranker) *QueryUseCase {
	return NewQueryUseCase(f.embedder, f.semantic, f.keyword, reranker, f.generator, f.names, f.cache, f.observer, opts)
}

func defaultQueryOptions() QueryOptions {
	return QueryOptions{RetrievalTopK: 10, RerankTopN: 5, OverfetchFactor: 2, RRFK: 60}
}

func TestQueryUseCaseFusesBothChannels(t *testing.T) {
	f := newQueryFixture()
	uc := f.useCase(defaultQueryOptions(), NewReranker(nil, false, 0, f.observer))

	answer, err := uc.Answer(context.Background(), "What is two?", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != "answer" {
		t.Fatalf("unexpected answer text %q", answer.Text)
	}
	if len(answer.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(answer.Sources))
	}
	if answer.Sources[0].SourceID != "doc2" || answer.Sources[0].Filename != "two.pdf" {
		t.Fatalf("expected doc2 first, got %+v", answer.Sources[0])
	}
	if answer.Sources[2].Filename != domain.UnknownSourceName {
		t.Fatalf("expected unknown filename for doc3, got %q", answer.Sources[2].Filename)
	}
	if !reflect.DeepEqual(f.generator.fragments, []string{"two", "one", "three"}) {
		t.Fatalf("unexpected fragments passed to generator: %v", f.generator.fragments)
	}
	if !reflect.DeepEqual(f.names.ids, []string{"doc2", "doc1", "doc3"}) {
		t.Fatalf("expected distinct ids in one batch, got %v", f.names.ids)
	}
	if f.cache.sets != 1 {
		t.Fatalf("expected answer to be cached once, got %d", f.cache.sets)
	}
}

func TestQueryUseCaseOverfetchesEachChannel(t *testing.T) {
	f := newQueryFixture()
	uc := f.useCase(QueryOptions{RetrievalTopK: 4, RerankTopN: 2, OverfetchFactor: 3, RRFK: 60}, nil)

	filter := domain.SearchFilter{DocumentIDs: []string{"doc1"}}
	answer, err := uc.Answer(context.Background(), "q", filter)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if f.semantic.limit != 12 || f.keyword.limit != 12 {
		t.Fatalf("expected over-fetch limit 12, got semantic=%d keyword=%d", f.semantic.limit, f.keyword.limit)
	}
	if !reflect.DeepEqual(f.semantic.filter, filter) {
		t.Fatalf("filter not passed to semantic search: %+v", f.semantic.filter)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("expected rerank depth 2, got %d", len(answer.Sources))
	}
}

func TestQueryUseCaseTruncatesFusedToRetrievalDepth(t *testing.T) {
	f := newQueryFixture()
	uc := f.useCase(QueryOptions{RetrievalTopK: 2, RerankTopN: 5, OverfetchFactor: 2, RRFK: 60}, nil)

	answer, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("expected fused list truncated to 2, got %d", len(answer.Sources))
	}
	if f.observer.stages[StageFuse] != 2 {
		t.Fatalf("expected fuse stage count 2, got %d", f.observer.stages[StageFuse])
	}
}

func TestQueryUseCaseSemanticFailureUsesKeywordOnly(t *testing.T) {
	f := newQueryFixture()
	f.embedder.err = errors.New("embed down")
	uc := f.useCase(defaultQueryOptions(), nil)

	answer, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(answer.Sources) != 2 || answer.Sources[0].SourceID != "doc2" {
		t.Fatalf("expected keyword-only sources, got %+v", answer.Sources)
	}
	if !reflect.DeepEqual(f.observer.channelFailures, []string{ChannelSemantic}) {
		t.Fatalf("expected semantic failure recorded, got %v", f.observer.channelFailures)
	}
}

func TestQueryUseCaseKeywordFailureUsesSemanticOnly(t *testing.T) {
	f := newQueryFixture()
	f.keyword.err = errors.New("lexical index missing")
	uc := f.useCase(defaultQueryOptions(), nil)

	answer, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(answer.Sources) != 2 || answer.Sources[0].SourceID != "doc1" {
		t.Fatalf("expected semantic-only sources, got %+v", answer.Sources)
	}
}

func TestQueryUseCaseTotalRetrievalFailureReturnsNoContext(t *testing.T) {
	f := newQueryFixture()
	f.semantic.err = errors.New("vector down")
	f.keyword.err = errors.New("lexical down")
	uc := f.useCase(defaultQueryOptions(), nil)

	answer, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != domain.NoContextAnswer || len(answer.Sources) != 0 {
		t.Fatalf("expected no-context answer, got %+v", answer)
	}
	if f.cache.sets != 0 {
		t.Fatalf("no-context answer must not be cached")
	}
	if f.generator.calls != 0 {
		t.Fatalf("generator must not be called without context")
	}
}

func TestQueryUseCaseEmptyChannelsReturnNoContext(t *testing.T) {
	f := newQueryFixture()
	f.semantic.out = nil
	f.keyword.out = nil
	uc := f.useCase(defaultQueryOptions(), nil)

	answer, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Text != domain.NoContextAnswer {
		t.Fatalf("unexpected answer %q", answer.Text)
	}
	if answer.Sources == nil || len(answer.Sources) != 0 {
		t.Fatalf("expected empty, non-nil sources, got %#v", answer.Sources)
	}
	if f.cache.sets != 0 {
		t.Fatalf("no-context answer must not be cached")
	}
	if f.observer.noContext != 1 {
		t.Fatalf("expected no-context to be recorded")
	}
}

func TestQueryUseCaseSynthesisFailureIsReturned(t *testing.T) {
	f := newQueryFixture()
	f.generator.err = errors.New("llm down")
	uc := f.useCase(defaultQueryOptions(), nil)

	_, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err == nil {
		t.Fatalf("expected synthesis error")
	}
	if f.cache.sets != 0 {
		t.Fatalf("failed answer must not be cached")
	}
}

func TestQueryUseCaseCacheHitShortCircuits(t *testing.T) {
	f := newQueryFixture()
	cached := &domain.Answer{Text: "cached", Sources: []domain.Source{{SourceID: "doc9"}}}
	f.cache.Set("q", domain.SearchFilter{}, cached)
	uc := f.useCase(defaultQueryOptions(), nil)

	answer, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != cached {
		t.Fatalf("expected cached answer unchanged, got %+v", answer)
	}
	if f.semantic.calls != 0 || f.keyword.calls != 0 || f.generator.calls != 0 {
		t.Fatalf("cache hit must skip the pipeline")
	}
}

func TestQueryUseCaseNameResolutionFailureLabelsUnknown(t *testing.T) {
	f := newQueryFixture()
	f.names.err = errors.New("db down")
	uc := f.useCase(defaultQueryOptions(), nil)

	answer, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	for _, s := range answer.Sources {
		if s.Filename != domain.UnknownSourceName {
			t.Fatalf("expected unknown filename, got %q", s.Filename)
		}
	}
}

func TestQueryUseCaseRunsChannelsConcurrently(t *testing.T) {
	f := newQueryFixture()
	semanticStarted := make(chan struct{})
	keywordStarted := make(chan struct{})
	wait := func(ch <-chan struct{}) {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
		}
	}
	f.semantic.hook = func() {
		close(semanticStarted)
		wait(keywordStarted)
	}
	f.keyword.hook = func() {
		close(keywordStarted)
		wait(semanticStarted)
	}
	uc := f.useCase(defaultQueryOptions(), nil)

	start := time.Now()
	if _, err := uc.Answer(context.Background(), "q", domain.SearchFilter{}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("channels did not run concurrently")
	}
	if f.semantic.calls != 1 || f.keyword.calls != 1 {
		t.Fatalf("expected both channels to complete before fusion")
	}
}

func TestQueryUseCaseRejectsEmptyQuestion(t *testing.T) {
	f := newQueryFixture()
	uc := f.useCase(defaultQueryOptions(), nil)

	_, err := uc.Answer(context.Background(), "   ", domain.SearchFilter{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQueryUseCaseRerankFallbackKeepsFusedOrder(t *testing.T) {
	f := newQueryFixture()
	reranker := NewReranker(&judgeFake{err: errors.New("judge timeout")}, true, 0, f.observer)
	uc := f.useCase(QueryOptions{RetrievalTopK: 10, RerankTopN: 2, OverfetchFactor: 2, RRFK: 60}, reranker)

	answer, err := uc.Answer(context.Background(), "q", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(answer.Sources) != 2 || answer.Sources[0].SourceID != "doc2" || answer.Sources[1].SourceID != "doc1" {
		t.Fatalf("expected fused prefix after fallback, got %+v", answer.Sources)
	}
	if f.observer.rerankFallbacks != 1 {
		t.Fatalf("expected rerank fallback recorded")
	}
}
