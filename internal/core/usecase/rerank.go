package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// DefaultJudgeContentChars bounds each candidate's content in a judge request.
const DefaultJudgeContentChars = 1000

type Reranker struct {
	judge           ports.RelevanceJudge
	enabled         bool
	maxContentChars int
	observer        ports.QueryObserver
}

func NewReranker(judge ports.RelevanceJudge, enabled bool, maxContentChars int, observer ports.QueryObserver) *Reranker {
	if maxContentChars <= 0 {
		maxContentChars = DefaultJudgeContentChars
	}
	return &Reranker{
		judge:           judge,
		enabled:         enabled && judge != nil,
		maxContentChars: maxContentChars,
		observer:        observer,
	}
}

// Rerank reorders candidates by the judge's verdict and truncates to topN.
// It only subsets its input; a failed judgment falls back to the input order.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []domain.RetrievalCandidate, topN int) []domain.RetrievalCandidate {
	if r == nil || !r.enabled || len(candidates) == 0 {
		return trimCandidates(candidates, topN)
	}

	payload := make([]domain.JudgeCandidate, 0, len(candidates))
	for i, c := range candidates {
		payload = append(payload, domain.JudgeCandidate{
			Index:   i,
			Content: truncateRunes(c.Content, r.maxContentChars),
		})
	}

	indices, err := r.judge.Judge(ctx, question, payload)
	if err != nil {
		slog.Warn("rerank_fallback",
			"candidates", len(candidates),
			"top_n", topN,
			"error", err,
		)
		if r.observer != nil {
			r.observer.RecordRerankFallback()
		}
		return trimCandidates(candidates, topN)
	}

	seen := make(map[int]struct{}, len(indices))
	out := make([]domain.RetrievalCandidate, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, candidates[idx])
	}

	slog.Debug("rerank_completed", "candidates", len(candidates), "ranked", len(out), "top_n", topN)
	return trimCandidates(out, topN)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
