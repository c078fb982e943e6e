// Package lexical orders rerank candidates by query term overlap without
// calling a model.
package lexical

import (
	"context"
	"sort"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/terms"
)

const (
	positionWeight = 0.40
	overlapWeight  = 0.60
)

type Judge struct{}

func NewJudge() *Judge {
	return &Judge{}
}

// Judge blends each candidate's incoming position with the share of question
// tokens it contains. Every index is returned; ties keep the incoming order.
func (j *Judge) Judge(_ context.Context, question string, candidates []domain.JudgeCandidate) ([]int, error) {
	if len(candidates) == 0 {
		return []int{}, nil
	}
	queryTokens := terms.Set(question)

	type scored struct {
		index int
		score float64
	}
	n := len(candidates)
	ranked := make([]scored, 0, n)
	for pos, c := range candidates {
		prior := 1.0
		if n > 1 {
			prior = 1.0 - float64(pos)/float64(n-1)
		}
		overlap := tokenOverlap(queryTokens, terms.Set(c.Content))
		ranked = append(ranked, scored{
			index: c.Index,
			score: positionWeight*prior + overlapWeight*overlap,
		})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	out := make([]int, 0, n)
	for _, r := range ranked {
		out = append(out, r.index)
	}
	return out, nil
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}
