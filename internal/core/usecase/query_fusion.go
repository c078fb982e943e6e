package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DefaultRRFK is the usual smoothing constant for reciprocal rank fusion.
const DefaultRRFK = 60

type fusedCandidate struct {
	candidate domain.RetrievalCandidate
	score     float64
	firstSeen int
}

// FuseRRF merges two ranked lists with reciprocal rank fusion. A candidate at
// zero-based rank r contributes 1/(r+k); contributions of the same (source, chunk)
// pair are summed. Ties keep the order identities were first seen, list a first.
func FuseRRF(a, b []domain.RetrievalCandidate, k int) ([]domain.RetrievalCandidate, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fuse candidates", fmt.Errorf("rrf k must be positive, got %d", k))
	}

	acc := make(map[string]*fusedCandidate, len(a)+len(b))
	order := make([]*fusedCandidate, 0, len(a)+len(b))
	addList := func(candidates []domain.RetrievalCandidate) {
		for rank, candidate := range candidates {
			key := candidate.Key()
			entry, ok := acc[key]
			if !ok {
				entry = &fusedCandidate{candidate: candidate, firstSeen: len(order)}
				acc[key] = entry
				order = append(order, entry)
			}
			entry.score += 1.0 / float64(rank+k)
		}
	}

	addList(a)
	addList(b)

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].firstSeen < order[j].firstSeen
	})

	out := make([]domain.RetrievalCandidate, 0, len(order))
	for _, entry := range order {
		candidate := entry.candidate
		candidate.Score = entry.score
		out = append(out, candidate)
	}
	return out, nil
}

func trimCandidates(candidates []domain.RetrievalCandidate, limit int) []domain.RetrievalCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
