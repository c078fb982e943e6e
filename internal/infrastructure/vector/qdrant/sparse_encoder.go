package qdrant

import (
	"hash/fnv"
	"sort"

	"github.com/kirillkom/docqa/internal/infrastructure/terms"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	// bm25K saturates repeated terms; a weight never reaches bm25K+1.
	bm25K          = 1.2
	filenameBoost  = 1.5
	maxSparseTerms = 256
)

// encodeSparseDocument weighs a chunk's terms for the lexical vector. Filename
// terms count extra so a question naming the file reaches its chunks. Qdrant
// applies IDF on its side through the collection's sparse modifier.
func encodeSparseDocument(text, filename string) sparseVector {
	counts := terms.Counts{}
	counts.Add(text, 1)
	counts.Add(filename, filenameBoost)
	return toSparse(counts)
}

func encodeSparseQuery(query string) sparseVector {
	counts := terms.Counts{}
	counts.Add(query, 1)
	return toSparse(counts)
}

type weightedTerm struct {
	index  uint32
	weight float64
}

// toSparse hashes terms into dimensions and keeps the maxSparseTerms heaviest.
// Terms that collide on one dimension add up. Indices come out ascending.
func toSparse(counts terms.Counts) sparseVector {
	if len(counts) == 0 {
		return sparseVector{}
	}

	byIndex := make(map[uint32]float64, len(counts))
	for term, tf := range counts {
		byIndex[hashToken(term)] += tf
	}

	weighted := make([]weightedTerm, 0, len(byIndex))
	for idx, tf := range byIndex {
		weighted = append(weighted, weightedTerm{index: idx, weight: saturate(tf)})
	}
	if len(weighted) > maxSparseTerms {
		sort.Slice(weighted, func(i, j int) bool {
			if weighted[i].weight != weighted[j].weight {
				return weighted[i].weight > weighted[j].weight
			}
			return weighted[i].index < weighted[j].index
		})
		weighted = weighted[:maxSparseTerms]
	}
	sort.Slice(weighted, func(i, j int) bool { return weighted[i].index < weighted[j].index })

	out := sparseVector{
		Indices: make([]uint32, len(weighted)),
		Values:  make([]float32, len(weighted)),
	}
	for i, w := range weighted {
		out.Indices[i] = w.index
		out.Values[i] = float32(w.weight)
	}
	return out
}

func saturate(tf float64) float64 {
	return tf * (bm25K + 1) / (tf + bm25K)
}

// hashToken maps a term to a sparse dimension. Zero is reserved.
func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}
