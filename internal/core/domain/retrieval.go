package domain

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownSourceName labels sources whose document row could not be resolved.
const UnknownSourceName = "Unknown"

// NoContextAnswer is returned when retrieval produced no usable fragments.
const NoContextAnswer = "I couldn't find any relevant information in the uploaded documents to answer your question."

// SearchFilter restricts retrieval to a set of documents. Empty means all documents.
type SearchFilter struct {
	DocumentIDs []string `json:"source_ids,omitempty"`
}

// Normalized trims, de-duplicates and sorts the document ids. Blank ids are dropped.
func (f SearchFilter) Normalized() SearchFilter {
	if len(f.DocumentIDs) == 0 {
		return SearchFilter{}
	}
	seen := make(map[string]struct{}, len(f.DocumentIDs))
	ids := make([]string, 0, len(f.DocumentIDs))
	for _, id := range f.DocumentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return SearchFilter{}
	}
	sort.Strings(ids)
	return SearchFilter{DocumentIDs: ids}
}

// RetrievalCandidate is one scored text fragment. Score semantics depend on the
// producing stage: cosine similarity, lexical relevance or fused rank score.
type RetrievalCandidate struct {
	SourceID   string  `json:"source_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Key identifies the underlying fragment regardless of the channel that found it.
func (c RetrievalCandidate) Key() string {
	return fmt.Sprintf("%s:%d", c.SourceID, c.ChunkIndex)
}

// JudgeCandidate is the payload sent to a relevance judge.
type JudgeCandidate struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

type Source struct {
	SourceID   string  `json:"source_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"similarity"`
	ChunkText  string  `json:"chunk_text"`
}

type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Clone returns a deep copy so cached answers cannot be mutated by callers.
func (a *Answer) Clone() *Answer {
	if a == nil {
		return nil
	}
	out := &Answer{Text: a.Text, Sources: make([]Source, len(a.Sources))}
	copy(out.Sources, a.Sources)
	return out
}

// CacheStats is a point-in-time view of the response cache counters.
type CacheStats struct {
	Enabled bool   `json:"enabled"`
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}
