package qdrant

import (
	"fmt"
	"testing"
)

func TestEncodeSparseQueryDeterministic(t *testing.T) {
	v1 := encodeSparseQuery("Risk level for DOC_0001")
	v2 := encodeSparseQuery("Risk level for DOC_0001")
	if len(v1.Indices) != len(v2.Indices) || len(v1.Values) != len(v2.Values) {
		t.Fatalf("vector sizes mismatch: v1=%d/%d v2=%d/%d", len(v1.Indices), len(v1.Values), len(v2.Indices), len(v2.Values))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] {
			t.Fatalf("indices mismatch at %d: %d vs %d", i, v1.Indices[i], v2.Indices[i])
		}
		if v1.Values[i] != v2.Values[i] {
			t.Fatalf("values mismatch at %d: %f vs %f", i, v1.Values[i], v2.Values[i])
		}
	}
}

func TestEncodeSparseQuerySortsIndices(t *testing.T) {
	v := encodeSparseQuery("zulu alpha beta gamma")
	if len(v.Indices) == 0 {
		t.Fatalf("expected non-empty sparse vector")
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i-1] > v.Indices[i] {
			t.Fatalf("indices not sorted at %d: %d > %d", i, v.Indices[i-1], v.Indices[i])
		}
	}
}

func TestEncodeSparseQueryEmptyNoiseInput(t *testing.T) {
	v := encodeSparseQuery("___---!!!")
	if len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatalf("expected empty sparse vector, got %+v", v)
	}
}

func TestEncodeSparseQueryKeepsHeaviestTerms(t *testing.T) {
	text := ""
	for i := 0; i < maxSparseTerms+20; i++ {
		text += fmt.Sprintf(" term%d", i)
	}
	text += " repeated repeated repeated"

	v := encodeSparseQuery(text)
	if len(v.Indices) != maxSparseTerms || len(v.Values) != maxSparseTerms {
		t.Fatalf("expected %d terms, got %d/%d", maxSparseTerms, len(v.Indices), len(v.Values))
	}
	idx := hashToken("repeated")
	found := false
	for _, got := range v.Indices {
		if got == idx {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the most frequent term to survive truncation")
	}
}

func TestEncodeSparseDocumentBoostsFilenameTerms(t *testing.T) {
	plain := encodeSparseDocument("report", "")
	boosted := encodeSparseDocument("report", "report.pdf")
	idx := hashToken("report")

	weightOf := func(v sparseVector) float32 {
		for i, got := range v.Indices {
			if got == idx {
				return v.Values[i]
			}
		}
		return 0
	}
	if weightOf(boosted) <= weightOf(plain) {
		t.Fatalf("expected filename occurrence to raise term weight: %f <= %f", weightOf(boosted), weightOf(plain))
	}
}

func TestTermWeightsSaturate(t *testing.T) {
	once := encodeSparseQuery("cache")
	many := encodeSparseQuery("cache cache cache cache cache cache cache cache")
	if many.Values[0] <= once.Values[0] {
		t.Fatalf("repeated term should weigh more")
	}
	if many.Values[0] >= float32(bm25K+1) {
		t.Fatalf("weight must stay below k+1, got %f", many.Values[0])
	}
}
