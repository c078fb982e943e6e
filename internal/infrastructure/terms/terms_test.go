package terms

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "noise only", in: "___---!!!", want: []string{}},
		{name: "mixed case and digits", in: "Risk level for DOC_0001", want: []string{"risk", "level", "for", "doc", "0001"}},
		{name: "unicode letters", in: "Привет версия-2", want: []string{"привет", "версия", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetDeduplicates(t *testing.T) {
	set := Set("cache Cache CACHE ttl")
	if len(set) != 2 {
		t.Fatalf("expected 2 distinct terms, got %v", set)
	}
	for _, term := range []string{"cache", "ttl"} {
		if _, ok := set[term]; !ok {
			t.Fatalf("expected term %q in %v", term, set)
		}
	}
}

func TestCountsWeighsFields(t *testing.T) {
	counts := Counts{}
	counts.Add("report report body", 1)
	counts.Add("report.pdf", 1.5)

	if counts["report"] != 3.5 {
		t.Fatalf("expected report weight 3.5, got %v", counts["report"])
	}
	if counts["pdf"] != 1.5 || counts["body"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
