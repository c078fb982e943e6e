package chunking

import "strings"

const defaultChunkSize = 1000

// Splitter cuts text into rune windows of ChunkSize; consecutive windows share
// Overlap runes.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// NewSplitter falls back to 1000-rune windows. An overlap that would stall the
// window is reduced to a fifth of the window.
func NewSplitter(chunkSize, overlap int) *Splitter {
	s := &Splitter{ChunkSize: chunkSize, Overlap: max(overlap, 0)}
	if s.ChunkSize <= 0 {
		s.ChunkSize = defaultChunkSize
	}
	if s.Overlap >= s.ChunkSize {
		s.Overlap = s.ChunkSize / 5
	}
	return s
}

// Split returns the non-blank windows in order; a window's position in the
// result is its chunk index.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	var out []string
	for _, w := range s.windows(len(runes)) {
		if chunk := strings.TrimSpace(string(runes[w.start:w.end])); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

type window struct {
	start, end int
}

// windows covers [0, n) with a stride of ChunkSize-Overlap. The last window
// ends exactly at n, so no tail is emitted twice.
func (s *Splitter) windows(n int) []window {
	if n == 0 {
		return nil
	}
	stride := max(s.ChunkSize-s.Overlap, 1)
	out := make([]window, 0, n/stride+1)
	for start := 0; ; start += stride {
		end := min(start+s.ChunkSize, n)
		out = append(out, window{start: start, end: end})
		if end == n {
			return out
		}
	}
}
