// Package indexer chunks extracted documents and ingests them into the vector store.
package indexer

import (
	"strings"
)

const (
	// DefaultMaxWords is the default window length in words.
	DefaultMaxWords = 220
	// DefaultOverlap is the default number of words shared by consecutive windows.
	DefaultOverlap = 30
)

// Window is one chunk of a text: words [Start, End) joined by single spaces.
type Window struct {
	Start int
	End   int
	Text  string
}

// Chunker splits text into overlapping word windows.
type Chunker struct {
	maxWords int
	overlap  int
}

// NewChunker creates a chunker with the given window length and overlap, both in words.
// A non-positive maxWords falls back to DefaultMaxWords and a negative overlap to zero.
func NewChunker(maxWords, overlap int) *Chunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{maxWords: maxWords, overlap: overlap}
}

// Step is the distance between window starts, never less than one.
func (c *Chunker) Step() int {
	return max(c.maxWords-c.overlap, 1)
}

// Split tokenizes text on whitespace and returns windows starting at 0, step, 2*step, ...
// while the start is inside the text. The last window may be shorter. Empty text yields nil.
func (c *Chunker) Split(text string) []Window {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.Step()
	windows := make([]Window, 0, (len(words)+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := min(start+c.maxWords, len(words))
		windows = append(windows, Window{
			Start: start,
			End:   end,
			Text:  strings.Join(words[start:end], " "),
		})
	}
	return windows
}
