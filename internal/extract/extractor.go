// Package extract turns document files into ordered paragraph-level text blocks.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions with no extractor.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Block is one paragraph of extracted text. Page is the 1-based page, slide or sheet for
// paginated formats and the 1-based paragraph ordinal for flowing formats.
type Block struct {
	Page int
	Text string
}

type layout int

const (
	paginated layout = iota
	flowing
)

type format struct {
	layout  layout
	extract func([]byte) ([]string, error)
}

// formats maps lower-case extensions to extractors. Paginated extractors return one string
// per page; flowing extractors return the whole text or its paragraphs.
var formats = map[string]format{
	".pdf":  {paginated, extractPDF},
	".pptx": {paginated, extractPPTX},
	".xlsx": {paginated, extractExcel},
	".odp":  {paginated, extractODP},
	".ods":  {paginated, extractODS},
	".docx": {flowing, extractDOCX},
	".txt":  {flowing, extractPlain},
	".md":   {flowing, extractPlain},
}

// SupportedExtensions returns the accepted extensions, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(formats))
	for ext := range formats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether files with ext (".pdf", ".PDF") can be extracted.
func Supported(ext string) bool {
	_, ok := formats[strings.ToLower(ext)]
	return ok
}

// Extractor extracts text blocks from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its blocks.
func (e *Extractor) Extract(path string) ([]Block, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts blocks from content based on ext, which includes the leading dot.
// Paginated formats are split into paragraphs on blank lines within each page; a page
// without blank lines is one block and a page with no text yields none.
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]Block, error) {
	f, ok := formats[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	parts, err := f.extract(content)
	if err != nil {
		return nil, err
	}

	var blocks []Block
	switch f.layout {
	case paginated:
		for i, page := range parts {
			for _, p := range splitParagraphs(page) {
				blocks = append(blocks, Block{Page: i + 1, Text: p})
			}
		}
	case flowing:
		n := 0
		for _, part := range parts {
			for _, p := range splitParagraphs(part) {
				n++
				blocks = append(blocks, Block{Page: n, Text: p})
			}
		}
	}
	return blocks, nil
}

var blankLine = regexp.MustCompile(`\n[ \t\f\v]*\n`)

// splitParagraphs splits text on blank lines and drops empty paragraphs.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range blankLine.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
