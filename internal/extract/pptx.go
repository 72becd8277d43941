package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// pptxSlidePath matches slide parts; zip order is not slide order.
	pptxSlidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	aParagraph    = regexp.MustCompile(`(?s)<a:p[ >].*?</a:p>`)
	atTag         = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
)

// extractPPTX returns one page per slide, ordered by slide number. Each <a:p> becomes one line.
func extractPPTX(content []byte) ([]string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return nil, err
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := pptxSlidePath.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]string, 0, len(slides))
	for _, s := range slides {
		data, err := readZipFile(zr, s.name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		var lines []string
		for _, p := range aParagraph.FindAllString(string(data), -1) {
			if text := runsText(p, atTag); text != "" {
				lines = append(lines, text)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages, nil
}
