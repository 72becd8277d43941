package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// odfContentPath is the main content part of OpenDocument packages.
const odfContentPath = "content.xml"

var (
	odpPage   = regexp.MustCompile(`(?s)<draw:page[ >].*?</draw:page>`)
	odsSheet  = regexp.MustCompile(`(?s)<table:table[ >].*?</table:table>`)
	odfTextPH = regexp.MustCompile(`(?s)<text:(?:p|h)[ >].*?</text:(?:p|h)>`)
)

// extractODP returns one page per <draw:page>.
func extractODP(content []byte) ([]string, error) {
	return extractODF(content, "ODP", odpPage)
}

// extractODS returns one page per <table:table> sheet.
func extractODS(content []byte) ([]string, error) {
	return extractODF(content, "ODS", odsSheet)
}

// extractODF splits content.xml into pages with pageRe and renders each text:p or text:h
// (including nested spans) as one line. A document without page elements is one page.
func extractODF(content []byte, kind string, pageRe *regexp.Regexp) ([]string, error) {
	zr, err := openZip(content, kind)
	if err != nil {
		return nil, err
	}
	data, err := readZipFile(zr, odfContentPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", kind, err)
	}
	if data == nil {
		return nil, fmt.Errorf("extract %s: %s not found", kind, odfContentPath)
	}
	doc := string(data)
	pageXML := pageRe.FindAllString(doc, -1)
	if len(pageXML) == 0 {
		pageXML = []string{doc}
	}

	pages := make([]string, 0, len(pageXML))
	for _, page := range pageXML {
		var lines []string
		for _, p := range odfTextPH.FindAllString(page, -1) {
			if text := strings.TrimSpace(innerText(p)); text != "" {
				lines = append(lines, text)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages, nil
}
