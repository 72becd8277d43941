package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
)

func openZip(content []byte, kind string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	return zr, nil
}

// readZipFile returns the contents of the named entry, or nil if it does not exist.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}

var anyTag = regexp.MustCompile(`<[^>]+>`)

// innerText strips markup and decodes entities.
func innerText(xml string) string {
	return html.UnescapeString(anyTag.ReplaceAllString(xml, ""))
}

// runsText concatenates the inner text of every match of run within element. Runs are
// pieces of one paragraph, so they are joined without a separator.
func runsText(element string, run *regexp.Regexp) string {
	var b strings.Builder
	for _, m := range run.FindAllStringSubmatch(element, -1) {
		b.WriteString(html.UnescapeString(m[1]))
	}
	return strings.TrimSpace(b.String())
}
