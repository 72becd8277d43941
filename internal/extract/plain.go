package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as one part. Invalid UTF-8 sequences are replaced with
// the replacement character.
func extractPlain(content []byte) ([]string, error) {
	if !utf8.Valid(content) {
		return []string{strings.ToValidUTF8(string(content), "\ufffd")}, nil
	}
	return []string{string(content)}, nil
}
