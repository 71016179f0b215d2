// Package sanitize provides filename and metadata-value sanitizing helpers
// shared by the downloader and the file-search indexer.
package sanitize

import (
	"strings"
)

const maxFilenameLength = 200

// MaxTagValueLength is the upper bound the file-search store accepts for a
// single metadata value.
const MaxTagValueLength = 255

// forbidden characters for filenames on common filesystems
const forbiddenChars = `<>:"/\|?*`

// Filename turns an arbitrary episode title into a safe filename component.
// The result contains none of <>:"/\|?*, has runs of spaces and underscores
// collapsed, no leading or trailing dots or whitespace, and is at most 200
// characters long.
func Filename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if strings.ContainsRune(forbiddenChars, r) {
			continue
		}
		b.WriteRune(r)
	}

	s := b.String()
	s = collapseRuns(s, ' ')
	s = collapseRuns(s, '_')
	s = strings.Trim(s, ". \t\n")

	if len(s) > maxFilenameLength {
		s = s[:maxFilenameLength]
		// A multi-byte rune may have been split at the cut point.
		s = strings.ToValidUTF8(s, "")
		s = strings.Trim(s, ". \t\n")
	}

	return s
}

// collapseRuns replaces runs of the given character with a single occurrence.
func collapseRuns(s string, c byte) string {
	double := string([]byte{c, c})
	single := string(c)
	for strings.Contains(s, double) {
		s = strings.ReplaceAll(s, double, single)
	}
	return s
}

// unicode punctuation that the file-search store mangles; normalized to ASCII
var tagReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"–", "-", // en dash
	"—", "-", // em dash
	"…", "...", // ellipsis
	" ", " ", // non-breaking space
)

// TagValue normalizes a metadata value for upload: curly quotes and dashes
// become their ASCII equivalents, the ellipsis becomes "...", and the result
// is truncated to MaxTagValueLength characters.
func TagValue(s string) string {
	s = tagReplacer.Replace(s)
	s = strings.TrimSpace(s)
	if len(s) > MaxTagValueLength {
		s = s[:MaxTagValueLength]
		s = strings.ToValidUTF8(s, "")
	}
	return s
}

// TagList flattens a list of values to a single comma-separated tag value.
func TagList(values []string) string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return TagValue(strings.Join(cleaned, ", "))
}
