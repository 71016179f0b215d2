package feedparse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// named entities commonly left behind after tag stripping
var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// CleanText strips HTML tags, decodes common named entities, and collapses
// whitespace runs to single spaces.
func CleanText(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = entityReplacer.Replace(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParseDuration normalizes a feed duration to integer seconds. Accepted
// forms: plain seconds ("3600"), MM:SS ("60:00"), HH:MM:SS ("1:00:00").
// Anything else returns nil.
func ParseDuration(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return nil
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil
		}
		total = total*60 + n
	}

	return &total
}

// ParseExplicit normalizes an explicit flag. yes/true/explicit map to true,
// no/false/clean map to false, anything else is unknown (nil).
func ParseExplicit(s string) *bool {
	v := true
	f := false
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "explicit":
		return &v
	case "no", "false", "clean":
		return &f
	default:
		return nil
	}
}
