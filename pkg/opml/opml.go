// Package opml parses OPML 2.0 subscription lists into a flat set of feeds.
package opml

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Feed is one subscribable entry extracted from an OPML outline.
type Feed struct {
	Title    string
	FeedURL  string
	Category string
}

// Result is the outcome of parsing one OPML document.
type Result struct {
	TotalOutlines int
	Feeds         []Feed
	SkippedNoURL  int
	SkippedScheme int
}

type document struct {
	XMLName xml.Name  `xml:"opml"`
	Body    body      `xml:"body"`
}

type body struct {
	Outlines []outline `xml:"outline"`
}

type outline struct {
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []outline  `xml:"outline"`
}

// Attribute names are matched case-insensitively; feeds in the wild use all
// of these spellings.
var urlAttrs = []string{"xmlurl", "url", "feedurl"}
var titleAttrs = []string{"title", "text", "name"}

func (o outline) attr(names []string) string {
	for _, name := range names {
		for _, a := range o.Attrs {
			if strings.EqualFold(a.Name.Local, name) && a.Value != "" {
				return a.Value
			}
		}
	}
	return ""
}

// Parse parses OPML bytes. Nested outlines without a feed URL act as category
// labels for their children. Outlines with a URL in an unsupported scheme are
// counted but not returned.
func Parse(data []byte) (*Result, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing opml: %w", err)
	}

	result := &Result{}
	walk(doc.Body.Outlines, "", result)
	return result, nil
}

func walk(outlines []outline, category string, result *Result) {
	for _, o := range outlines {
		result.TotalOutlines++

		feedURL := o.attr(urlAttrs)
		title := o.attr(titleAttrs)

		if feedURL == "" {
			if len(o.Children) > 0 {
				// Category outline: its title scopes the children.
				childCategory := title
				if childCategory == "" {
					childCategory = category
				}
				walk(o.Children, childCategory, result)
			}
			result.SkippedNoURL++
			continue
		}

		normalized, err := NormalizeFeedURL(feedURL)
		if err != nil {
			result.SkippedScheme++
			continue
		}

		result.Feeds = append(result.Feeds, Feed{
			Title:    title,
			FeedURL:  normalized,
			Category: category,
		})

		if len(o.Children) > 0 {
			walk(o.Children, category, result)
		}
	}
}

// NormalizeFeedURL accepts http, https and feed scheme URLs, rewriting
// feed:// to https://. Any other scheme is rejected.
func NormalizeFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)

	switch {
	case strings.HasPrefix(lower, "feed://"):
		return "https://" + raw[len("feed://"):], nil
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return raw, nil
	default:
		return "", fmt.Errorf("unsupported feed URL scheme: %s", raw)
	}
}
