// Package feedparse converts RSS bytes into parsed podcast and episode
// records. It understands the iTunes and media extensions and skips entries
// that carry no audio enclosure.
package feedparse

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/podscribe/podscribe/pkg/opml"
)

// ParsedPodcast is the feed-level result of parsing one RSS document.
type ParsedPodcast struct {
	FeedURL     string
	Title       string
	Description string
	ImageURL    string
	Author      string
	Language    string
	Episodes    []ParsedEpisode
}

// ParsedEpisode is one feed entry with a usable audio enclosure. YouTube
// syncs fill the video fields; RSS parsing leaves them zero.
type ParsedEpisode struct {
	GUID            string
	Title           string
	Description     string
	PublishedDate   *time.Time
	DurationSeconds *int
	EpisodeNumber   *int
	SeasonNumber    *int
	Explicit        *bool
	Enclosure       Enclosure

	VideoID           string
	CaptionsAvailable bool
	CaptionLanguage   string
}

// Enclosure is the audio file reference from a feed entry.
type Enclosure struct {
	URL    string
	Type   string
	Length int64
}

// audioExtensions are accepted when the enclosure MIME type is missing or
// ambiguous (application/octet-stream).
var audioExtensions = map[string]bool{
	"mp3": true, "m4a": true, "mp4": true, "ogg": true,
	"opus": true, "wav": true, "aac": true,
}

// Parser fetches and parses RSS feeds.
type Parser struct {
	client    *http.Client
	userAgent string
}

// NewParser creates a feed parser with the given HTTP timeout.
func NewParser(timeout time.Duration, userAgent string) *Parser {
	return &Parser{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// ParseURL fetches a feed over HTTP and parses it. feed:// URLs are rewritten
// to https:// before fetching.
func (p *Parser) ParseURL(ctx context.Context, feedURL string) (*ParsedPodcast, error) {
	normalized, err := opml.NormalizeFeedURL(feedURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return nil, fmt.Errorf("creating feed request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", normalized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed %s: server returned status %d", normalized, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", normalized, err)
	}

	return transform(feed, normalized), nil
}

// ParseBytes parses raw feed bytes. feedURL is recorded on the result but not
// fetched.
func (p *Parser) ParseBytes(data []byte, feedURL string) (*ParsedPodcast, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	return transform(feed, feedURL), nil
}

func transform(feed *gofeed.Feed, feedURL string) *ParsedPodcast {
	podcast := &ParsedPodcast{
		FeedURL:     feedURL,
		Title:       CleanText(feed.Title),
		Description: CleanText(feed.Description),
		Language:    feed.Language,
	}

	if feed.Image != nil {
		podcast.ImageURL = feed.Image.URL
	}
	if feed.ITunesExt != nil {
		if podcast.Author == "" {
			podcast.Author = feed.ITunesExt.Author
		}
		if podcast.ImageURL == "" {
			podcast.ImageURL = feed.ITunesExt.Image
		}
	}
	if podcast.Author == "" && len(feed.Authors) > 0 && feed.Authors[0] != nil {
		podcast.Author = feed.Authors[0].Name
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		episode, ok := transformItem(item)
		if !ok {
			continue
		}
		podcast.Episodes = append(podcast.Episodes, episode)
	}

	return podcast
}

func transformItem(item *gofeed.Item) (ParsedEpisode, bool) {
	enclosure, ok := pickAudioEnclosure(item)
	if !ok {
		return ParsedEpisode{}, false
	}

	guid := item.GUID
	if guid == "" {
		guid = enclosure.URL
	}

	episode := ParsedEpisode{
		GUID:        guid,
		Title:       CleanText(item.Title),
		Description: CleanText(item.Description),
		Enclosure:   enclosure,
	}

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		episode.PublishedDate = &t
	}

	if item.ITunesExt != nil {
		episode.DurationSeconds = ParseDuration(item.ITunesExt.Duration)
		episode.EpisodeNumber = parsePositiveInt(item.ITunesExt.Episode)
		episode.SeasonNumber = parsePositiveInt(item.ITunesExt.Season)
		episode.Explicit = ParseExplicit(item.ITunesExt.Explicit)
		if episode.Description == "" {
			episode.Description = CleanText(item.ITunesExt.Summary)
		}
	}

	return episode, true
}

// pickAudioEnclosure returns the first enclosure that looks like audio. A
// MIME type with the audio/ prefix is accepted outright; an absent type or
// application/octet-stream defers to the URL extension.
func pickAudioEnclosure(item *gofeed.Item) (Enclosure, bool) {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if !isAudio(enc.Type, enc.URL) {
			continue
		}
		return Enclosure{
			URL:    enc.URL,
			Type:   enc.Type,
			Length: parseLength(enc.Length),
		}, true
	}
	return Enclosure{}, false
}

func isAudio(mimeType, url string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if strings.HasPrefix(mimeType, "audio/") {
		return true
	}
	if mimeType != "" && mimeType != "application/octet-stream" {
		return false
	}
	return audioExtensions[urlExtension(url)]
}

// urlExtension returns the lowercase extension of a URL path, ignoring any
// query string.
func urlExtension(url string) string {
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		url = url[:idx]
	}
	dot := strings.LastIndex(url, ".")
	slash := strings.LastIndex(url, "/")
	if dot < 0 || dot < slash {
		return ""
	}
	return strings.ToLower(url[dot+1:])
}

func parseLength(s string) int64 {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int64(r-'0')
	}
	return n
}

func parsePositiveInt(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return nil
	}
	return &n
}
