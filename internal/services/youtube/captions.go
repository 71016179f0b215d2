package youtube

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoCaptions reports that the video has no caption track in the requested
// language. Callers fall back to the audio pipeline.
var ErrNoCaptions = errors.New("no captions available")

// timedText mirrors the timedtext XML envelope: a flat list of cue texts.
type timedText struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []string `xml:"text"`
}

// FetchCaptions downloads the caption track for a video and returns the cue
// texts joined with single spaces. An empty language uses the configured
// default.
func (c *Client) FetchCaptions(ctx context.Context, videoID, language string) (string, error) {
	if language == "" {
		language = c.captionLanguage
	}

	query := url.Values{}
	query.Set("v", videoID)
	query.Set("lang", language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.captionBaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating caption request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching captions for %s: %w", videoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoCaptions
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching captions for %s: server returned status %d", videoID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading caption body: %w", err)
	}
	// The endpoint answers 200 with an empty body when no track exists.
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", ErrNoCaptions
	}

	var parsed timedText
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parsing captions for %s: %w", videoID, err)
	}

	cues := make([]string, 0, len(parsed.Texts))
	for _, cue := range parsed.Texts {
		// Cue text arrives double-escaped (&amp;#39;); the XML decoder
		// removed one layer, UnescapeString removes the other.
		cue = strings.Join(strings.Fields(html.UnescapeString(cue)), " ")
		if cue != "" {
			cues = append(cues, cue)
		}
	}
	if len(cues) == 0 {
		return "", ErrNoCaptions
	}
	return strings.Join(cues, " "), nil
}
