package digest

import (
	"fmt"
	"html"
	"strings"

	"github.com/podscribe/podscribe/internal/models"
)

const (
	maxTakeaways        = 5
	maxStories          = 7
	fallbackTeaserChars = 300
)

// renderHTML builds the HTML body: one section per podcast, one block per
// episode. All user-controlled text is escaped.
func renderHTML(groups []podcastGroup, webBaseURL string) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	b.WriteString("<h1>Your Daily Podcast Digest</h1>\n")

	for _, group := range groups {
		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(group.Podcast.Title))
		for i := range group.Episodes {
			episode := &group.Episodes[i]
			b.WriteString("<div>\n")

			title := html.EscapeString(episode.Title)
			if link := episodeLink(episode, webBaseURL); link != "" {
				fmt.Fprintf(&b, "<h3><a href=\"%s\">%s</a></h3>\n", html.EscapeString(link), title)
			} else {
				fmt.Fprintf(&b, "<h3>%s</h3>\n", title)
			}

			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(teaser(episode)))

			content := episode.AIEmailContent
			if content != nil && len(content.KeyTakeaways) > 0 {
				b.WriteString("<ul>\n")
				for _, takeaway := range capList(content.KeyTakeaways, maxTakeaways) {
					fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(takeaway))
				}
				b.WriteString("</ul>\n")
			}
			if content != nil && content.HighlightMoment != "" {
				fmt.Fprintf(&b, "<p><em>Highlight: %s</em></p>\n", html.EscapeString(content.HighlightMoment))
			}
			if content != nil && content.PodcastType == models.PodcastTypeNews && len(content.StorySummaries) > 0 {
				b.WriteString("<h4>Top stories</h4>\n<ul>\n")
				for _, story := range capStories(content.StorySummaries, maxStories) {
					fmt.Fprintf(&b, "<li><strong>%s</strong> %s</li>\n",
						html.EscapeString(story.Headline), html.EscapeString(story.Summary))
				}
				b.WriteString("</ul>\n")
			}

			b.WriteString("</div>\n")
		}
	}

	b.WriteString("</body></html>\n")
	return b.String()
}

// renderText builds the plain-text alternative body.
func renderText(groups []podcastGroup, webBaseURL string) string {
	var b strings.Builder
	b.WriteString("Your Daily Podcast Digest\n\n")

	for _, group := range groups {
		fmt.Fprintf(&b, "== %s ==\n\n", group.Podcast.Title)
		for i := range group.Episodes {
			episode := &group.Episodes[i]
			fmt.Fprintf(&b, "%s\n", episode.Title)
			if link := episodeLink(episode, webBaseURL); link != "" {
				fmt.Fprintf(&b, "%s\n", link)
			}
			fmt.Fprintf(&b, "%s\n", teaser(episode))

			content := episode.AIEmailContent
			if content != nil {
				for _, takeaway := range capList(content.KeyTakeaways, maxTakeaways) {
					fmt.Fprintf(&b, "  - %s\n", takeaway)
				}
				if content.HighlightMoment != "" {
					fmt.Fprintf(&b, "  Highlight: %s\n", content.HighlightMoment)
				}
				if content.PodcastType == models.PodcastTypeNews {
					for _, story := range capStories(content.StorySummaries, maxStories) {
						fmt.Fprintf(&b, "  * %s: %s\n", story.Headline, story.Summary)
					}
				}
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// teaser picks the digest summary line: AI email copy when present, otherwise
// the episode summary truncated to 300 characters.
func teaser(episode *models.Episode) string {
	if episode.AIEmailContent != nil && episode.AIEmailContent.TeaserSummary != "" {
		return episode.AIEmailContent.TeaserSummary
	}
	return truncate(episode.AISummary, fallbackTeaserChars)
}

// episodeLink prefers the configured web frontend, falling back to the
// enclosure URL restricted to http/https.
func episodeLink(episode *models.Episode, webBaseURL string) string {
	if webBaseURL != "" {
		return strings.TrimRight(webBaseURL, "/") + "/episodes/" + episode.ID
	}
	url := episode.EnclosureURL
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return ""
}

func capList(list []string, max int) []string {
	if len(list) > max {
		return list[:max]
	}
	return list
}

func capStories(list []models.StorySummary, max int) []models.StorySummary {
	if len(list) > max {
		return list[:max]
	}
	return list
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
