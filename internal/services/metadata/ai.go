package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/podscribe/podscribe/internal/models"
)

// aiMetadata is the closed schema the model must return. Validation happens
// at this boundary; downstream readers never introspect missing keys.
type aiMetadata struct {
	Summary       string           `json:"summary"`
	Keywords      []string         `json:"keywords"`
	Hosts         []string         `json:"hosts"`
	CoHosts       []string         `json:"co_hosts"`
	Guests        []string         `json:"guests"`
	EpisodeNumber *int             `json:"episode_number"`
	Date          string           `json:"date"`
	EmailContent  *aiEmailContent  `json:"email_content"`
}

type aiEmailContent struct {
	PodcastType     string            `json:"podcast_type"`
	TeaserSummary   string            `json:"teaser_summary"`
	KeyTakeaways    []string          `json:"key_takeaways"`
	HighlightMoment string            `json:"highlight_moment"`
	StorySummaries  []aiStorySummary  `json:"story_summaries"`
}

type aiStorySummary struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

const systemPrompt = `You are a podcast metadata analyst. Given an episode transcript and its
filename, return a single JSON object with these fields:
  summary          string, at least 100 characters
  keywords         array of 5 to 10 short topic strings
  hosts            array with at least one host name
  co_hosts         array, possibly empty
  guests           array, possibly empty
  episode_number   integer or null
  date             "YYYY-MM-DD" or null, only if stated in the transcript
  email_content    object:
    podcast_type      one of "news", "interview", "general"
    teaser_summary    20 to 300 characters
    key_takeaways     array with at least one entry
    highlight_moment  string, optional
    story_summaries   array of {headline, summary}, news episodes only
Return only the JSON object, no prose.`

func buildPrompt(transcript, filename string) string {
	return fmt.Sprintf("Filename: %s\n\nTranscript:\n%s", filename, transcript)
}

// parseAIMetadata decodes and validates the model's response. The model
// sometimes wraps JSON in a markdown fence; strip it before decoding.
func parseAIMetadata(raw string) (*aiMetadata, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var meta aiMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata response: %w", err)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *aiMetadata) validate() error {
	if len(m.Summary) < 100 {
		return fmt.Errorf("invalid metadata: summary is %d chars, need at least 100", len(m.Summary))
	}
	if len(m.Keywords) < 5 || len(m.Keywords) > 10 {
		return fmt.Errorf("invalid metadata: got %d keywords, need 5-10", len(m.Keywords))
	}
	if len(m.Hosts) == 0 {
		return fmt.Errorf("invalid metadata: no hosts returned")
	}

	// A malformed or implausible date is dropped, not fatal.
	if m.Date != "" {
		if _, err := sanitizeDate(m.Date); err != nil {
			m.Date = ""
		}
	}

	if m.EmailContent != nil {
		if err := m.EmailContent.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e *aiEmailContent) validate() error {
	switch models.PodcastType(e.PodcastType) {
	case models.PodcastTypeNews, models.PodcastTypeInterview, models.PodcastTypeGeneral:
	case "":
		e.PodcastType = string(models.PodcastTypeGeneral)
	default:
		return fmt.Errorf("invalid metadata: unknown podcast_type %q", e.PodcastType)
	}

	if n := len(e.TeaserSummary); n < 20 || n > 300 {
		return fmt.Errorf("invalid metadata: teaser_summary is %d chars, need 20-300", n)
	}
	if len(e.KeyTakeaways) == 0 {
		return fmt.Errorf("invalid metadata: key_takeaways is empty")
	}

	// Story summaries only make sense for news episodes.
	if e.PodcastType != string(models.PodcastTypeNews) {
		e.StorySummaries = nil
	}
	return nil
}

// sanitizeDate accepts YYYY-MM-DD dates from 2000 onward. Transcription noise
// regularly produces nonsense dates; reject rather than store them.
func sanitizeDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q", s)
	}
	if t.Year() < 2000 {
		return time.Time{}, fmt.Errorf("implausible date %q", s)
	}
	return t, nil
}

// emailContentModel converts the validated AI payload to the stored form.
func (m *aiMetadata) emailContentModel() *models.EmailContent {
	if m.EmailContent == nil {
		return nil
	}
	ec := &models.EmailContent{
		PodcastType:     models.PodcastType(m.EmailContent.PodcastType),
		TeaserSummary:   m.EmailContent.TeaserSummary,
		KeyTakeaways:    m.EmailContent.KeyTakeaways,
		HighlightMoment: m.EmailContent.HighlightMoment,
	}
	for _, story := range m.EmailContent.StorySummaries {
		ec.StorySummaries = append(ec.StorySummaries, models.StorySummary{
			Headline: story.Headline,
			Summary:  story.Summary,
		})
	}
	return ec
}
