package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList stores a []string as JSON text in a single column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for string list: %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// PodcastType classifies a show for digest rendering.
type PodcastType string

const (
	PodcastTypeNews      PodcastType = "news"
	PodcastTypeInterview PodcastType = "interview"
	PodcastTypeGeneral   PodcastType = "general"
)

// StorySummary is one news item inside a news-style digest entry.
type StorySummary struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

// EmailContent is the closed schema for AI-produced digest copy. It is
// validated at the extractor boundary so downstream readers never introspect
// missing keys.
type EmailContent struct {
	PodcastType     PodcastType    `json:"podcast_type"`
	TeaserSummary   string         `json:"teaser_summary"`
	KeyTakeaways    []string       `json:"key_takeaways"`
	HighlightMoment string         `json:"highlight_moment,omitempty"`
	StorySummaries  []StorySummary `json:"story_summaries,omitempty"`
}

// Value implements driver.Valuer.
func (c *EmailContent) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling email content: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (c *EmailContent) Scan(value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for email content: %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, c)
}

// CitationList stores chat message citations as JSON text.
type CitationList []Citation

// Citation points a chat answer at a grounded source document.
type Citation struct {
	Index      int               `json:"index"`
	SourceType string            `json:"source_type"`
	Title      string            `json:"title"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	PodcastID  string            `json:"podcast_id,omitempty"`
	EpisodeID  string            `json:"episode_id,omitempty"`
}

// Value implements driver.Valuer.
func (l CitationList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling citations: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *CitationList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for citations: %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}
