package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the opaque 36-char string identity used by every entity.
type Base struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when none was provided.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Podcast represents a subscribable source, either an RSS feed or a YouTube
// channel.
type Podcast struct {
	Base
	SourceType  SourceType `json:"source_type" gorm:"not null;default:rss"`
	FeedURL     string     `json:"feed_url" gorm:"uniqueIndex;not null"`
	Title       string     `json:"title" gorm:"not null"`
	Description string     `json:"description" gorm:"type:text"`
	ImageURL    string     `json:"image_url"`
	Author      string     `json:"author"`
	Language    string     `json:"language"`
	Category    string     `json:"category"`

	// On-disk directory holding this podcast's audio files
	LocalDirectory string `json:"local_directory"`

	LastChecked    *time.Time `json:"last_checked"`
	LastNewEpisode *time.Time `json:"last_new_episode"`

	// YouTube-only fields
	ChannelID  string `json:"channel_id,omitempty"`
	PlaylistID string `json:"playlist_id,omitempty"`
	Handle     string `json:"handle,omitempty"`

	// Description indexing into the file-search store
	DescriptionIndexStatus       FileSearchStatus `json:"description_index_status" gorm:"default:pending"`
	DescriptionIndexError        string           `json:"description_index_error"`
	DescriptionIndexResourceName string           `json:"description_index_resource_name"`
	DescriptionIndexDisplayName  string           `json:"description_index_display_name"`
	DescriptionIndexUploadedAt   *time.Time       `json:"description_index_uploaded_at"`

	Episodes []Episode `json:"episodes,omitempty" gorm:"foreignKey:PodcastID;constraint:OnDelete:CASCADE"`
}

// Episode represents one audio item belonging to a podcast, identified within
// the podcast by a GUID. Four independent status tracks (download,
// transcript, metadata, file_search) record pipeline progress.
type Episode struct {
	Base
	PodcastID  string     `json:"podcast_id" gorm:"not null;index;uniqueIndex:idx_episodes_podcast_guid"`
	GUID       string     `json:"guid" gorm:"not null;uniqueIndex:idx_episodes_podcast_guid"`
	SourceType SourceType `json:"source_type" gorm:"not null;default:podcast_episode"`

	Title           string     `json:"title" gorm:"not null"`
	Description     string     `json:"description" gorm:"type:text"`
	PublishedDate   *time.Time `json:"published_date" gorm:"index"`
	DurationSeconds *int       `json:"duration_seconds"`
	EpisodeNumber   *int       `json:"episode_number"`
	SeasonNumber    *int       `json:"season_number"`
	Explicit        *bool      `json:"explicit"`

	EnclosureURL    string `json:"enclosure_url"`
	EnclosureType   string `json:"enclosure_type"`
	EnclosureLength int64  `json:"enclosure_length"`

	// YouTube-only fields
	VideoID           string `json:"video_id,omitempty"`
	CaptionsAvailable bool   `json:"captions_available" gorm:"default:false"`
	CaptionLanguage   string `json:"caption_language,omitempty"`

	// Download track
	DownloadStatus DownloadStatus `json:"download_status" gorm:"default:pending;index"`
	DownloadError  string         `json:"download_error"`
	DownloadedAt   *time.Time     `json:"downloaded_at"`
	LocalFilePath  string         `json:"local_file_path"`
	FileSizeBytes  int64          `json:"file_size_bytes"`
	FileHash       string         `json:"file_hash"`

	// Transcript track
	TranscriptStatus     StageStatus      `json:"transcript_status" gorm:"default:pending;index"`
	TranscriptError      string           `json:"transcript_error"`
	TranscribedAt        *time.Time       `json:"transcribed_at"`
	TranscriptText       string           `json:"transcript_text" gorm:"type:text"`
	TranscriptPath       string           `json:"transcript_path"` // legacy on-disk transcripts
	TranscriptSource     TranscriptSource `json:"transcript_source"`
	TranscriptRetryCount int              `json:"transcript_retry_count" gorm:"default:0"`

	// Metadata track
	MetadataStatus     StageStatus   `json:"metadata_status" gorm:"default:pending;index"`
	MetadataError      string        `json:"metadata_error"`
	AISummary          string        `json:"ai_summary" gorm:"type:text"`
	AIKeywords         StringList    `json:"ai_keywords" gorm:"type:text"`
	AIHosts            StringList    `json:"ai_hosts" gorm:"type:text"`
	AIGuests           StringList    `json:"ai_guests" gorm:"type:text"`
	AIEmailContent     *EmailContent `json:"ai_email_content" gorm:"type:text"`
	MP3Artist          string        `json:"mp3_artist"`
	MP3Album           string        `json:"mp3_album"`
	MetadataRetryCount int           `json:"metadata_retry_count" gorm:"default:0"`

	// File-search track
	FileSearchStatus       FileSearchStatus `json:"file_search_status" gorm:"default:pending;index"`
	FileSearchError        string           `json:"file_search_error"`
	FileSearchResourceName string           `json:"file_search_resource_name"`
	FileSearchDisplayName  string           `json:"file_search_display_name"`
	FileSearchUploadedAt   *time.Time       `json:"file_search_uploaded_at"`
	FileSearchRetryCount   int              `json:"file_search_retry_count" gorm:"default:0"`
}

// User represents an account created through OAuth login.
type User struct {
	Base
	OAuthID string `json:"oauth_id" gorm:"uniqueIndex;not null"`
	Email   string `json:"email" gorm:"uniqueIndex;not null"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin" gorm:"default:false"`

	EmailDigestEnabled  bool       `json:"email_digest_enabled" gorm:"default:false"`
	EmailDigestHour     int        `json:"email_digest_hour" gorm:"default:8"`
	Timezone            string     `json:"timezone" gorm:"default:UTC"`
	LastEmailDigestSent *time.Time `json:"last_email_digest_sent"`

	Subscriptions []UserSubscription `json:"subscriptions,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Conversations []Conversation     `json:"conversations,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// UserSubscription is the many-to-many edge between users and podcasts.
// Subscription state lives only here; podcasts carry no global flag.
type UserSubscription struct {
	Base
	UserID    string `json:"user_id" gorm:"not null;uniqueIndex:idx_user_podcast"`
	PodcastID string `json:"podcast_id" gorm:"not null;uniqueIndex:idx_user_podcast"`
}

// AllModels lists every model for AutoMigrate.
func AllModels() []any {
	return []any{
		&Podcast{},
		&Episode{},
		&User{},
		&UserSubscription{},
		&Conversation{},
		&ChatMessage{},
	}
}
