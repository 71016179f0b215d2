package models

// SourceType distinguishes RSS podcasts from YouTube channels, and feed
// episodes from videos.
type SourceType string

const (
	SourceTypeRSS            SourceType = "rss"
	SourceTypeYouTube        SourceType = "youtube"
	SourceTypePodcastEpisode SourceType = "podcast_episode"
	SourceTypeYouTubeVideo   SourceType = "youtube_video"
)

// DownloadStatus tracks audio acquisition.
type DownloadStatus string

const (
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
)

// StageStatus tracks the transcript and metadata stages.
type StageStatus string

const (
	StageStatusPending           StageStatus = "pending"
	StageStatusProcessing        StageStatus = "processing"
	StageStatusCompleted         StageStatus = "completed"
	StageStatusFailed            StageStatus = "failed"
	StageStatusPermanentlyFailed StageStatus = "permanently_failed"
)

// FileSearchStatus tracks semantic indexing; terminal success is "indexed".
type FileSearchStatus string

const (
	FileSearchStatusPending           FileSearchStatus = "pending"
	FileSearchStatusProcessing        FileSearchStatus = "processing"
	FileSearchStatusIndexed           FileSearchStatus = "indexed"
	FileSearchStatusFailed            FileSearchStatus = "failed"
	FileSearchStatusPermanentlyFailed FileSearchStatus = "permanently_failed"
)

// TranscriptSource records where a transcript came from.
type TranscriptSource string

const (
	TranscriptSourceModel           TranscriptSource = "model"
	TranscriptSourceYouTubeCaptions TranscriptSource = "youtube_captions"
)

// Stage names one of the four independent status tracks on an Episode.
type Stage string

const (
	StageDownload   Stage = "download"
	StageTranscript Stage = "transcript"
	StageMetadata   Stage = "metadata"
	StageFileSearch Stage = "file_search"
)

// RetryCount returns the episode's retry counter for the given stage.
func (e *Episode) RetryCount(stage Stage) int {
	switch stage {
	case StageTranscript:
		return e.TranscriptRetryCount
	case StageMetadata:
		return e.MetadataRetryCount
	case StageFileSearch:
		return e.FileSearchRetryCount
	default:
		return 0
	}
}

// HasTranscript reports whether a transcript is available inline or as a
// legacy on-disk file.
func (e *Episode) HasTranscript() bool {
	return e.TranscriptText != "" || e.TranscriptPath != ""
}
