package episodes

import (
	"context"
	"time"

	"github.com/podscribe/podscribe/internal/models"
)

// MetadataPayload carries everything the extractor writes in one call.
type MetadataPayload struct {
	Summary      string
	Keywords     []string
	Hosts        []string
	Guests       []string
	EmailContent *models.EmailContent
	MP3Artist    string
	MP3Album     string
}

// StageCounts summarizes one status track for the status command.
type StageCounts struct {
	Pending           int64
	Processing        int64
	Completed         int64
	Failed            int64
	PermanentlyFailed int64
}

// Repository is the sole custodian of episode state transitions. Every write
// commits atomically; callers never mutate episodes directly.
type Repository interface {
	// Create / read
	CreateEpisode(ctx context.Context, episode *models.Episode) error
	GetOrCreateEpisode(ctx context.Context, episode *models.Episode) (created bool, err error)
	GetEpisodeByID(ctx context.Context, id string) (*models.Episode, error)
	GetEpisodeByGUID(ctx context.Context, podcastID, guid string) (*models.Episode, error)
	GetEpisodeByFileSearchDisplayName(ctx context.Context, displayName string) (*models.Episode, error)
	ListEpisodesByPodcast(ctx context.Context, podcastID string, limit int) ([]models.Episode, error)

	// Download stage
	MarkDownloadStarted(ctx context.Context, id string) error
	MarkDownloadComplete(ctx context.Context, id, localPath string, sizeBytes int64, fileHash string) error
	MarkDownloadFailed(ctx context.Context, id, errorMsg string) error
	MarkAudioCleanedUp(ctx context.Context, id string) error

	// Transcript stage
	MarkTranscriptStarted(ctx context.Context, id string) error
	MarkTranscriptComplete(ctx context.Context, id, text string, source models.TranscriptSource) error
	MarkCaptionsIngested(ctx context.Context, id, text string) error
	MarkTranscriptFailed(ctx context.Context, id, errorMsg string) error

	// Metadata stage
	MarkMetadataStarted(ctx context.Context, id string) error
	MarkMetadataComplete(ctx context.Context, id string, payload MetadataPayload) error
	MarkMetadataFailed(ctx context.Context, id, errorMsg string) error

	// File-search stage
	MarkIndexingStarted(ctx context.Context, id string) error
	MarkIndexingComplete(ctx context.Context, id, resourceName, displayName string) error
	MarkIndexingFailed(ctx context.Context, id, errorMsg string) error

	// Retry / failure model
	ResetEpisodeForRetry(ctx context.Context, id string, stage models.Stage) error
	RecoverInterrupted(ctx context.Context) (int64, error)
	IncrementRetryCount(ctx context.Context, id string, stage models.Stage) (int, error)
	MarkPermanentlyFailed(ctx context.Context, id string, stage models.Stage, errorMsg string) error

	// Work selection, ordered published_date DESC then insertion order
	GetEpisodesPendingDownload(ctx context.Context, limit int) ([]models.Episode, error)
	GetDownloadBufferCount(ctx context.Context) (int64, error)
	GetNextForTranscription(ctx context.Context) (*models.Episode, error)
	GetEpisodesPendingMetadata(ctx context.Context, limit int) ([]models.Episode, error)
	GetEpisodesPendingIndexing(ctx context.Context, limit int) ([]models.Episode, error)
	GetEpisodesReadyForCleanup(ctx context.Context, limit int) ([]models.Episode, error)
	GetNextPendingPostProcessing(ctx context.Context) (*models.Episode, error)

	// Scoped reads for digest and chat
	GetNewEpisodesForUserSince(ctx context.Context, userID string, since time.Time, limit int) ([]models.Episode, error)

	// Reporting
	CountByStage(ctx context.Context, podcastID string) (map[models.Stage]StageCounts, error)
}
