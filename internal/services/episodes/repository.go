package episodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/podscribe/podscribe/internal/models"
)

// Repository errors
var (
	ErrEpisodeNotFound     = errors.New("episode not found")
	ErrNoEpisodesAvailable = errors.New("no episodes available")
	ErrUnknownStage        = errors.New("unknown stage")
)

// workOrder is shared by every work-selection query: newest first, insertion
// order as the tiebreaker.
const workOrder = "published_date DESC, created_at ASC"

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed episode repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// CreateEpisode creates a new episode
func (r *repository) CreateEpisode(ctx context.Context, episode *models.Episode) error {
	if err := r.db.WithContext(ctx).Create(episode).Error; err != nil {
		return fmt.Errorf("creating episode: %w", err)
	}
	return nil
}

// GetOrCreateEpisode upserts keyed on (podcast_id, guid). Returns true when
// a new row was inserted; an existing row is left untouched.
func (r *repository) GetOrCreateEpisode(ctx context.Context, episode *models.Episode) (bool, error) {
	var existing models.Episode
	err := r.db.WithContext(ctx).
		Where("podcast_id = ? AND guid = ?", episode.PodcastID, episode.GUID).
		First(&existing).Error

	if err == nil {
		*episode = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("checking existing episode: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(episode).Error; err != nil {
		return false, fmt.Errorf("creating episode: %w", err)
	}
	return true, nil
}

// GetEpisodeByID retrieves an episode by its ID
func (r *repository) GetEpisodeByID(ctx context.Context, id string) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.WithContext(ctx).First(&episode, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, fmt.Errorf("getting episode: %w", err)
	}
	return &episode, nil
}

// GetEpisodeByGUID retrieves an episode by podcast and GUID
func (r *repository) GetEpisodeByGUID(ctx context.Context, podcastID, guid string) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.WithContext(ctx).
		Where("podcast_id = ? AND guid = ?", podcastID, guid).
		First(&episode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, fmt.Errorf("getting episode by guid: %w", err)
	}
	return &episode, nil
}

// GetEpisodeByFileSearchDisplayName resolves an indexed document back to its
// episode; used by citation extraction.
func (r *repository) GetEpisodeByFileSearchDisplayName(ctx context.Context, displayName string) (*models.Episode, error) {
	var episode models.Episode
	if err := r.db.WithContext(ctx).
		Where("file_search_display_name = ?", displayName).
		First(&episode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEpisodeNotFound
		}
		return nil, fmt.Errorf("getting episode by display name: %w", err)
	}
	return &episode, nil
}

// ListEpisodesByPodcast lists episodes for a podcast, newest first.
func (r *repository) ListEpisodesByPodcast(ctx context.Context, podcastID string, limit int) ([]models.Episode, error) {
	var eps []models.Episode
	query := r.db.WithContext(ctx).
		Where("podcast_id = ?", podcastID).
		Order(workOrder)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&eps).Error; err != nil {
		return nil, fmt.Errorf("listing episodes: %w", err)
	}
	return eps, nil
}

// updateEpisode applies updates to one episode, mapping a missing row to
// ErrEpisodeNotFound.
func (r *repository) updateEpisode(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.Episode{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating episode: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEpisodeNotFound
	}
	return nil
}

// MarkDownloadStarted flips the download track to downloading and clears any
// previous error.
func (r *repository) MarkDownloadStarted(ctx context.Context, id string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"download_status": models.DownloadStatusDownloading,
		"download_error":  "",
	})
}

// MarkDownloadComplete records the downloaded file with a server-side
// timestamp.
func (r *repository) MarkDownloadComplete(ctx context.Context, id, localPath string, sizeBytes int64, fileHash string) error {
	now := time.Now().UTC()
	return r.updateEpisode(ctx, id, map[string]any{
		"download_status": models.DownloadStatusCompleted,
		"download_error":  "",
		"downloaded_at":   &now,
		"local_file_path": localPath,
		"file_size_bytes": sizeBytes,
		"file_hash":       fileHash,
	})
}

// MarkDownloadFailed records the failure text on the download track.
func (r *repository) MarkDownloadFailed(ctx context.Context, id, errorMsg string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"download_status": models.DownloadStatusFailed,
		"download_error":  errorMsg,
	})
}

// MarkAudioCleanedUp clears the local file path after cleanup deletes the
// audio file.
func (r *repository) MarkAudioCleanedUp(ctx context.Context, id string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"local_file_path": "",
	})
}

// MarkTranscriptStarted flips the transcript track to processing.
func (r *repository) MarkTranscriptStarted(ctx context.Context, id string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"transcript_status": models.StageStatusProcessing,
		"transcript_error":  "",
	})
}

// MarkTranscriptComplete stores the transcript text and its source.
func (r *repository) MarkTranscriptComplete(ctx context.Context, id, text string, source models.TranscriptSource) error {
	now := time.Now().UTC()
	return r.updateEpisode(ctx, id, map[string]any{
		"transcript_status": models.StageStatusCompleted,
		"transcript_error":  "",
		"transcribed_at":    &now,
		"transcript_text":   text,
		"transcript_source": source,
	})
}

// MarkCaptionsIngested completes the download and transcript tracks in one
// update for a YouTube episode whose captions replaced the audio pipeline.
// No audio file exists afterwards; downstream stages read transcript_text.
func (r *repository) MarkCaptionsIngested(ctx context.Context, id, text string) error {
	now := time.Now().UTC()
	return r.updateEpisode(ctx, id, map[string]any{
		"download_status":   models.DownloadStatusCompleted,
		"download_error":    "",
		"downloaded_at":     &now,
		"transcript_status": models.StageStatusCompleted,
		"transcript_error":  "",
		"transcribed_at":    &now,
		"transcript_text":   text,
		"transcript_source": models.TranscriptSourceYouTubeCaptions,
	})
}

// MarkTranscriptFailed records the failure text on the transcript track.
func (r *repository) MarkTranscriptFailed(ctx context.Context, id, errorMsg string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"transcript_status": models.StageStatusFailed,
		"transcript_error":  errorMsg,
	})
}

// MarkMetadataStarted flips the metadata track to processing.
func (r *repository) MarkMetadataStarted(ctx context.Context, id string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"metadata_status": models.StageStatusProcessing,
		"metadata_error":  "",
	})
}

// MarkMetadataComplete writes every extractor output in one atomic update.
func (r *repository) MarkMetadataComplete(ctx context.Context, id string, payload MetadataPayload) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"metadata_status":  models.StageStatusCompleted,
		"metadata_error":   "",
		"ai_summary":       payload.Summary,
		"ai_keywords":      models.StringList(payload.Keywords),
		"ai_hosts":         models.StringList(payload.Hosts),
		"ai_guests":        models.StringList(payload.Guests),
		"ai_email_content": payload.EmailContent,
		"mp3_artist":       payload.MP3Artist,
		"mp3_album":        payload.MP3Album,
	})
}

// MarkMetadataFailed records the failure text on the metadata track.
func (r *repository) MarkMetadataFailed(ctx context.Context, id, errorMsg string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"metadata_status": models.StageStatusFailed,
		"metadata_error":  errorMsg,
	})
}

// MarkIndexingStarted flips the file-search track to processing.
func (r *repository) MarkIndexingStarted(ctx context.Context, id string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"file_search_status": models.FileSearchStatusProcessing,
		"file_search_error":  "",
	})
}

// MarkIndexingComplete records the store document for the transcript.
func (r *repository) MarkIndexingComplete(ctx context.Context, id, resourceName, displayName string) error {
	now := time.Now().UTC()
	return r.updateEpisode(ctx, id, map[string]any{
		"file_search_status":        models.FileSearchStatusIndexed,
		"file_search_error":         "",
		"file_search_resource_name": resourceName,
		"file_search_display_name":  displayName,
		"file_search_uploaded_at":   &now,
	})
}

// MarkIndexingFailed records the failure text on the file-search track.
func (r *repository) MarkIndexingFailed(ctx context.Context, id, errorMsg string) error {
	return r.updateEpisode(ctx, id, map[string]any{
		"file_search_status": models.FileSearchStatusFailed,
		"file_search_error":  errorMsg,
	})
}

// stageColumns maps a stage to its status and retry columns.
func stageColumns(stage models.Stage) (statusCol, retryCol string, pending, failed, permanent any, err error) {
	switch stage {
	case models.StageDownload:
		return "download_status", "", models.DownloadStatusPending, models.DownloadStatusFailed, nil, nil
	case models.StageTranscript:
		return "transcript_status", "transcript_retry_count",
			models.StageStatusPending, models.StageStatusFailed, models.StageStatusPermanentlyFailed, nil
	case models.StageMetadata:
		return "metadata_status", "metadata_retry_count",
			models.StageStatusPending, models.StageStatusFailed, models.StageStatusPermanentlyFailed, nil
	case models.StageFileSearch:
		return "file_search_status", "file_search_retry_count",
			models.FileSearchStatusPending, models.FileSearchStatusFailed, models.FileSearchStatusPermanentlyFailed, nil
	default:
		return "", "", nil, nil, nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
}

// ResetEpisodeForRetry flips a failed stage back to pending.
func (r *repository) ResetEpisodeForRetry(ctx context.Context, id string, stage models.Stage) error {
	statusCol, _, pending, failed, _, err := stageColumns(stage)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&models.Episode{}).
		Where("id = ?", id).
		Where(statusCol+" = ?", failed).
		Update(statusCol, pending)
	if result.Error != nil {
		return fmt.Errorf("resetting episode for retry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEpisodeNotFound
	}
	return nil
}

// RecoverInterrupted flips every in-flight stage marker back to pending.
// Only the orchestrator moves stages through their processing states, so at
// startup any such row was orphaned by a crash or kill. Returns the number
// of rows touched.
func (r *repository) RecoverInterrupted(ctx context.Context) (int64, error) {
	sweeps := []struct {
		column     string
		processing any
		pending    any
	}{
		{"download_status", models.DownloadStatusDownloading, models.DownloadStatusPending},
		{"transcript_status", models.StageStatusProcessing, models.StageStatusPending},
		{"metadata_status", models.StageStatusProcessing, models.StageStatusPending},
		{"file_search_status", models.FileSearchStatusProcessing, models.FileSearchStatusPending},
	}

	var total int64
	for _, sweep := range sweeps {
		result := r.db.WithContext(ctx).
			Model(&models.Episode{}).
			Where(sweep.column+" = ?", sweep.processing).
			Update(sweep.column, sweep.pending)
		if result.Error != nil {
			return total, fmt.Errorf("recovering interrupted %s rows: %w", sweep.column, result.Error)
		}
		total += result.RowsAffected
	}
	return total, nil
}

// IncrementRetryCount bumps the stage's retry counter and returns the new
// value.
func (r *repository) IncrementRetryCount(ctx context.Context, id string, stage models.Stage) (int, error) {
	_, retryCol, _, _, _, err := stageColumns(stage)
	if err != nil {
		return 0, err
	}
	if retryCol == "" {
		return 0, fmt.Errorf("%w: stage %s has no retry counter", ErrUnknownStage, stage)
	}

	var count int
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Episode{}).
			Where("id = ?", id).
			Update(retryCol, gorm.Expr(retryCol+" + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEpisodeNotFound
		}
		return tx.Model(&models.Episode{}).
			Select(retryCol).
			Where("id = ?", id).
			Scan(&count).Error
	})
	if err != nil {
		if errors.Is(err, ErrEpisodeNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("incrementing retry count: %w", err)
	}
	return count, nil
}

// MarkPermanentlyFailed is terminal: the stage is never re-attempted
// automatically.
func (r *repository) MarkPermanentlyFailed(ctx context.Context, id string, stage models.Stage, errorMsg string) error {
	statusCol, _, _, _, permanent, err := stageColumns(stage)
	if err != nil {
		return err
	}
	if permanent == nil {
		return fmt.Errorf("%w: stage %s has no permanent failure state", ErrUnknownStage, stage)
	}

	errorCol := statusCol[:len(statusCol)-len("_status")] + "_error"
	return r.updateEpisode(ctx, id, map[string]any{
		statusCol: permanent,
		errorCol:  errorMsg,
	})
}

// GetEpisodesPendingDownload returns episodes awaiting audio acquisition.
func (r *repository) GetEpisodesPendingDownload(ctx context.Context, limit int) ([]models.Episode, error) {
	var eps []models.Episode
	err := r.db.WithContext(ctx).
		Where("download_status = ?", models.DownloadStatusPending).
		Order(workOrder).
		Limit(limit).
		Find(&eps).Error
	if err != nil {
		return nil, fmt.Errorf("getting episodes pending download: %w", err)
	}
	return eps, nil
}

// GetDownloadBufferCount counts episodes downloaded but not yet transcribed.
func (r *repository) GetDownloadBufferCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Episode{}).
		Where("download_status = ? AND transcript_status = ?",
			models.DownloadStatusCompleted, models.StageStatusPending).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting download buffer: %w", err)
	}
	return count, nil
}

// GetNextForTranscription returns the newest downloaded episode with a
// pending transcript, or ErrNoEpisodesAvailable.
func (r *repository) GetNextForTranscription(ctx context.Context) (*models.Episode, error) {
	var episode models.Episode
	err := r.db.WithContext(ctx).
		Where("download_status = ? AND transcript_status = ?",
			models.DownloadStatusCompleted, models.StageStatusPending).
		Order(workOrder).
		First(&episode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoEpisodesAvailable
		}
		return nil, fmt.Errorf("getting next for transcription: %w", err)
	}
	return &episode, nil
}

// GetEpisodesPendingMetadata returns transcribed episodes awaiting metadata
// extraction.
func (r *repository) GetEpisodesPendingMetadata(ctx context.Context, limit int) ([]models.Episode, error) {
	var eps []models.Episode
	err := r.db.WithContext(ctx).
		Where("transcript_status = ? AND metadata_status = ?",
			models.StageStatusCompleted, models.StageStatusPending).
		Order(workOrder).
		Limit(limit).
		Find(&eps).Error
	if err != nil {
		return nil, fmt.Errorf("getting episodes pending metadata: %w", err)
	}
	return eps, nil
}

// GetEpisodesPendingIndexing returns episodes with metadata done and indexing
// pending. The metadata precondition keeps invariant "indexed implies
// metadata completed" intact.
func (r *repository) GetEpisodesPendingIndexing(ctx context.Context, limit int) ([]models.Episode, error) {
	var eps []models.Episode
	err := r.db.WithContext(ctx).
		Where("metadata_status = ? AND file_search_status = ?",
			models.StageStatusCompleted, models.FileSearchStatusPending).
		Order(workOrder).
		Limit(limit).
		Find(&eps).Error
	if err != nil {
		return nil, fmt.Errorf("getting episodes pending indexing: %w", err)
	}
	return eps, nil
}

// GetEpisodesReadyForCleanup returns fully processed episodes whose audio
// file still exists on disk.
func (r *repository) GetEpisodesReadyForCleanup(ctx context.Context, limit int) ([]models.Episode, error) {
	var eps []models.Episode
	err := r.db.WithContext(ctx).
		Where("transcript_status = ? AND metadata_status = ? AND file_search_status = ?",
			models.StageStatusCompleted, models.StageStatusCompleted, models.FileSearchStatusIndexed).
		Where("local_file_path != ''").
		Order(workOrder).
		Limit(limit).
		Find(&eps).Error
	if err != nil {
		return nil, fmt.Errorf("getting episodes ready for cleanup: %w", err)
	}
	return eps, nil
}

// GetNextPendingPostProcessing returns one transcribed episode whose
// metadata or indexing chain has not finished, or ErrNoEpisodesAvailable.
func (r *repository) GetNextPendingPostProcessing(ctx context.Context) (*models.Episode, error) {
	var episode models.Episode
	err := r.db.WithContext(ctx).
		Where("transcript_status = ?", models.StageStatusCompleted).
		Where("metadata_status = ? OR file_search_status = ?",
			models.StageStatusPending, models.FileSearchStatusPending).
		Order(workOrder).
		First(&episode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoEpisodesAvailable
		}
		return nil, fmt.Errorf("getting next pending post-processing: %w", err)
	}
	return &episode, nil
}

// GetNewEpisodesForUserSince returns enriched episodes in the user's
// subscribed podcasts published after the given time.
func (r *repository) GetNewEpisodesForUserSince(ctx context.Context, userID string, since time.Time, limit int) ([]models.Episode, error) {
	var eps []models.Episode
	err := r.db.WithContext(ctx).
		Joins("JOIN user_subscriptions ON user_subscriptions.podcast_id = episodes.podcast_id").
		Where("user_subscriptions.user_id = ?", userID).
		Where("episodes.metadata_status = ?", models.StageStatusCompleted).
		Where("episodes.published_date > ?", since).
		Order("episodes.published_date DESC, episodes.created_at ASC").
		Limit(limit).
		Find(&eps).Error
	if err != nil {
		return nil, fmt.Errorf("getting new episodes for user: %w", err)
	}
	return eps, nil
}

// CountByStage tallies each status track, optionally scoped to one podcast.
func (r *repository) CountByStage(ctx context.Context, podcastID string) (map[models.Stage]StageCounts, error) {
	type row struct {
		Status string
		N      int64
	}

	counts := make(map[models.Stage]StageCounts)
	stages := []struct {
		stage  models.Stage
		column string
	}{
		{models.StageDownload, "download_status"},
		{models.StageTranscript, "transcript_status"},
		{models.StageMetadata, "metadata_status"},
		{models.StageFileSearch, "file_search_status"},
	}

	for _, s := range stages {
		var rows []row
		query := r.db.WithContext(ctx).
			Model(&models.Episode{}).
			Select(s.column + " AS status, COUNT(*) AS n").
			Group(s.column)
		if podcastID != "" {
			query = query.Where("podcast_id = ?", podcastID)
		}
		if err := query.Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("counting %s statuses: %w", s.stage, err)
		}

		var sc StageCounts
		for _, r := range rows {
			switch r.Status {
			case "pending":
				sc.Pending = r.N
			case "downloading", "processing":
				sc.Processing = r.N
			case "completed", "indexed":
				sc.Completed = r.N
			case "failed":
				sc.Failed = r.N
			case "permanently_failed":
				sc.PermanentlyFailed = r.N
			}
		}
		counts[s.stage] = sc
	}

	return counts, nil
}
