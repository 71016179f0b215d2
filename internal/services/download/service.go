// Package download runs the audio acquisition stage: a bounded pool of
// workers fetching pending episodes, plus cleanup of already-processed audio.
package download

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/internal/services/podcasts"
	"github.com/podscribe/podscribe/pkg/download"
	"github.com/podscribe/podscribe/pkg/sanitize"
)

// CaptionFetcher downloads a caption track for a YouTube video.
type CaptionFetcher interface {
	FetchCaptions(ctx context.Context, videoID, language string) (string, error)
}

// Service downloads pending episode audio into the configured base directory.
type Service struct {
	episodes episodes.Repository
	podcasts podcasts.Repository
	fetcher  *download.Fetcher
	captions CaptionFetcher // nil when YouTube support is unconfigured
	audioDir string
	workers  int

	// podcast directory lookups are repeated across a batch; cache them
	mu       sync.Mutex
	dirCache map[string]string
}

// NewService creates a download service. workers bounds batch concurrency;
// captions may be nil.
func NewService(episodeRepo episodes.Repository, podcastRepo podcasts.Repository, fetcher *download.Fetcher, captions CaptionFetcher, audioDir string, workers int) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		episodes: episodeRepo,
		podcasts: podcastRepo,
		fetcher:  fetcher,
		captions: captions,
		audioDir: audioDir,
		workers:  workers,
		dirCache: make(map[string]string),
	}
}

// DownloadPending pulls up to limit pending episodes and downloads them with
// the configured number of concurrent workers. Per-episode failures are
// recorded on the episode and aggregated, never fatal to the batch.
func (s *Service) DownloadPending(ctx context.Context, limit, workers int) (*models.WorkerResult, error) {
	if workers < 1 {
		workers = s.workers
	}

	pending, err := s.episodes.GetEpisodesPendingDownload(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting pending downloads: %w", err)
	}
	if len(pending) == 0 {
		return &models.WorkerResult{}, nil
	}

	log.Printf("[INFO] Downloading %d episode(s) with %d worker(s)", len(pending), workers)

	var mu sync.Mutex
	result := &models.WorkerResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range pending {
		episode := pending[i]
		g.Go(func() error {
			err := s.DownloadOne(gctx, &episode)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", episode.Title, err))
			} else {
				result.Processed++
			}
			// Failures are per-episode; never cancel the group.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	log.Printf("[INFO] Download batch done: %d ok, %d failed", result.Processed, result.Failed)
	return result, nil
}

// DownloadOne fetches a single episode's audio and records the outcome. For
// YouTube episodes with captions the caption track replaces both the audio
// download and the transcription stage; a failed caption fetch falls back to
// the regular audio path (the availability flag can be stale upstream).
func (s *Service) DownloadOne(ctx context.Context, episode *models.Episode) error {
	if s.captions != nil && episode.SourceType == models.SourceTypeYouTubeVideo && episode.CaptionsAvailable {
		text, err := s.captions.FetchCaptions(ctx, episode.VideoID, episode.CaptionLanguage)
		if err == nil {
			log.Printf("[INFO] Ingested captions for %q (%d chars)", episode.Title, len(text))
			return s.episodes.MarkCaptionsIngested(ctx, episode.ID, text)
		}
		log.Printf("[WARN] Caption fetch failed for %q, falling back to audio: %v", episode.Title, err)
	}

	if episode.EnclosureURL == "" {
		msg := "episode has no enclosure URL"
		if err := s.episodes.MarkDownloadFailed(ctx, episode.ID, msg); err != nil {
			return err
		}
		return fmt.Errorf("%s", msg)
	}

	dir, err := s.podcastDir(ctx, episode.PodcastID)
	if err != nil {
		return err
	}

	if err := s.episodes.MarkDownloadStarted(ctx, episode.ID); err != nil {
		return err
	}

	destPath := filepath.Join(dir, EpisodeFilename(episode))
	result, err := s.fetcher.Fetch(ctx, episode.EnclosureURL, destPath)
	if err != nil {
		if markErr := s.episodes.MarkDownloadFailed(ctx, episode.ID, err.Error()); markErr != nil {
			log.Printf("[ERROR] Could not record download failure for %s: %v", episode.ID, markErr)
		}
		return err
	}

	return s.episodes.MarkDownloadComplete(ctx, episode.ID, result.Path, result.Size, result.SHA256)
}

// CleanupProcessed deletes local audio for fully-processed episodes (all four
// stages done) and clears their local_file_path. With dryRun it only reports.
func (s *Service) CleanupProcessed(ctx context.Context, limit int, dryRun bool) (*models.WorkerResult, error) {
	ready, err := s.episodes.GetEpisodesReadyForCleanup(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting episodes for cleanup: %w", err)
	}

	result := &models.WorkerResult{}
	for i := range ready {
		episode := &ready[i]
		if dryRun {
			log.Printf("[INFO] Would delete %s (%s)", episode.LocalFilePath, episode.Title)
			result.Skipped++
			continue
		}

		if err := os.Remove(episode.LocalFilePath); err != nil && !os.IsNotExist(err) {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", episode.Title, err))
			continue
		}
		if err := s.episodes.MarkAudioCleanedUp(ctx, episode.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", episode.Title, err))
			continue
		}
		result.Processed++
		log.Printf("[DEBUG] Deleted processed audio %s", episode.LocalFilePath)
	}

	if !dryRun && result.Processed > 0 {
		log.Printf("[INFO] Cleanup removed %d file(s)", result.Processed)
	}
	return result, nil
}

// podcastDir resolves (and memoizes) the audio directory for a podcast.
func (s *Service) podcastDir(ctx context.Context, podcastID string) (string, error) {
	s.mu.Lock()
	if dir, ok := s.dirCache[podcastID]; ok {
		s.mu.Unlock()
		return dir, nil
	}
	s.mu.Unlock()

	podcast, err := s.podcasts.GetPodcastByID(ctx, podcastID)
	if err != nil {
		return "", err
	}
	sub := podcast.LocalDirectory
	if sub == "" {
		sub = sanitize.Filename(podcast.Title)
	}
	dir := filepath.Join(s.audioDir, sub)

	s.mu.Lock()
	s.dirCache[podcastID] = dir
	s.mu.Unlock()
	return dir, nil
}

// EpisodeFilename builds the on-disk name: an E<number>_ prefix when the
// episode number is known, the sanitized title, and an extension derived from
// the enclosure URL then MIME type.
func EpisodeFilename(episode *models.Episode) string {
	name := sanitize.Filename(episode.Title)
	if name == "" {
		name = episode.ID
	}
	if episode.EpisodeNumber != nil {
		name = fmt.Sprintf("E%d_%s", *episode.EpisodeNumber, name)
	}
	return name + download.Extension(episode.EnclosureURL, episode.EnclosureType)
}
