package podcasts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/pkg/feedparse"
	"github.com/podscribe/podscribe/pkg/opml"
	"github.com/podscribe/podscribe/pkg/sanitize"
)

// Service coordinates podcast subscription management: add-by-URL, OPML
// import, and periodic feed sync.
type Service struct {
	repo     Repository
	episodes episodes.Repository
	fetcher  FeedFetcher
	youtube  SourceSyncer // nil when YouTube support is unconfigured
}

// NewService creates a podcast service. youtube may be nil.
func NewService(repo Repository, episodeRepo episodes.Repository, fetcher FeedFetcher, youtube SourceSyncer) *Service {
	return &Service{
		repo:     repo,
		episodes: episodeRepo,
		fetcher:  fetcher,
		youtube:  youtube,
	}
}

// AddByURL fetches a feed and creates the podcast plus its episodes. Adding
// an already-known feed URL returns the existing podcast unchanged.
func (s *Service) AddByURL(ctx context.Context, feedURL string) (*models.Podcast, bool, error) {
	normalized, err := opml.NormalizeFeedURL(feedURL)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetPodcastByFeedURL(ctx, normalized)
	if err == nil {
		log.Printf("[INFO] Podcast already exists for %s: %s", normalized, existing.Title)
		return existing, false, nil
	}
	if !errors.Is(err, ErrPodcastNotFound) {
		return nil, false, err
	}

	parsed, err := s.fetcher.ParseURL(ctx, normalized)
	if err != nil {
		return nil, false, fmt.Errorf("fetching feed: %w", err)
	}

	podcast := podcastFromParsed(parsed)
	if err := s.repo.CreatePodcast(ctx, podcast); err != nil {
		return nil, false, err
	}

	added, _, err := s.upsertEpisodes(ctx, podcast, parsed.Episodes)
	if err != nil {
		return nil, false, err
	}
	log.Printf("[INFO] Added podcast %q with %d episode(s)", podcast.Title, added)
	return podcast, true, nil
}

// ImportOPML upserts every feed found in an OPML document. With dryRun the
// document is parsed and reported but nothing is written. With updateExisting
// known feeds get their stored title and category refreshed from the outline.
func (s *Service) ImportOPML(ctx context.Context, data []byte, dryRun, updateExisting bool) (*ImportResult, error) {
	parsed, err := opml.Parse(data)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{TotalOutlines: parsed.TotalOutlines}
	log.Printf("[INFO] OPML: %d outline(s), %d feed(s), %d without URL, %d bad scheme",
		parsed.TotalOutlines, len(parsed.Feeds), parsed.SkippedNoURL, parsed.SkippedScheme)

	if dryRun {
		for _, feed := range parsed.Feeds {
			log.Printf("[INFO] Would import: %s (%s)", feed.Title, feed.FeedURL)
		}
		return result, nil
	}

	for _, feed := range parsed.Feeds {
		existing, err := s.repo.GetPodcastByFeedURL(ctx, feed.FeedURL)
		switch {
		case err == nil:
			if updateExisting {
				if feed.Title != "" {
					existing.Title = feed.Title
				}
				if feed.Category != "" {
					existing.Category = feed.Category
				}
				if err := s.repo.UpdatePodcast(ctx, existing); err != nil {
					result.Failed++
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", feed.FeedURL, err))
					continue
				}
				result.Updated++
			} else {
				result.Skipped++
			}
		case errors.Is(err, ErrPodcastNotFound):
			podcast := &models.Podcast{
				SourceType:     models.SourceTypeRSS,
				FeedURL:        feed.FeedURL,
				Title:          feed.Title,
				Category:       feed.Category,
				LocalDirectory: sanitize.Filename(feed.Title),
			}
			if podcast.Title == "" {
				podcast.Title = feed.FeedURL
			}
			if err := s.repo.CreatePodcast(ctx, podcast); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", feed.FeedURL, err))
				continue
			}
			result.Added++
		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", feed.FeedURL, err))
		}
	}

	return result, nil
}

// SyncAll refreshes every podcast. Per-podcast failures are collected, never
// fatal.
func (s *Service) SyncAll(ctx context.Context) (*SyncResult, error) {
	podcasts, err := s.repo.ListPodcasts(ctx, 0)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	for i := range podcasts {
		sub, err := s.SyncOne(ctx, &podcasts[i])
		if err != nil {
			result.PodcastsFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", podcasts[i].Title, err))
			log.Printf("[WARN] Sync failed for %q: %v", podcasts[i].Title, err)
			continue
		}
		result.PodcastsSynced++
		result.NewEpisodes += sub.NewEpisodes
		result.ExistingSkipped += sub.ExistingSkipped
	}

	log.Printf("[INFO] Sync complete: %d synced, %d failed, %d new episode(s)",
		result.PodcastsSynced, result.PodcastsFailed, result.NewEpisodes)
	return result, nil
}

// SyncByID refreshes a single podcast.
func (s *Service) SyncByID(ctx context.Context, podcastID string) (*SyncResult, error) {
	podcast, err := s.repo.GetPodcastByID(ctx, podcastID)
	if err != nil {
		return nil, err
	}
	return s.SyncOne(ctx, podcast)
}

// SyncOne fetches the podcast's source, upserts episodes, and updates
// last_checked and last_new_episode.
func (s *Service) SyncOne(ctx context.Context, podcast *models.Podcast) (*SyncResult, error) {
	var parsed *feedparse.ParsedPodcast
	var err error

	switch podcast.SourceType {
	case models.SourceTypeYouTube:
		if s.youtube == nil {
			return nil, fmt.Errorf("youtube sync unavailable for podcast %s: no API client configured", podcast.ID)
		}
		parsed, err = s.youtube.SyncPodcast(ctx, podcast)
	default:
		parsed, err = s.fetcher.ParseURL(ctx, podcast.FeedURL)
	}
	if err != nil {
		return nil, err
	}

	refreshPodcastFields(podcast, parsed)
	if err := s.repo.UpdatePodcast(ctx, podcast); err != nil {
		return nil, err
	}

	added, skipped, err := s.upsertEpisodes(ctx, podcast, parsed.Episodes)
	if err != nil {
		return nil, err
	}

	if err := s.repo.TouchLastChecked(ctx, podcast.ID, time.Now()); err != nil {
		return nil, err
	}

	return &SyncResult{
		PodcastsSynced:  1,
		NewEpisodes:     added,
		ExistingSkipped: skipped,
	}, nil
}

// Delete removes a podcast and all of its episodes.
func (s *Service) Delete(ctx context.Context, podcastID string) error {
	podcast, err := s.repo.GetPodcastByID(ctx, podcastID)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePodcast(ctx, podcastID); err != nil {
		return err
	}
	log.Printf("[INFO] Deleted podcast %q (%s)", podcast.Title, podcastID)
	return nil
}

// upsertEpisodes inserts unknown episodes and advances last_new_episode for
// each newly discovered one.
func (s *Service) upsertEpisodes(ctx context.Context, podcast *models.Podcast, parsed []feedparse.ParsedEpisode) (added, skipped int, err error) {
	sourceType := models.SourceTypePodcastEpisode
	if podcast.SourceType == models.SourceTypeYouTube {
		sourceType = models.SourceTypeYouTubeVideo
	}

	for _, pe := range parsed {
		episode := &models.Episode{
			PodcastID:       podcast.ID,
			GUID:            pe.GUID,
			SourceType:      sourceType,
			Title:           pe.Title,
			Description:     pe.Description,
			PublishedDate:   pe.PublishedDate,
			DurationSeconds: pe.DurationSeconds,
			EpisodeNumber:   pe.EpisodeNumber,
			SeasonNumber:    pe.SeasonNumber,
			Explicit:        pe.Explicit,
			EnclosureURL:    pe.Enclosure.URL,
			EnclosureType:   pe.Enclosure.Type,
			EnclosureLength: pe.Enclosure.Length,

			VideoID:           pe.VideoID,
			CaptionsAvailable: pe.CaptionsAvailable,
			CaptionLanguage:   pe.CaptionLanguage,
		}

		created, err := s.episodes.GetOrCreateEpisode(ctx, episode)
		if err != nil {
			return added, skipped, fmt.Errorf("upserting episode %q: %w", pe.GUID, err)
		}
		if !created {
			skipped++
			continue
		}
		added++

		if pe.PublishedDate != nil {
			if err := s.repo.AdvanceLastNewEpisode(ctx, podcast.ID, *pe.PublishedDate); err != nil {
				log.Printf("[WARN] Could not advance last_new_episode for %s: %v", podcast.ID, err)
			}
		}
	}
	return added, skipped, nil
}

func podcastFromParsed(parsed *feedparse.ParsedPodcast) *models.Podcast {
	title := parsed.Title
	if title == "" {
		title = parsed.FeedURL
	}
	return &models.Podcast{
		SourceType:     models.SourceTypeRSS,
		FeedURL:        parsed.FeedURL,
		Title:          title,
		Description:    parsed.Description,
		ImageURL:       parsed.ImageURL,
		Author:         parsed.Author,
		Language:       parsed.Language,
		LocalDirectory: sanitize.Filename(title),
	}
}

// refreshPodcastFields copies non-empty feed-level fields onto the stored
// podcast. The feed wins over stale data but never blanks a field.
func refreshPodcastFields(podcast *models.Podcast, parsed *feedparse.ParsedPodcast) {
	if parsed.Title != "" {
		podcast.Title = parsed.Title
	}
	if parsed.Description != "" {
		podcast.Description = parsed.Description
	}
	if parsed.ImageURL != "" {
		podcast.ImageURL = parsed.ImageURL
	}
	if parsed.Author != "" {
		podcast.Author = parsed.Author
	}
	if parsed.Language != "" {
		podcast.Language = parsed.Language
	}
	if podcast.LocalDirectory == "" {
		podcast.LocalDirectory = sanitize.Filename(podcast.Title)
	}
}
