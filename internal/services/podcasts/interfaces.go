package podcasts

import (
	"context"
	"time"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/pkg/feedparse"
)

// Repository defines podcast persistence operations.
type Repository interface {
	CreatePodcast(ctx context.Context, podcast *models.Podcast) error
	UpdatePodcast(ctx context.Context, podcast *models.Podcast) error
	GetPodcastByID(ctx context.Context, id string) (*models.Podcast, error)
	GetPodcastByFeedURL(ctx context.Context, feedURL string) (*models.Podcast, error)
	GetPodcastByDescriptionDisplayName(ctx context.Context, displayName string) (*models.Podcast, error)
	ListPodcasts(ctx context.Context, limit int) ([]models.Podcast, error)
	DeletePodcast(ctx context.Context, id string) error

	TouchLastChecked(ctx context.Context, id string, at time.Time) error
	AdvanceLastNewEpisode(ctx context.Context, id string, published time.Time) error

	GetPodcastsPendingDescriptionIndex(ctx context.Context, limit int) ([]models.Podcast, error)
	MarkDescriptionIndexed(ctx context.Context, id, resourceName, displayName string) error
	MarkDescriptionIndexFailed(ctx context.Context, id, errorMsg string) error
}

// FeedFetcher fetches and parses one RSS feed.
type FeedFetcher interface {
	ParseURL(ctx context.Context, feedURL string) (*feedparse.ParsedPodcast, error)
}

// SourceSyncer fetches fresh episode listings for non-RSS sources.
type SourceSyncer interface {
	SyncPodcast(ctx context.Context, podcast *models.Podcast) (*feedparse.ParsedPodcast, error)
}

// ImportResult summarizes one OPML import run.
type ImportResult struct {
	TotalOutlines int
	Added         int
	Updated       int
	Skipped       int
	Failed        int
	Errors        []string
}

// SyncResult summarizes one feed sync run.
type SyncResult struct {
	PodcastsSynced  int
	PodcastsFailed  int
	NewEpisodes     int
	ExistingSkipped int
	Errors          []string
}
