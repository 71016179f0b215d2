package podcasts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/podscribe/podscribe/internal/models"
)

var (
	// ErrPodcastNotFound is returned when no podcast matches the lookup.
	ErrPodcastNotFound = errors.New("podcast not found")
	// ErrDuplicateFeedURL is returned when a podcast with the same feed URL
	// already exists.
	ErrDuplicateFeedURL = errors.New("podcast with this feed URL already exists")
)

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed podcast repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePodcast(ctx context.Context, podcast *models.Podcast) error {
	if err := r.db.WithContext(ctx).Create(podcast).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateFeedURL
		}
		return fmt.Errorf("creating podcast: %w", err)
	}
	return nil
}

func (r *repository) UpdatePodcast(ctx context.Context, podcast *models.Podcast) error {
	result := r.db.WithContext(ctx).Save(podcast)
	if result.Error != nil {
		return fmt.Errorf("updating podcast %s: %w", podcast.ID, result.Error)
	}
	return nil
}

func (r *repository) GetPodcastByID(ctx context.Context, id string) (*models.Podcast, error) {
	var podcast models.Podcast
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&podcast).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPodcastNotFound
		}
		return nil, fmt.Errorf("getting podcast %s: %w", id, err)
	}
	return &podcast, nil
}

func (r *repository) GetPodcastByFeedURL(ctx context.Context, feedURL string) (*models.Podcast, error) {
	var podcast models.Podcast
	err := r.db.WithContext(ctx).Where("feed_url = ?", feedURL).First(&podcast).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPodcastNotFound
		}
		return nil, fmt.Errorf("getting podcast by feed URL: %w", err)
	}
	return &podcast, nil
}

func (r *repository) GetPodcastByDescriptionDisplayName(ctx context.Context, displayName string) (*models.Podcast, error) {
	var podcast models.Podcast
	err := r.db.WithContext(ctx).
		Where("description_index_display_name = ?", displayName).
		First(&podcast).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPodcastNotFound
		}
		return nil, fmt.Errorf("getting podcast by display name: %w", err)
	}
	return &podcast, nil
}

func (r *repository) ListPodcasts(ctx context.Context, limit int) ([]models.Podcast, error) {
	var podcasts []models.Podcast
	query := r.db.WithContext(ctx).Order("title ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&podcasts).Error; err != nil {
		return nil, fmt.Errorf("listing podcasts: %w", err)
	}
	return podcasts, nil
}

// DeletePodcast removes the podcast and, through the cascade constraint, its
// episodes.
func (r *repository) DeletePodcast(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Podcast{})
	if result.Error != nil {
		return fmt.Errorf("deleting podcast %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPodcastNotFound
	}
	return nil
}

func (r *repository) TouchLastChecked(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Podcast{}).
		Where("id = ?", id).
		Update("last_checked", at.UTC())
	if result.Error != nil {
		return fmt.Errorf("touching last_checked for podcast %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPodcastNotFound
	}
	return nil
}

// AdvanceLastNewEpisode moves last_new_episode forward, never backward. The
// guard lives in the WHERE clause so concurrent syncs cannot regress it.
func (r *repository) AdvanceLastNewEpisode(ctx context.Context, id string, published time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Podcast{}).
		Where("id = ? AND (last_new_episode IS NULL OR last_new_episode < ?)", id, published.UTC()).
		Update("last_new_episode", published.UTC())
	if result.Error != nil {
		return fmt.Errorf("advancing last_new_episode for podcast %s: %w", id, result.Error)
	}
	return nil
}

func (r *repository) GetPodcastsPendingDescriptionIndex(ctx context.Context, limit int) ([]models.Podcast, error) {
	var podcasts []models.Podcast
	query := r.db.WithContext(ctx).
		Where("description_index_status = ? AND description != ''", models.FileSearchStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&podcasts).Error; err != nil {
		return nil, fmt.Errorf("getting podcasts pending description index: %w", err)
	}
	return podcasts, nil
}

func (r *repository) MarkDescriptionIndexed(ctx context.Context, id, resourceName, displayName string) error {
	result := r.db.WithContext(ctx).Model(&models.Podcast{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"description_index_status":        models.FileSearchStatusIndexed,
			"description_index_error":         "",
			"description_index_resource_name": resourceName,
			"description_index_display_name":  displayName,
			"description_index_uploaded_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("marking description indexed for podcast %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPodcastNotFound
	}
	return nil
}

func (r *repository) MarkDescriptionIndexFailed(ctx context.Context, id, errorMsg string) error {
	result := r.db.WithContext(ctx).Model(&models.Podcast{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"description_index_status": models.FileSearchStatusFailed,
			"description_index_error":  errorMsg,
		})
	if result.Error != nil {
		return fmt.Errorf("marking description index failed for podcast %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPodcastNotFound
	}
	return nil
}
