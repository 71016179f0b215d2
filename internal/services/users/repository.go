package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/podscribe/podscribe/internal/models"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidDigestHour is returned for delivery hours outside [0,23].
	ErrInvalidDigestHour = errors.New("email digest hour must be between 0 and 23")
)

// digestCooldown keeps daily digests from being re-sent when the delivery
// hour drifts across clock changes.
const digestCooldown = 20 * time.Hour

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed user repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// GetOrCreateByOAuth finds a user by OAuth identity, creating one on first
// login. Email and name are refreshed from the identity provider on every
// call.
func (r *repository) GetOrCreateByOAuth(ctx context.Context, oauthID, email, name string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("oauth_id = ?", oauthID).First(&user).Error
	if err == nil {
		if user.Email != email || user.Name != name {
			user.Email = email
			user.Name = name
			if err := r.db.WithContext(ctx).Save(&user).Error; err != nil {
				return nil, fmt.Errorf("refreshing user %s: %w", user.ID, err)
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up user by oauth id: %w", err)
	}

	user = models.User{
		OAuthID: oauthID,
		Email:   email,
		Name:    name,
	}
	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &user, nil
}

func (r *repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return &user, nil
}

func (r *repository) UpdateDigestPreferences(ctx context.Context, userID string, enabled bool, hour int, timezone string) error {
	if hour < 0 || hour > 23 {
		return ErrInvalidDigestHour
	}
	if timezone == "" {
		timezone = "UTC"
	}
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"email_digest_enabled": enabled,
			"email_digest_hour":    hour,
			"timezone":             timezone,
		})
	if result.Error != nil {
		return fmt.Errorf("updating digest preferences for user %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Subscribe is idempotent: re-subscribing to an already-subscribed podcast is
// a no-op.
func (r *repository) Subscribe(ctx context.Context, userID, podcastID string) error {
	subscribed, err := r.IsSubscribed(ctx, userID, podcastID)
	if err != nil {
		return err
	}
	if subscribed {
		return nil
	}
	sub := models.UserSubscription{UserID: userID, PodcastID: podcastID}
	if err := r.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return fmt.Errorf("subscribing user %s to podcast %s: %w", userID, podcastID, err)
	}
	return nil
}

func (r *repository) Unsubscribe(ctx context.Context, userID, podcastID string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND podcast_id = ?", userID, podcastID).
		Delete(&models.UserSubscription{})
	if result.Error != nil {
		return fmt.Errorf("unsubscribing user %s from podcast %s: %w", userID, podcastID, result.Error)
	}
	return nil
}

func (r *repository) GetSubscribedPodcasts(ctx context.Context, userID string) ([]models.Podcast, error) {
	var podcasts []models.Podcast
	err := r.db.WithContext(ctx).
		Joins("JOIN user_subscriptions ON user_subscriptions.podcast_id = podcasts.id").
		Where("user_subscriptions.user_id = ?", userID).
		Order("podcasts.title ASC").
		Find(&podcasts).Error
	if err != nil {
		return nil, fmt.Errorf("getting subscribed podcasts for user %s: %w", userID, err)
	}
	return podcasts, nil
}

func (r *repository) IsSubscribed(ctx context.Context, userID, podcastID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserSubscription{}).
		Where("user_id = ? AND podcast_id = ?", userID, podcastID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking subscription: %w", err)
	}
	return count > 0, nil
}

func (r *repository) GetUsersForEmailDigest(ctx context.Context) ([]models.User, error) {
	cutoff := time.Now().UTC().Add(-digestCooldown)
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("email_digest_enabled = ? AND (last_email_digest_sent IS NULL OR last_email_digest_sent <= ?)", true, cutoff).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("getting users for email digest: %w", err)
	}
	return users, nil
}

func (r *repository) MarkEmailDigestSent(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_email_digest_sent", time.Now().UTC())
	if result.Error != nil {
		return fmt.Errorf("marking digest sent for user %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
