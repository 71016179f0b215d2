package users

import (
	"context"

	"github.com/podscribe/podscribe/internal/models"
)

// Repository defines user and subscription persistence operations.
type Repository interface {
	GetOrCreateByOAuth(ctx context.Context, oauthID, email, name string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateDigestPreferences(ctx context.Context, userID string, enabled bool, hour int, timezone string) error

	Subscribe(ctx context.Context, userID, podcastID string) error
	Unsubscribe(ctx context.Context, userID, podcastID string) error
	GetSubscribedPodcasts(ctx context.Context, userID string) ([]models.Podcast, error)
	IsSubscribed(ctx context.Context, userID, podcastID string) (bool, error)

	// GetUsersForEmailDigest returns users opted in to the digest whose last
	// send is unset or at least 20 hours old.
	GetUsersForEmailDigest(ctx context.Context) ([]models.User, error)
	MarkEmailDigestSent(ctx context.Context, userID string) error
}
