package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/podscribe/podscribe/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func TestGetOrCreateByOAuth(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user, err := repo.GetOrCreateByOAuth(ctx, "oauth-1", "a@example.com", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.EmailDigestEnabled)
	assert.Equal(t, 8, user.EmailDigestHour)
	assert.Equal(t, "UTC", user.Timezone)

	// Second login refreshes profile fields, keeps identity.
	again, err := repo.GetOrCreateByOAuth(ctx, "oauth-1", "new@example.com", "Alice B")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "new@example.com", again.Email)
}

func TestSubscribeIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user, err := repo.GetOrCreateByOAuth(ctx, "o", "u@example.com", "U")
	require.NoError(t, err)
	podcast := &models.Podcast{FeedURL: "https://example.com/f.xml", Title: "F"}
	require.NoError(t, db.Create(podcast).Error)

	require.NoError(t, repo.Subscribe(ctx, user.ID, podcast.ID))
	require.NoError(t, repo.Subscribe(ctx, user.ID, podcast.ID))

	subs, err := repo.GetSubscribedPodcasts(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, podcast.ID, subs[0].ID)

	ok, err := repo.IsSubscribed(ctx, user.ID, podcast.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Unsubscribe(ctx, user.ID, podcast.ID))
	ok, err = repo.IsSubscribed(ctx, user.ID, podcast.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateDigestPreferences(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user, err := repo.GetOrCreateByOAuth(ctx, "o", "u@example.com", "U")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateDigestPreferences(ctx, user.ID, true, 7, "America/New_York"))
	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailDigestEnabled)
	assert.Equal(t, 7, got.EmailDigestHour)
	assert.Equal(t, "America/New_York", got.Timezone)

	assert.ErrorIs(t, repo.UpdateDigestPreferences(ctx, user.ID, true, 24, "UTC"), ErrInvalidDigestHour)
	assert.ErrorIs(t, repo.UpdateDigestPreferences(ctx, "missing", true, 8, "UTC"), ErrUserNotFound)
}

func TestGetUsersForEmailDigestCooldown(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	never, err := repo.GetOrCreateByOAuth(ctx, "never", "never@example.com", "Never Sent")
	require.NoError(t, err)
	recent, err := repo.GetOrCreateByOAuth(ctx, "recent", "recent@example.com", "Recently Sent")
	require.NoError(t, err)
	stale, err := repo.GetOrCreateByOAuth(ctx, "stale", "stale@example.com", "Long Ago")
	require.NoError(t, err)
	optedOut, err := repo.GetOrCreateByOAuth(ctx, "out", "out@example.com", "Opted Out")
	require.NoError(t, err)

	for _, u := range []*models.User{never, recent, stale} {
		require.NoError(t, repo.UpdateDigestPreferences(ctx, u.ID, true, 8, "UTC"))
	}

	twoHoursAgo := time.Now().UTC().Add(-2 * time.Hour)
	dayAgo := time.Now().UTC().Add(-25 * time.Hour)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", recent.ID).Update("last_email_digest_sent", twoHoursAgo).Error)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", stale.ID).Update("last_email_digest_sent", dayAgo).Error)

	eligible, err := repo.GetUsersForEmailDigest(ctx)
	require.NoError(t, err)

	ids := make(map[string]bool, len(eligible))
	for _, u := range eligible {
		ids[u.ID] = true
	}
	assert.True(t, ids[never.ID], "never-sent user is eligible")
	assert.True(t, ids[stale.ID], "user last sent 25h ago is eligible")
	assert.False(t, ids[recent.ID], "user sent 2h ago is inside the cooldown")
	assert.False(t, ids[optedOut.ID], "opted-out user is never eligible")
}

func TestMarkEmailDigestSent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	user, err := repo.GetOrCreateByOAuth(ctx, "o", "u@example.com", "U")
	require.NoError(t, err)

	require.NoError(t, repo.MarkEmailDigestSent(ctx, user.ID))
	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastEmailDigestSent)
	assert.WithinDuration(t, time.Now().UTC(), *got.LastEmailDigestSent, 5*time.Second)
}
