package conversations

import (
	"context"
	"testing"

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

func createUser(t *testing.T, db *gorm.DB, oauthID string) *models.User {
	user := &models.User{OAuthID: oauthID, Email: oauthID + "@example.com"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestConversationLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	user := createUser(t, db, "o-1")

	conversation, err := repo.CreateConversation(ctx, user.ID, "About ep 12", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, conversation.ID)

	_, err = repo.AppendMessage(ctx, conversation.ID, models.MessageRoleUser, "who was the guest?", nil)
	require.NoError(t, err)
	_, err = repo.AppendMessage(ctx, conversation.ID, models.MessageRoleAssistant, "The guest was Jane Doe.", models.CitationList{
		{Index: 1, SourceType: "transcript", Title: "ep_12_transcription.txt"},
	})
	require.NoError(t, err)

	messages, err := repo.GetMessages(ctx, user.ID, conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.MessageRoleUser, messages[0].Role)
	require.Len(t, messages[1].Citations, 1)
	assert.Equal(t, "ep_12_transcription.txt", messages[1].Citations[0].Title)

	require.NoError(t, repo.DeleteConversation(ctx, user.ID, conversation.ID))
	_, err = repo.GetConversation(ctx, user.ID, conversation.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationOwnership(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	other := createUser(t, db, "other")

	conversation, err := repo.CreateConversation(ctx, owner.ID, "private", nil, nil)
	require.NoError(t, err)

	_, err = repo.GetConversation(ctx, other.ID, conversation.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = repo.GetMessages(ctx, other.ID, conversation.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	err = repo.DeleteConversation(ctx, other.ID, conversation.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationScope(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	user := createUser(t, db, "o-1")

	podcastID := "pod-1"
	episodeID := "ep-1"
	conversation, err := repo.CreateConversation(ctx, user.ID, "scoped", &podcastID, &episodeID)
	require.NoError(t, err)

	got, err := repo.GetConversation(ctx, user.ID, conversation.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PodcastID)
	require.NotNil(t, got.EpisodeID)
	assert.Equal(t, "pod-1", *got.PodcastID)
	assert.Equal(t, "ep-1", *got.EpisodeID)
}
