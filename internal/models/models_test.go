package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(AllModels()...)
	require.NoError(t, err)

	return db
}

func TestBaseAssignsUUID(t *testing.T) {
	db := setupTestDB(t)

	podcast := &Podcast{
		SourceType: SourceTypeRSS,
		FeedURL:    "https://example.com/feed.xml",
		Title:      "Test Show",
	}
	require.NoError(t, db.Create(podcast).Error)
	assert.Len(t, podcast.ID, 36)
}

func TestEpisodeUniquePerPodcastGUID(t *testing.T) {
	db := setupTestDB(t)

	podcast := &Podcast{FeedURL: "https://example.com/a.xml", Title: "A"}
	require.NoError(t, db.Create(podcast).Error)
	other := &Podcast{FeedURL: "https://example.com/b.xml", Title: "B"}
	require.NoError(t, db.Create(other).Error)

	ep := &Episode{PodcastID: podcast.ID, GUID: "guid-1", Title: "One"}
	require.NoError(t, db.Create(ep).Error)

	// Same GUID under the same podcast is rejected.
	dup := &Episode{PodcastID: podcast.ID, GUID: "guid-1", Title: "Dup"}
	assert.Error(t, db.Create(dup).Error)

	// Same GUID under a different podcast is fine.
	sibling := &Episode{PodcastID: other.ID, GUID: "guid-1", Title: "Sibling"}
	assert.NoError(t, db.Create(sibling).Error)
}

func TestSubscriptionUniqueEdge(t *testing.T) {
	db := setupTestDB(t)

	user := &User{OAuthID: "oauth-1", Email: "u@example.com"}
	require.NoError(t, db.Create(user).Error)
	podcast := &Podcast{FeedURL: "https://example.com/feed.xml", Title: "Show"}
	require.NoError(t, db.Create(podcast).Error)

	sub := &UserSubscription{UserID: user.ID, PodcastID: podcast.ID}
	require.NoError(t, db.Create(sub).Error)

	dup := &UserSubscription{UserID: user.ID, PodcastID: podcast.ID}
	assert.Error(t, db.Create(dup).Error)
}

func TestStringListRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	podcast := &Podcast{FeedURL: "https://example.com/feed.xml", Title: "Show"}
	require.NoError(t, db.Create(podcast).Error)

	ep := &Episode{
		PodcastID:  podcast.ID,
		GUID:       "guid-json",
		Title:      "JSON",
		AIKeywords: StringList{"go", "testing", "podcasts"},
		AIHosts:    StringList{"Jane"},
		AIEmailContent: &EmailContent{
			PodcastType:   PodcastTypeNews,
			TeaserSummary: "A teaser that is long enough.",
			KeyTakeaways:  []string{"first takeaway"},
			StorySummaries: []StorySummary{
				{Headline: "Big News", Summary: "Something happened."},
			},
		},
	}
	require.NoError(t, db.Create(ep).Error)

	var got Episode
	require.NoError(t, db.First(&got, "id = ?", ep.ID).Error)
	assert.Equal(t, StringList{"go", "testing", "podcasts"}, got.AIKeywords)
	require.NotNil(t, got.AIEmailContent)
	assert.Equal(t, PodcastTypeNews, got.AIEmailContent.PodcastType)
	require.Len(t, got.AIEmailContent.StorySummaries, 1)
	assert.Equal(t, "Big News", got.AIEmailContent.StorySummaries[0].Headline)
}

func TestEpisodeRetryCount(t *testing.T) {
	ep := &Episode{
		TranscriptRetryCount: 1,
		MetadataRetryCount:   2,
		FileSearchRetryCount: 3,
	}
	assert.Equal(t, 1, ep.RetryCount(StageTranscript))
	assert.Equal(t, 2, ep.RetryCount(StageMetadata))
	assert.Equal(t, 3, ep.RetryCount(StageFileSearch))
	assert.Equal(t, 0, ep.RetryCount(StageDownload))
}

func TestHasTranscript(t *testing.T) {
	assert.False(t, (&Episode{}).HasTranscript())
	assert.True(t, (&Episode{TranscriptText: "hello"}).HasTranscript())
	assert.True(t, (&Episode{TranscriptPath: "/x/y_transcription.txt"}).HasTranscript())
}
