package chatsearch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/internal/services/genai"
	"github.com/podscribe/podscribe/internal/services/podcasts"
	"github.com/podscribe/podscribe/internal/services/users"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

type fakeGrounded struct {
	lastFilter string
	result     *genai.GroundedResult
	err        error
}

func (f *fakeGrounded) GenerateGrounded(_ context.Context, _, _, metadataFilter string) (*genai.GroundedResult, error) {
	f.lastFilter = metadataFilter
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fixture struct {
	svc      *Service
	grounded *fakeGrounded
	db       *gorm.DB
	user     *models.User
	podcast  *models.Podcast
	episode  *models.Episode
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	grounded := &fakeGrounded{result: &genai.GroundedResult{Text: "answer"}}
	ctx := context.Background()

	podcast := &models.Podcast{FeedURL: "https://example.com/f.xml", Title: `The "Big" Show`}
	require.NoError(t, db.Create(podcast).Error)
	episode := &models.Episode{PodcastID: podcast.ID, GUID: "g", Title: "Episode X"}
	require.NoError(t, db.Create(episode).Error)

	episodeRepo := episodes.NewRepository(db)
	require.NoError(t, episodeRepo.MarkIndexingComplete(ctx, episode.ID, "res-1", "ep_x_transcription.txt"))

	userRepo := users.NewRepository(db)
	user, err := userRepo.GetOrCreateByOAuth(ctx, "o-1", "u@example.com", "U")
	require.NoError(t, err)

	svc := NewService(grounded, episodeRepo, podcasts.NewRepository(db), userRepo, "fileSearchStores/test")
	return &fixture{svc: svc, grounded: grounded, db: db, user: user, podcast: podcast, episode: episode}
}

func TestScopePrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Episode scope wins even when everything else is set.
	scope := Scope{
		UserID:         f.user.ID,
		PodcastID:      f.podcast.ID,
		EpisodeID:      f.episode.ID,
		SubscribedOnly: true,
	}
	result := f.svc.SearchTranscripts(ctx, scope, "what happened?")
	require.Empty(t, result.Error)
	assert.Equal(t, `type="transcript" AND podcast="The \"Big\" Show" AND episode="Episode X"`, f.grounded.lastFilter)

	// Podcast scope.
	result = f.svc.SearchTranscripts(ctx, Scope{UserID: f.user.ID, PodcastID: f.podcast.ID}, "q")
	require.Empty(t, result.Error)
	assert.Equal(t, `type="transcript" AND podcast="The \"Big\" Show"`, f.grounded.lastFilter)

	// Global scope.
	result = f.svc.SearchTranscripts(ctx, Scope{UserID: f.user.ID}, "q")
	require.Empty(t, result.Error)
	assert.Equal(t, `type="transcript"`, f.grounded.lastFilter)
}

func TestSubscribedScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &models.Podcast{FeedURL: "https://example.com/o.xml", Title: "Other Show"}
	require.NoError(t, f.db.Create(other).Error)

	userRepo := users.NewRepository(f.db)
	require.NoError(t, userRepo.Subscribe(ctx, f.user.ID, other.ID))
	require.NoError(t, userRepo.Subscribe(ctx, f.user.ID, f.podcast.ID))

	result := f.svc.SearchTranscripts(ctx, Scope{UserID: f.user.ID, SubscribedOnly: true}, "q")
	require.Empty(t, result.Error)
	// Subscriptions are sorted by title.
	assert.Equal(t, `type="transcript" AND (podcast="Other Show" OR podcast="The \"Big\" Show")`, f.grounded.lastFilter)
}

func TestSubscribedScopeWithNoSubscriptions(t *testing.T) {
	f := newFixture(t)

	result := f.svc.SearchTranscripts(context.Background(), Scope{UserID: f.user.ID, SubscribedOnly: true}, "q")
	assert.Contains(t, result.Error, "no subscribed podcasts")
	assert.Empty(t, result.Citations)
}

func TestDescriptionSearchFilter(t *testing.T) {
	f := newFixture(t)

	result := f.svc.SearchPodcastDescriptions(context.Background(), Scope{UserID: f.user.ID, PodcastID: f.podcast.ID}, "q")
	require.Empty(t, result.Error)
	assert.Equal(t, `type="description" AND podcast="The \"Big\" Show"`, f.grounded.lastFilter)
}

func TestCitationExtractionDedup(t *testing.T) {
	f := newFixture(t)

	// Two chunks with the same title: only the first survives.
	f.grounded.result = &genai.GroundedResult{
		Text: "answer",
		Chunks: []genai.GroundingChunk{
			{Title: "ep_x_transcription.txt", Text: "first snippet"},
			{Title: "ep_x_transcription.txt", Text: "second snippet"},
		},
	}

	result := f.svc.SearchTranscripts(context.Background(), Scope{UserID: f.user.ID}, "q")
	require.Empty(t, result.Error)
	require.Len(t, result.Citations, 1)
	citation := result.Citations[0]
	assert.Equal(t, 1, citation.Index)
	assert.Equal(t, "transcript", citation.SourceType)
	assert.Equal(t, "first snippet", citation.Text)
	assert.Equal(t, f.episode.ID, citation.EpisodeID)
	assert.Equal(t, f.podcast.ID, citation.PodcastID)
}

func TestCitationUnresolvedTitleDropped(t *testing.T) {
	f := newFixture(t)

	f.grounded.result = &genai.GroundedResult{
		Text: "answer",
		Chunks: []genai.GroundingChunk{
			{Title: "ep_x_transcription.txt", Text: "good"},
			{Title: "unknown_document.txt", Text: "orphan"},
		},
	}

	result := f.svc.SearchTranscripts(context.Background(), Scope{UserID: f.user.ID}, "q")
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "ep_x_transcription.txt", result.Citations[0].Title)
}

func TestCitationResolvesDescriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	podcastRepo := podcasts.NewRepository(f.db)
	require.NoError(t, podcastRepo.MarkDescriptionIndexed(ctx, f.podcast.ID, "res-d", "podcast_big_description.txt"))

	f.grounded.result = &genai.GroundedResult{
		Text:   "answer",
		Chunks: []genai.GroundingChunk{{Title: "podcast_big_description.txt", Text: "about"}},
	}

	result := f.svc.SearchPodcastDescriptions(ctx, Scope{UserID: f.user.ID}, "q")
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "description", result.Citations[0].SourceType)
	assert.Equal(t, f.podcast.ID, result.Citations[0].PodcastID)
	assert.Empty(t, result.Citations[0].EpisodeID)
}

func TestSearchErrorsAreStructured(t *testing.T) {
	f := newFixture(t)
	f.grounded.err = fmt.Errorf("api returned status 503")

	result := f.svc.SearchTranscripts(context.Background(), Scope{UserID: f.user.ID}, "q")
	assert.Contains(t, result.Error, "503")
	assert.Empty(t, result.ResponseText)
	assert.NotNil(t, result.Citations)
	assert.Empty(t, result.Citations)

	// Empty queries never reach the provider.
	f.grounded.err = nil
	result = f.svc.SearchTranscripts(context.Background(), Scope{UserID: f.user.ID}, "   ")
	assert.Equal(t, "empty query", result.Error)
}

func TestToolProjections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, users.NewRepository(f.db).Subscribe(ctx, f.user.ID, f.podcast.ID))

	subs, err := f.svc.GetUserSubscriptions(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, f.podcast.Title, subs[0].Title)

	info, err := f.svc.GetPodcastInfo(ctx, f.podcast.ID)
	require.NoError(t, err)
	assert.Equal(t, f.podcast.ID, info.ID)

	epInfo, err := f.svc.GetEpisodeInfo(ctx, f.episode.ID)
	require.NoError(t, err)
	assert.Equal(t, "Episode X", epInfo.Title)
}
