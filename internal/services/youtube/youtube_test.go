package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/pkg/config"
)

const channelJSON = `{"items":[{
	"id":"UC123",
	"snippet":{"title":"My Channel","description":"About <b>tech</b>","thumbnails":{"high":{"url":"https://img.example/ch.jpg"}}},
	"contentDetails":{"relatedPlaylists":{"uploads":"UU123"}}
}]}`

const playlistJSON = `{"items":[
	{"contentDetails":{"videoId":"vid1"}},
	{"contentDetails":{"videoId":"vid2"}}
]}`

const videosJSON = `{"items":[
	{"id":"vid1",
	 "snippet":{"title":"First Video","description":"d1","publishedAt":"2026-08-20T10:00:00Z","defaultAudioLanguage":"en-US"},
	 "contentDetails":{"duration":"PT1H2M3S","caption":"true"}},
	{"id":"vid2",
	 "snippet":{"title":"Second Video","description":"d2","publishedAt":"2026-08-19T09:00:00Z"},
	 "contentDetails":{"duration":"PT45S","caption":"false"}}
]}`

// newFakeAPI serves canned Data API responses and records request queries.
func newFakeAPI(t *testing.T) (*Client, *[]string) {
	t.Helper()
	var queries []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Path+"?"+r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/channels"):
			fmt.Fprint(w, channelJSON)
		case strings.HasSuffix(r.URL.Path, "/playlistItems"):
			fmt.Fprint(w, playlistJSON)
		case strings.HasSuffix(r.URL.Path, "/videos"):
			fmt.Fprint(w, videosJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	svc, err := yt.NewService(context.Background(),
		option.WithAPIKey("test-key"),
		option.WithEndpoint(server.URL))
	require.NoError(t, err)

	return newClient(svc, config.YouTube{CaptionLanguage: "en"}), &queries
}

func TestSyncPodcastFetchesUploads(t *testing.T) {
	client, _ := newFakeAPI(t)
	podcast := &models.Podcast{
		SourceType: models.SourceTypeYouTube,
		FeedURL:    "https://www.youtube.com/@mychannel",
		ChannelID:  "UC123",
	}

	parsed, err := client.SyncPodcast(context.Background(), podcast)
	require.NoError(t, err)

	assert.Equal(t, "My Channel", parsed.Title)
	assert.Equal(t, "About tech", parsed.Description, "channel description has HTML stripped")
	assert.Equal(t, "https://img.example/ch.jpg", parsed.ImageURL)
	assert.Equal(t, "UU123", podcast.PlaylistID, "uploads playlist recorded on the podcast")

	require.Len(t, parsed.Episodes, 2)
	first := parsed.Episodes[0]
	assert.Equal(t, "vid1", first.GUID)
	assert.Equal(t, "vid1", first.VideoID)
	assert.Equal(t, "First Video", first.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", first.Enclosure.URL)
	require.NotNil(t, first.DurationSeconds)
	assert.Equal(t, 3723, *first.DurationSeconds)
	assert.True(t, first.CaptionsAvailable)
	assert.Equal(t, "en-US", first.CaptionLanguage)

	second := parsed.Episodes[1]
	assert.False(t, second.CaptionsAvailable)
	assert.Empty(t, second.CaptionLanguage)
	require.NotNil(t, second.DurationSeconds)
	assert.Equal(t, 45, *second.DurationSeconds)
}

func TestSyncPodcastResolvesHandle(t *testing.T) {
	client, queries := newFakeAPI(t)
	podcast := &models.Podcast{
		SourceType: models.SourceTypeYouTube,
		FeedURL:    "https://www.youtube.com/@mychannel",
		Handle:     "@mychannel",
	}

	_, err := client.SyncPodcast(context.Background(), podcast)
	require.NoError(t, err)
	assert.Equal(t, "UC123", podcast.ChannelID)

	require.NotEmpty(t, *queries)
	assert.Contains(t, (*queries)[0], "forHandle=%40mychannel")
}

func TestSyncPodcastRequiresIdentity(t *testing.T) {
	client, _ := newFakeAPI(t)
	podcast := &models.Podcast{SourceType: models.SourceTypeYouTube}

	_, err := client.SyncPodcast(context.Background(), podcast)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither channel id nor handle")
}

func TestSyncPodcastCapsVideoCount(t *testing.T) {
	client, _ := newFakeAPI(t)
	client.maxVideos = 1
	podcast := &models.Podcast{SourceType: models.SourceTypeYouTube, ChannelID: "UC123"}

	parsed, err := client.SyncPodcast(context.Background(), podcast)
	require.NoError(t, err)
	assert.Len(t, parsed.Episodes, 1)
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		input string
		want  *int
	}{
		{"PT1H2M3S", intPtr(3723)},
		{"PT45S", intPtr(45)},
		{"PT60M", intPtr(3600)},
		{"PT2H", intPtr(7200)},
		{"PT0S", intPtr(0)},
		{"P1DT2H", nil},
		{"PT", nil},
		{"PT12", nil},
		{"invalid", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := ParseISODuration(tt.input)
		if tt.want == nil {
			assert.Nil(t, got, tt.input)
			continue
		}
		require.NotNil(t, got, tt.input)
		assert.Equal(t, *tt.want, *got, tt.input)
	}
}

func intPtr(n int) *int { return &n }
