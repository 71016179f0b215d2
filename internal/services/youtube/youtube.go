// Package youtube syncs YouTube channels through the Data API: channel
// metadata, recent uploads, and caption retrieval for the transcript
// short-circuit.
package youtube

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/pkg/config"
	"github.com/podscribe/podscribe/pkg/feedparse"
)

const (
	defaultCaptionLanguage = "en"
	defaultMaxVideos       = 50
	watchURLPrefix         = "https://www.youtube.com/watch?v="
	timedTextURL           = "https://www.youtube.com/api/timedtext"

	// Videos.List accepts at most 50 ids per call.
	videoDetailBatch = 50
)

// Client wraps the YouTube Data API for channel sync and caption download.
type Client struct {
	svc             *yt.Service
	http            *http.Client
	captionBaseURL  string
	captionLanguage string
	maxVideos       int
}

// NewClient creates a YouTube client from configuration. Returns an error
// when the API key is missing or the service cannot be constructed.
func NewClient(ctx context.Context, cfg config.YouTube) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("youtube: api key not configured")
	}
	svc, err := yt.NewService(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	return newClient(svc, cfg), nil
}

func newClient(svc *yt.Service, cfg config.YouTube) *Client {
	client := &Client{
		svc:             svc,
		http:            &http.Client{Timeout: 30 * time.Second},
		captionBaseURL:  timedTextURL,
		captionLanguage: cfg.CaptionLanguage,
		maxVideos:       cfg.MaxVideos,
	}
	if client.captionLanguage == "" {
		client.captionLanguage = defaultCaptionLanguage
	}
	if client.maxVideos <= 0 {
		client.maxVideos = defaultMaxVideos
	}
	return client
}

// SyncPodcast fetches channel metadata and the most recent uploads. It fills
// ChannelID and PlaylistID on the podcast when they were unknown; the caller
// persists the podcast afterwards.
func (c *Client) SyncPodcast(ctx context.Context, podcast *models.Podcast) (*feedparse.ParsedPodcast, error) {
	channel, err := c.fetchChannel(ctx, podcast)
	if err != nil {
		return nil, err
	}

	podcast.ChannelID = channel.Id
	if channel.ContentDetails != nil && channel.ContentDetails.RelatedPlaylists != nil {
		podcast.PlaylistID = channel.ContentDetails.RelatedPlaylists.Uploads
	}
	if podcast.PlaylistID == "" {
		return nil, fmt.Errorf("channel %s has no uploads playlist", channel.Id)
	}

	parsed := &feedparse.ParsedPodcast{FeedURL: podcast.FeedURL}
	if channel.Snippet != nil {
		parsed.Title = feedparse.CleanText(channel.Snippet.Title)
		parsed.Description = feedparse.CleanText(channel.Snippet.Description)
		parsed.Language = channel.Snippet.DefaultLanguage
		if channel.Snippet.Thumbnails != nil && channel.Snippet.Thumbnails.High != nil {
			parsed.ImageURL = channel.Snippet.Thumbnails.High.Url
		}
	}

	videoIDs, err := c.listUploads(ctx, podcast.PlaylistID)
	if err != nil {
		return nil, err
	}
	videos, err := c.videoDetails(ctx, videoIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range videoIDs {
		video, ok := videos[id]
		if !ok || video.Snippet == nil {
			continue
		}
		parsed.Episodes = append(parsed.Episodes, c.episodeFromVideo(video))
	}

	log.Printf("[DEBUG] YouTube sync for %q: %d upload(s)", parsed.Title, len(parsed.Episodes))
	return parsed, nil
}

// fetchChannel loads the channel by stored id, falling back to the handle for
// newly added channels.
func (c *Client) fetchChannel(ctx context.Context, podcast *models.Podcast) (*yt.Channel, error) {
	call := c.svc.Channels.List([]string{"snippet", "contentDetails"}).Context(ctx)
	switch {
	case podcast.ChannelID != "":
		call = call.Id(podcast.ChannelID)
	case podcast.Handle != "":
		call = call.ForHandle(podcast.Handle)
	default:
		return nil, fmt.Errorf("podcast %s has neither channel id nor handle", podcast.ID)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("fetching channel: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("channel not found for podcast %s", podcast.ID)
	}
	return resp.Items[0], nil
}

// listUploads walks the uploads playlist, newest first, up to maxVideos.
func (c *Client) listUploads(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		call := c.svc.PlaylistItems.List([]string{"contentDetails"}).
			Context(ctx).
			PlaylistId(playlistID).
			MaxResults(videoDetailBatch)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing uploads playlist %s: %w", playlistID, err)
		}
		for _, item := range resp.Items {
			if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			ids = append(ids, item.ContentDetails.VideoId)
			if len(ids) >= c.maxVideos {
				return ids, nil
			}
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			return ids, nil
		}
	}
}

// videoDetails fetches snippet and contentDetails for the given video ids in
// batches of 50.
func (c *Client) videoDetails(ctx context.Context, ids []string) (map[string]*yt.Video, error) {
	videos := make(map[string]*yt.Video, len(ids))
	for start := 0; start < len(ids); start += videoDetailBatch {
		end := start + videoDetailBatch
		if end > len(ids) {
			end = len(ids)
		}
		resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails"}).
			Context(ctx).
			Id(ids[start:end]...).
			Do()
		if err != nil {
			return nil, fmt.Errorf("fetching video details: %w", err)
		}
		for _, video := range resp.Items {
			videos[video.Id] = video
		}
	}
	return videos, nil
}

func (c *Client) episodeFromVideo(video *yt.Video) feedparse.ParsedEpisode {
	episode := feedparse.ParsedEpisode{
		GUID:        video.Id,
		Title:       feedparse.CleanText(video.Snippet.Title),
		Description: feedparse.CleanText(video.Snippet.Description),
		Enclosure:   feedparse.Enclosure{URL: watchURLPrefix + video.Id},
		VideoID:     video.Id,
	}

	if published, err := time.Parse(time.RFC3339, video.Snippet.PublishedAt); err == nil {
		utc := published.UTC()
		episode.PublishedDate = &utc
	}

	if video.ContentDetails != nil {
		episode.DurationSeconds = ParseISODuration(video.ContentDetails.Duration)
		episode.CaptionsAvailable = video.ContentDetails.Caption == "true"
	}
	if episode.CaptionsAvailable {
		episode.CaptionLanguage = video.Snippet.DefaultAudioLanguage
		if episode.CaptionLanguage == "" {
			episode.CaptionLanguage = c.captionLanguage
		}
	}
	return episode
}
