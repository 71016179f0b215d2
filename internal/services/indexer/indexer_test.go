package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/genai"
	"github.com/podscribe/podscribe/pkg/config"
)

// fakeStore implements StoreClient in memory and counts uploads.
type fakeStore struct {
	documents   []genai.Document
	uploads     int
	lastText    string
	lastMeta    map[string]string
	uploadError error
}

func (f *fakeStore) EnsureStore(_ context.Context, _ string) (string, error) {
	return "fileSearchStores/test", nil
}

func (f *fakeStore) ListDocuments(_ context.Context, _ string) ([]genai.Document, error) {
	return f.documents, nil
}

func (f *fakeStore) UploadText(_ context.Context, _, displayName, text string, metadata map[string]string) (string, error) {
	if f.uploadError != nil {
		return "", f.uploadError
	}
	f.uploads++
	f.lastText = text
	f.lastMeta = metadata
	return "operations/" + displayName, nil
}

func (f *fakeStore) PollOperation(_ context.Context, operationName string, _ time.Duration) (string, error) {
	return "fileSearchStores/test/documents/" + operationName[len("operations/"):], nil
}

func newTestIndexer(store StoreClient) *Indexer {
	return New(store, config.GenAI{
		StoreDisplayName:  "podscribe-index",
		UploadPollTimeout: time.Second,
	})
}

func sampleEpisode() (*models.Episode, *models.Podcast) {
	published := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	episode := &models.Episode{
		Title:          "Episode Y",
		PublishedDate:  &published,
		TranscriptText: "the transcript",
		AISummary:      "what happened",
		AIKeywords:     models.StringList{"k1", "k2"},
		AIHosts:        models.StringList{"Alice"},
		AIGuests:       models.StringList{"Bob"},
	}
	episode.ID = "ep-1"
	podcast := &models.Podcast{Title: "The Show"}
	podcast.ID = "pod-1"
	return episode, podcast
}

func TestIndexTranscriptUploadsWithTags(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndexer(store)
	episode, podcast := sampleEpisode()

	resourceName, displayName, err := ix.IndexTranscript(context.Background(), episode, podcast, true)
	require.NoError(t, err)
	assert.Equal(t, "ep_Episode Y_transcription.txt", displayName)
	assert.Equal(t, "fileSearchStores/test/documents/ep_Episode Y_transcription.txt", resourceName)
	assert.Equal(t, 1, store.uploads)
	assert.Equal(t, "the transcript", store.lastText)

	assert.Equal(t, "transcript", store.lastMeta["type"])
	assert.Equal(t, "The Show", store.lastMeta["podcast"])
	assert.Equal(t, "Episode Y", store.lastMeta["episode"])
	assert.Equal(t, "2026-08-01", store.lastMeta["release_date"])
	assert.Equal(t, "Alice", store.lastMeta["hosts"])
	assert.Equal(t, "Bob", store.lastMeta["guests"])
	assert.Equal(t, "k1, k2", store.lastMeta["keywords"])
}

func TestIndexTranscriptSkipExisting(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndexer(store)
	episode, podcast := sampleEpisode()
	ctx := context.Background()

	first, _, err := ix.IndexTranscript(ctx, episode, podcast, true)
	require.NoError(t, err)

	// Second call returns the cached resource without another upload.
	second, _, err := ix.IndexTranscript(ctx, episode, podcast, true)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.uploads)

	// Without skipExisting the document is re-uploaded.
	_, _, err = ix.IndexTranscript(ctx, episode, podcast, false)
	require.NoError(t, err)
	assert.Equal(t, 2, store.uploads)
}

func TestIndexTranscriptSeedsCacheFromStore(t *testing.T) {
	store := &fakeStore{documents: []genai.Document{
		{Name: "fileSearchStores/test/documents/existing", DisplayName: "ep_Episode Y_transcription.txt"},
	}}
	ix := newTestIndexer(store)
	episode, podcast := sampleEpisode()

	resourceName, _, err := ix.IndexTranscript(context.Background(), episode, podcast, true)
	require.NoError(t, err)
	assert.Equal(t, "fileSearchStores/test/documents/existing", resourceName)
	assert.Zero(t, store.uploads)
}

func TestIndexDescription(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndexer(store)
	podcast := &models.Podcast{Title: "The Show", Description: "a show about things"}
	podcast.ID = "pod-1"

	_, displayName, err := ix.IndexDescription(context.Background(), podcast, true)
	require.NoError(t, err)
	assert.Equal(t, "podcast_The Show_description.txt", displayName)
	assert.Equal(t, "description", store.lastMeta["type"])
	assert.Equal(t, "a show about things", store.lastText)
}

func TestIndexTranscriptRequiresText(t *testing.T) {
	ix := newTestIndexer(&fakeStore{})
	episode, podcast := sampleEpisode()
	episode.TranscriptText = ""

	_, _, err := ix.IndexTranscript(context.Background(), episode, podcast, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transcript")
}

func TestIndexTranscriptReadsLegacyFile(t *testing.T) {
	store := &fakeStore{}
	ix := newTestIndexer(store)
	episode, podcast := sampleEpisode()

	path := filepath.Join(t.TempDir(), "ep_y_transcription.txt")
	require.NoError(t, os.WriteFile(path, []byte("  the legacy transcript\n"), 0644))
	episode.TranscriptText = ""
	episode.TranscriptPath = path

	_, _, err := ix.IndexTranscript(context.Background(), episode, podcast, true)
	require.NoError(t, err)
	assert.Equal(t, 1, store.uploads)
	assert.Equal(t, "the legacy transcript", store.lastText)
}

func TestIndexTranscriptUnreadableLegacyFile(t *testing.T) {
	ix := newTestIndexer(&fakeStore{})
	episode, podcast := sampleEpisode()
	episode.TranscriptText = ""
	episode.TranscriptPath = filepath.Join(t.TempDir(), "missing.txt")

	_, _, err := ix.IndexTranscript(context.Background(), episode, podcast, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legacy transcript")
}

func TestIndexTranscriptUploadFailure(t *testing.T) {
	store := &fakeStore{uploadError: fmt.Errorf("api returned status 503")}
	ix := newTestIndexer(store)
	episode, podcast := sampleEpisode()

	_, _, err := ix.IndexTranscript(context.Background(), episode, podcast, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
