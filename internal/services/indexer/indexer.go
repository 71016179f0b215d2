// Package indexer uploads transcripts and podcast descriptions into the
// file-search store with scoped metadata tags.
package indexer

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/genai"
	"github.com/podscribe/podscribe/pkg/config"
	"github.com/podscribe/podscribe/pkg/sanitize"
)

// StoreClient is the file-search dependency.
type StoreClient interface {
	EnsureStore(ctx context.Context, displayName string) (string, error)
	ListDocuments(ctx context.Context, storeName string) ([]genai.Document, error)
	UploadText(ctx context.Context, storeName, displayName, text string, metadata map[string]string) (string, error)
	PollOperation(ctx context.Context, operationName string, deadline time.Duration) (string, error)
}

// Indexer uploads documents idempotently: a display name that already exists
// in the store is returned without re-uploading.
type Indexer struct {
	client           StoreClient
	storeDisplayName string
	pollTimeout      time.Duration

	mu        sync.Mutex
	storeName string
	existing  map[string]string // display name -> resource name
}

// New creates an indexer over the configured store.
func New(client StoreClient, cfg config.GenAI) *Indexer {
	pollTimeout := cfg.UploadPollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Minute
	}
	return &Indexer{
		client:           client,
		storeDisplayName: cfg.StoreDisplayName,
		pollTimeout:      pollTimeout,
	}
}

// Start resolves the store and warms the display-name cache.
func (ix *Indexer) Start(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.storeName != "" {
		return nil
	}

	storeName, err := ix.client.EnsureStore(ctx, ix.storeDisplayName)
	if err != nil {
		return err
	}

	documents, err := ix.client.ListDocuments(ctx, storeName)
	if err != nil {
		return err
	}

	existing := make(map[string]string, len(documents))
	for _, doc := range documents {
		existing[doc.DisplayName] = doc.Name
	}

	ix.storeName = storeName
	ix.existing = existing
	log.Printf("[INFO] File-search store %s ready with %d document(s)", storeName, len(existing))
	return nil
}

// StoreName returns the resolved store resource name. Start must have run.
func (ix *Indexer) StoreName() string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.storeName
}

// TranscriptDisplayName derives the store document name for an episode
// transcript from the audio basename convention.
func TranscriptDisplayName(episode *models.Episode) string {
	name := sanitize.Filename(episode.Title)
	if name == "" {
		name = episode.ID
	}
	return "ep_" + name + "_transcription.txt"
}

// DescriptionDisplayName derives the store document name for a podcast
// description.
func DescriptionDisplayName(podcast *models.Podcast) string {
	name := sanitize.Filename(podcast.Title)
	if name == "" {
		name = podcast.ID
	}
	return "podcast_" + name + "_description.txt"
}

// IndexTranscript uploads an episode transcript with its metadata tags and
// returns (resourceName, displayName). With skipExisting, a display name
// already present in the store short-circuits.
func (ix *Indexer) IndexTranscript(ctx context.Context, episode *models.Episode, podcast *models.Podcast, skipExisting bool) (string, string, error) {
	if err := ix.Start(ctx); err != nil {
		return "", "", err
	}
	text, err := transcriptText(episode)
	if err != nil {
		return "", "", err
	}

	displayName := TranscriptDisplayName(episode)
	metadata := map[string]string{
		"type":    "transcript",
		"podcast": sanitize.TagValue(podcast.Title),
		"episode": sanitize.TagValue(episode.Title),
	}
	if episode.PublishedDate != nil {
		metadata["release_date"] = episode.PublishedDate.UTC().Format("2006-01-02")
	}
	if len(episode.AIHosts) > 0 {
		metadata["hosts"] = sanitize.TagList(episode.AIHosts)
	}
	if len(episode.AIGuests) > 0 {
		metadata["guests"] = sanitize.TagList(episode.AIGuests)
	}
	if len(episode.AIKeywords) > 0 {
		metadata["keywords"] = sanitize.TagList(episode.AIKeywords)
	}
	if episode.AISummary != "" {
		metadata["summary"] = sanitize.TagValue(episode.AISummary)
	}

	resourceName, err := ix.upload(ctx, displayName, text, metadata, skipExisting)
	if err != nil {
		return "", "", err
	}
	return resourceName, displayName, nil
}

// transcriptText reads the episode transcript, falling back to a legacy
// on-disk file.
func transcriptText(episode *models.Episode) (string, error) {
	if episode.TranscriptText != "" {
		return episode.TranscriptText, nil
	}
	if episode.TranscriptPath != "" {
		data, err := os.ReadFile(episode.TranscriptPath)
		if err != nil {
			return "", fmt.Errorf("reading legacy transcript: %w", err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("episode %s has no transcript text to index", episode.ID)
}

// IndexDescription uploads a podcast description document.
func (ix *Indexer) IndexDescription(ctx context.Context, podcast *models.Podcast, skipExisting bool) (string, string, error) {
	if err := ix.Start(ctx); err != nil {
		return "", "", err
	}
	if podcast.Description == "" {
		return "", "", fmt.Errorf("podcast %s has no description to index", podcast.ID)
	}

	displayName := DescriptionDisplayName(podcast)
	metadata := map[string]string{
		"type":    "description",
		"podcast": sanitize.TagValue(podcast.Title),
		"summary": sanitize.TagValue(podcast.Description),
	}

	resourceName, err := ix.upload(ctx, displayName, podcast.Description, metadata, skipExisting)
	if err != nil {
		return "", "", err
	}
	return resourceName, displayName, nil
}

func (ix *Indexer) upload(ctx context.Context, displayName, text string, metadata map[string]string, skipExisting bool) (string, error) {
	ix.mu.Lock()
	storeName := ix.storeName
	resourceName, known := ix.existing[displayName]
	ix.mu.Unlock()

	if known && skipExisting {
		log.Printf("[DEBUG] Skipping upload of %q: already indexed as %s", displayName, resourceName)
		return resourceName, nil
	}

	operationName, err := ix.client.UploadText(ctx, storeName, displayName, text, metadata)
	if err != nil {
		return "", err
	}

	documentName, err := ix.client.PollOperation(ctx, operationName, ix.pollTimeout)
	if err != nil {
		return "", err
	}

	ix.mu.Lock()
	ix.existing[displayName] = documentName
	ix.mu.Unlock()

	log.Printf("[INFO] Indexed %q as %s", displayName, documentName)
	return documentName, nil
}
