// Package metadata runs the extraction stage: feed fields, ID3 tags, and
// AI-derived metadata merged by priority feed > tags > AI.
package metadata

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"golang.org/x/time/rate"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/pkg/config"
)

// TextGenerator is the AI dependency: prompt in, raw model text out.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Extractor produces merged metadata for transcribed episodes.
type Extractor struct {
	episodes episodes.Repository
	ai       TextGenerator
	limiter  *rate.Limiter
}

// NewExtractor creates a metadata extractor. The limiter enforces the AI
// provider's request budget across all callers.
func NewExtractor(episodeRepo episodes.Repository, ai TextGenerator, cfg config.GenAI) *Extractor {
	requests := cfg.RequestsPerWindow
	if requests < 1 {
		requests = 9
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	limiter := rate.NewLimiter(rate.Limit(float64(requests)/window.Seconds()), requests)
	return &Extractor{
		episodes: episodeRepo,
		ai:       ai,
		limiter:  limiter,
	}
}

// ExtractOne runs the full metadata stage for a single transcribed episode
// and persists the merged result.
func (e *Extractor) ExtractOne(ctx context.Context, episode *models.Episode) error {
	if !episode.HasTranscript() {
		return fmt.Errorf("episode %s has no transcript", episode.ID)
	}

	if err := e.episodes.MarkMetadataStarted(ctx, episode.ID); err != nil {
		return err
	}

	payload := episodes.MetadataPayload{}

	// ID3 tags while the audio is still on disk
	if episode.LocalFilePath != "" {
		artist, album := readID3(episode.LocalFilePath)
		payload.MP3Artist = artist
		payload.MP3Album = album
	}

	meta, err := e.callAI(ctx, episode)
	if err != nil {
		if markErr := e.episodes.MarkMetadataFailed(ctx, episode.ID, err.Error()); markErr != nil {
			log.Printf("[ERROR] Could not record metadata failure for %s: %v", episode.ID, markErr)
		}
		return err
	}

	payload.Summary = meta.Summary
	payload.Keywords = meta.Keywords
	payload.Hosts = append(meta.Hosts, meta.CoHosts...)
	payload.Guests = meta.Guests
	payload.EmailContent = meta.emailContentModel()

	// The ID3 artist stands in when the model finds no hosts. Validation
	// requires at least one, so this only matters for relaxed providers.
	if len(payload.Hosts) == 0 && payload.MP3Artist != "" {
		payload.Hosts = []string{payload.MP3Artist}
	}

	if err := e.episodes.MarkMetadataComplete(ctx, episode.ID, payload); err != nil {
		return err
	}
	log.Printf("[DEBUG] Metadata extracted for episode %s (%d keywords, %d hosts)",
		episode.ID, len(payload.Keywords), len(payload.Hosts))
	return nil
}

func (e *Extractor) callAI(ctx context.Context, episode *models.Episode) (*aiMetadata, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	transcript, err := e.transcriptText(episode)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(episode.LocalFilePath)
	if filename == "." {
		filename = episode.Title
	}

	raw, err := e.ai.GenerateText(ctx, systemPrompt, buildPrompt(transcript, filename))
	if err != nil {
		return nil, fmt.Errorf("ai metadata call: %w", err)
	}
	return parseAIMetadata(raw)
}

// transcriptText reads the episode transcript, falling back to a legacy
// on-disk file.
func (e *Extractor) transcriptText(episode *models.Episode) (string, error) {
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
	return "", fmt.Errorf("episode %s has no transcript text", episode.ID)
}

// readID3 pulls artist and album from the audio file's tags. Missing or
// unreadable tags are not an error.
func readID3(path string) (artist, album string) {
	file, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(meta.Artist()), strings.TrimSpace(meta.Album())
}
