// Package chatsearch is the retrieval tool surface for chat: scoped grounded
// searches over the file-search store plus citation extraction.
package chatsearch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/internal/services/genai"
	"github.com/podscribe/podscribe/internal/services/podcasts"
	"github.com/podscribe/podscribe/internal/services/users"
)

// Grounded is the grounded-generation dependency.
type Grounded interface {
	GenerateGrounded(ctx context.Context, prompt, storeName, metadataFilter string) (*genai.GroundedResult, error)
}

// Scope captures what one chat turn may see. Precedence, most specific
// first: episode > podcast > subscribed-only > global.
type Scope struct {
	UserID         string
	PodcastID      string
	EpisodeID      string
	SubscribedOnly bool
}

// SearchResult is the structured tool payload. Failures populate Error
// instead of propagating; the chat layer never sees a raised error.
type SearchResult struct {
	ResponseText string              `json:"response_text"`
	Citations    models.CitationList `json:"citations"`
	Error        string              `json:"error,omitempty"`
}

// Service executes scoped searches for one store.
type Service struct {
	grounded  Grounded
	episodes  episodes.Repository
	podcasts  podcasts.Repository
	users     users.Repository
	storeName string
}

// NewService creates the chat search service over a resolved store name.
func NewService(grounded Grounded, episodeRepo episodes.Repository, podcastRepo podcasts.Repository, userRepo users.Repository, storeName string) *Service {
	return &Service{
		grounded:  grounded,
		episodes:  episodeRepo,
		podcasts:  podcastRepo,
		users:     userRepo,
		storeName: storeName,
	}
}

// SearchTranscripts answers a query grounded on transcript documents within
// the scope.
func (s *Service) SearchTranscripts(ctx context.Context, scope Scope, query string) *SearchResult {
	return s.search(ctx, scope, query, "transcript")
}

// SearchPodcastDescriptions answers a query grounded on podcast description
// documents within the scope.
func (s *Service) SearchPodcastDescriptions(ctx context.Context, scope Scope, query string) *SearchResult {
	return s.search(ctx, scope, query, "description")
}

func (s *Service) search(ctx context.Context, scope Scope, query, docType string) *SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return &SearchResult{Citations: models.CitationList{}, Error: "empty query"}
	}

	filter, err := s.buildFilter(ctx, scope, docType)
	if err != nil {
		return &SearchResult{Citations: models.CitationList{}, Error: err.Error()}
	}

	result, err := s.grounded.GenerateGrounded(ctx, query, s.storeName, filter)
	if err != nil {
		log.Printf("[WARN] Grounded search failed: %v", err)
		return &SearchResult{Citations: models.CitationList{}, Error: err.Error()}
	}

	return &SearchResult{
		ResponseText: result.Text,
		Citations:    s.ExtractCitations(ctx, result.Chunks),
	}
}

// buildFilter composes the metadata filter for the most specific scope term
// available.
func (s *Service) buildFilter(ctx context.Context, scope Scope, docType string) (string, error) {
	terms := []string{`type="` + docType + `"`}

	switch {
	case scope.EpisodeID != "":
		episode, err := s.episodes.GetEpisodeByID(ctx, scope.EpisodeID)
		if err != nil {
			return "", fmt.Errorf("resolving episode scope: %w", err)
		}
		podcast, err := s.podcasts.GetPodcastByID(ctx, episode.PodcastID)
		if err != nil {
			return "", fmt.Errorf("resolving episode scope: %w", err)
		}
		terms = append(terms, fmt.Sprintf(`podcast="%s"`, escapeQuotes(podcast.Title)))
		if docType == "transcript" {
			terms = append(terms, fmt.Sprintf(`episode="%s"`, escapeQuotes(episode.Title)))
		}

	case scope.PodcastID != "":
		podcast, err := s.podcasts.GetPodcastByID(ctx, scope.PodcastID)
		if err != nil {
			return "", fmt.Errorf("resolving podcast scope: %w", err)
		}
		terms = append(terms, fmt.Sprintf(`podcast="%s"`, escapeQuotes(podcast.Title)))

	case scope.SubscribedOnly:
		subscribed, err := s.users.GetSubscribedPodcasts(ctx, scope.UserID)
		if err != nil {
			return "", fmt.Errorf("resolving subscriptions: %w", err)
		}
		if len(subscribed) == 0 {
			return "", errors.New("no subscribed podcasts to search")
		}
		alternatives := make([]string, 0, len(subscribed))
		for _, podcast := range subscribed {
			alternatives = append(alternatives, fmt.Sprintf(`podcast="%s"`, escapeQuotes(podcast.Title)))
		}
		terms = append(terms, "("+strings.Join(alternatives, " OR ")+")")
	}

	return strings.Join(terms, " AND "), nil
}

// escapeQuotes escapes double quotes in filter literals so titles cannot
// break out of the quoted term.
func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// ExtractCitations converts grounding chunks into citations: deduplicated by
// title, resolved to an episode (transcripts) or podcast (descriptions).
// Titles that resolve to neither are dropped.
func (s *Service) ExtractCitations(ctx context.Context, chunks []genai.GroundingChunk) models.CitationList {
	citations := models.CitationList{}
	seen := make(map[string]bool, len(chunks))

	for _, chunk := range chunks {
		if chunk.Title == "" || seen[chunk.Title] {
			continue
		}
		seen[chunk.Title] = true

		citation := models.Citation{
			Index: len(citations) + 1,
			Title: chunk.Title,
			Text:  chunk.Text,
		}

		if episode, err := s.episodes.GetEpisodeByFileSearchDisplayName(ctx, chunk.Title); err == nil {
			citation.SourceType = "transcript"
			citation.EpisodeID = episode.ID
			citation.PodcastID = episode.PodcastID
		} else if podcast, err := s.podcasts.GetPodcastByDescriptionDisplayName(ctx, chunk.Title); err == nil {
			citation.SourceType = "description"
			citation.PodcastID = podcast.ID
		} else {
			// Unresolvable titles would point the user at nothing.
			continue
		}

		citations = append(citations, citation)
	}
	return citations
}

// GetUserSubscriptions projects the user's subscribed podcasts to safe
// fields.
func (s *Service) GetUserSubscriptions(ctx context.Context, userID string) ([]PodcastInfo, error) {
	subscribed, err := s.users.GetSubscribedPodcasts(ctx, userID)
	if err != nil {
		return nil, err
	}
	infos := make([]PodcastInfo, 0, len(subscribed))
	for _, podcast := range subscribed {
		infos = append(infos, projectPodcast(&podcast))
	}
	return infos, nil
}

// PodcastInfo is the safe projection of a podcast for chat tools.
type PodcastInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Language    string `json:"language"`
}

// EpisodeInfo is the safe projection of an episode for chat tools.
type EpisodeInfo struct {
	ID            string   `json:"id"`
	PodcastID     string   `json:"podcast_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	PublishedDate string   `json:"published_date,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Hosts         []string `json:"hosts,omitempty"`
	Guests        []string `json:"guests,omitempty"`
}

// GetPodcastInfo returns safe podcast fields.
func (s *Service) GetPodcastInfo(ctx context.Context, podcastID string) (*PodcastInfo, error) {
	podcast, err := s.podcasts.GetPodcastByID(ctx, podcastID)
	if err != nil {
		return nil, err
	}
	info := projectPodcast(podcast)
	return &info, nil
}

// GetEpisodeInfo returns safe episode fields.
func (s *Service) GetEpisodeInfo(ctx context.Context, episodeID string) (*EpisodeInfo, error) {
	episode, err := s.episodes.GetEpisodeByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	info := &EpisodeInfo{
		ID:          episode.ID,
		PodcastID:   episode.PodcastID,
		Title:       episode.Title,
		Description: episode.Description,
		Summary:     episode.AISummary,
		Hosts:       episode.AIHosts,
		Guests:      episode.AIGuests,
	}
	if episode.PublishedDate != nil {
		info.PublishedDate = episode.PublishedDate.UTC().Format("2006-01-02")
	}
	return info, nil
}

func projectPodcast(podcast *models.Podcast) PodcastInfo {
	return PodcastInfo{
		ID:          podcast.ID,
		Title:       podcast.Title,
		Description: podcast.Description,
		Author:      podcast.Author,
		Language:    podcast.Language,
	}
}
