// Package digest assembles per-user daily email digests and hands them to
// the mail collaborator at each user's local delivery hour.
package digest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/internal/services/podcasts"
	"github.com/podscribe/podscribe/internal/services/users"
)

const (
	defaultMaxEpisodes = 20
	lookbackWindow     = 24 * time.Hour
)

// Mailer is the outbound mail boundary. The transport itself is a
// collaborator; the worker only assembles messages.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// Worker assembles and schedules daily digests.
type Worker struct {
	users       users.Repository
	episodes    episodes.Repository
	podcasts    podcasts.Repository
	mailer      Mailer
	webBaseURL  string
	maxEpisodes int
}

// NewWorker creates a digest worker. mailer may be nil, in which case runs
// are skipped entirely.
func NewWorker(userRepo users.Repository, episodeRepo episodes.Repository, podcastRepo podcasts.Repository, mailer Mailer, webBaseURL string, maxEpisodes int) *Worker {
	if maxEpisodes <= 0 {
		maxEpisodes = defaultMaxEpisodes
	}
	return &Worker{
		users:       userRepo,
		episodes:    episodeRepo,
		podcasts:    podcastRepo,
		mailer:      mailer,
		webBaseURL:  webBaseURL,
		maxEpisodes: maxEpisodes,
	}
}

// RunDigests sends digests to every user whose local delivery hour matches
// now. Users outside their delivery hour are skipped without side effects.
func (w *Worker) RunDigests(ctx context.Context, now time.Time) (*models.WorkerResult, error) {
	result := &models.WorkerResult{}
	if w.mailer == nil {
		log.Printf("[DEBUG] Digest run skipped: no mailer configured")
		return result, nil
	}

	candidates, err := w.users.GetUsersForEmailDigest(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting digest users: %w", err)
	}

	for i := range candidates {
		user := &candidates[i]
		if localHour(now, user.Timezone) != user.EmailDigestHour {
			result.Skipped++
			continue
		}
		if err := w.sendDigest(ctx, user, now); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", user.Email, err))
			log.Printf("[WARN] Digest failed for %s: %v", user.Email, err)
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		log.Printf("[INFO] Digest run: %d sent, %d failed, %d outside delivery hour",
			result.Processed, result.Failed, result.Skipped)
	}
	return result, nil
}

// sendDigest assembles and sends one user's digest. A user with zero new
// episodes is still marked sent so the same hour is not rechecked.
func (w *Worker) sendDigest(ctx context.Context, user *models.User, now time.Time) error {
	newEpisodes, err := w.episodes.GetNewEpisodesForUserSince(ctx, user.ID, now.Add(-lookbackWindow), w.maxEpisodes)
	if err != nil {
		return fmt.Errorf("selecting new episodes: %w", err)
	}

	if len(newEpisodes) == 0 {
		log.Printf("[DEBUG] No new episodes for %s, marking digest sent", user.Email)
		return w.users.MarkEmailDigestSent(ctx, user.ID)
	}

	groups, err := w.groupByPodcast(ctx, newEpisodes)
	if err != nil {
		return err
	}

	subject := digestSubject(len(newEpisodes))
	htmlBody := renderHTML(groups, w.webBaseURL)
	textBody := renderText(groups, w.webBaseURL)

	if err := w.mailer.Send(ctx, user.Email, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("sending digest: %w", err)
	}
	return w.users.MarkEmailDigestSent(ctx, user.ID)
}

// podcastGroup is one podcast's section of the digest.
type podcastGroup struct {
	Podcast  *models.Podcast
	Episodes []models.Episode
}

// groupByPodcast buckets episodes under their podcast, preserving the
// newest-first episode order within and across groups.
func (w *Worker) groupByPodcast(ctx context.Context, list []models.Episode) ([]podcastGroup, error) {
	var groups []podcastGroup
	index := make(map[string]int)

	for _, episode := range list {
		at, ok := index[episode.PodcastID]
		if !ok {
			podcast, err := w.podcasts.GetPodcastByID(ctx, episode.PodcastID)
			if err != nil {
				return nil, fmt.Errorf("loading podcast %s: %w", episode.PodcastID, err)
			}
			at = len(groups)
			index[episode.PodcastID] = at
			groups = append(groups, podcastGroup{Podcast: podcast})
		}
		groups[at].Episodes = append(groups[at].Episodes, episode)
	}
	return groups, nil
}

func digestSubject(count int) string {
	if count == 1 {
		return "Your Daily Podcast Digest - 1 new episode"
	}
	return fmt.Sprintf("Your Daily Podcast Digest - %d new episodes", count)
}

// localHour computes the wall-clock hour in the user's timezone. Invalid or
// empty IANA strings fall back to UTC with a logged warning.
func localHour(now time.Time, timezone string) int {
	if timezone == "" {
		return now.UTC().Hour()
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("[WARN] Invalid timezone %q, falling back to UTC: %v", timezone, err)
		return now.UTC().Hour()
	}
	return now.In(loc).Hour()
}
